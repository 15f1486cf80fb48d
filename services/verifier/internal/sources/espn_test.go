package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePhase_SimpleStatuses(t *testing.T) {
	assert.Equal(t, "scheduled", resolvePhase("STATUS_SCHEDULED", 0, "soccer"))
	assert.Equal(t, "finished", resolvePhase("STATUS_FINAL", 0, "soccer"))
	assert.Equal(t, "finished", resolvePhase("STATUS_FULL_TIME", 0, "basketball"))
	assert.Equal(t, "postponed", resolvePhase("STATUS_POSTPONED", 0, "soccer"))
	assert.Equal(t, "cancelled", resolvePhase("STATUS_CANCELED", 0, "soccer"))
	assert.Equal(t, "suspended", resolvePhase("STATUS_DELAYED", 0, "soccer"))
	assert.Equal(t, "live_halftime", resolvePhase("STATUS_HALFTIME", 0, "soccer"))
	assert.Equal(t, "break", resolvePhase("STATUS_END_PERIOD", 0, "basketball"))
}

func TestResolvePhase_BasketballPeriods(t *testing.T) {
	assert.Equal(t, "live_q1", resolvePhase("STATUS_IN_PROGRESS", 1, "basketball"))
	assert.Equal(t, "live_q3", resolvePhase("STATUS_IN_PROGRESS", 3, "basketball"))
	assert.Equal(t, "live_ot", resolvePhase("STATUS_IN_PROGRESS", 5, "basketball"))
}

func TestResolvePhase_HockeyPeriods(t *testing.T) {
	assert.Equal(t, "live_p1", resolvePhase("STATUS_IN_PROGRESS", 1, "hockey"))
	assert.Equal(t, "live_p3", resolvePhase("STATUS_IN_PROGRESS", 3, "hockey"))
	assert.Equal(t, "live_ot", resolvePhase("STATUS_IN_PROGRESS", 4, "hockey"))
}

func TestResolvePhase_BaseballIsAlwaysInning(t *testing.T) {
	assert.Equal(t, "live_inning", resolvePhase("STATUS_IN_PROGRESS", 7, "baseball"))
}

func TestResolvePhase_SoccerHalves(t *testing.T) {
	assert.Equal(t, "live_first_half", resolvePhase("STATUS_IN_PROGRESS", 1, "soccer"))
	assert.Equal(t, "live_second_half", resolvePhase("STATUS_IN_PROGRESS", 2, "soccer"))
}

func TestScoreboardURL(t *testing.T) {
	s := NewESPNSource(0)
	assert.Equal(t, "https://site.api.espn.com/apis/site/v2/sports/soccer/eng.1/scoreboard", s.ScoreboardURL("soccer/eng.1"))
}
