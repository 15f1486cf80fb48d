package reconcile

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/shared/types"
)

func intPtr(v int) *int { return &v }

func TestEventsMatch_ScoringEventRequiresSameScore(t *testing.T) {
	teamID := uuid.New()
	real := types.MatchEvent{EventType: types.EventGoal, ScoreHome: intPtr(1), ScoreAway: intPtr(0), TeamID: &teamID}
	synth := types.MatchEvent{EventType: types.EventGoal, ScoreHome: intPtr(1), ScoreAway: intPtr(0), TeamID: &teamID}

	assert.True(t, eventsMatch(real, synth))

	synth.ScoreHome = intPtr(2)
	assert.False(t, eventsMatch(real, synth))
}

func TestEventsMatch_DifferentEventTypeNeverMatches(t *testing.T) {
	real := types.MatchEvent{EventType: types.EventGoal, ScoreHome: intPtr(1), ScoreAway: intPtr(0)}
	synth := types.MatchEvent{EventType: types.EventYellowCard}

	assert.False(t, eventsMatch(real, synth))
}

func TestEventsMatch_PhaseEventMinuteProximity(t *testing.T) {
	real := types.MatchEvent{EventType: types.EventPeriodEnd, Minute: intPtr(45)}
	synth := types.MatchEvent{EventType: types.EventPeriodEnd, Minute: intPtr(47)}
	assert.True(t, eventsMatch(real, synth))

	synth.Minute = intPtr(60)
	assert.False(t, eventsMatch(real, synth))
}

func TestEventsMatch_DifferentTeamScoringEventDoesNotMatch(t *testing.T) {
	teamA, teamB := uuid.New(), uuid.New()
	real := types.MatchEvent{EventType: types.EventGoal, ScoreHome: intPtr(1), ScoreAway: intPtr(0), TeamID: &teamA}
	synth := types.MatchEvent{EventType: types.EventGoal, ScoreHome: intPtr(1), ScoreAway: intPtr(0), TeamID: &teamB}

	assert.False(t, eventsMatch(real, synth))
}

func TestIntPtrEqual(t *testing.T) {
	assert.True(t, intPtrEqual(nil, nil))
	assert.False(t, intPtrEqual(intPtr(1), nil))
	assert.True(t, intPtrEqual(intPtr(3), intPtr(3)))
	assert.False(t, intPtrEqual(intPtr(3), intPtr(4)))
}

func TestAbs(t *testing.T) {
	assert.Equal(t, 5, abs(-5))
	assert.Equal(t, 5, abs(5))
	assert.Equal(t, 0, abs(0))
}
