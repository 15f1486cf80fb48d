package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/shared/types"
)

func TestESPNConnector_NameAndSupports(t *testing.T) {
	c := NewESPNConnector("", 0, nil)
	assert.Equal(t, types.ProviderESPN, c.Name())
	assert.True(t, c.Supports(types.SportSoccer))
	assert.True(t, c.Supports(types.SportBaseball))
	assert.False(t, c.Supports(types.SportHockey))
}

func TestEspnSportPath(t *testing.T) {
	assert.Equal(t, "soccer/eng.1", espnSportPath(types.SportSoccer))
	assert.Equal(t, "basketball/nba", espnSportPath(types.SportBasketball))
	assert.Equal(t, "football/nfl", espnSportPath(types.SportFootball))
	assert.Equal(t, "baseball/mlb", espnSportPath(types.SportBaseball))
}

func TestEspnPhaseToCanonical(t *testing.T) {
	assert.Equal(t, types.PhasePreMatch, espnPhaseToCanonical(types.SportSoccer, "pre", 0))
	assert.Equal(t, types.PhaseFinished, espnPhaseToCanonical(types.SportSoccer, "post", 0))
	assert.Equal(t, types.PhaseScheduled, espnPhaseToCanonical(types.SportSoccer, "weird", 0))
	assert.Equal(t, types.PhaseLiveSecondHalf, espnPhaseToCanonical(types.SportSoccer, "in", 2))
}

func TestLivePhaseForPeriod(t *testing.T) {
	assert.Equal(t, types.PhaseLiveFirstHalf, livePhaseForPeriod(types.SportSoccer, 1))
	assert.Equal(t, types.PhaseLiveSecondHalf, livePhaseForPeriod(types.SportSoccer, 2))

	assert.Equal(t, types.PhaseLiveQ1, livePhaseForPeriod(types.SportBasketball, 1))
	assert.Equal(t, types.PhaseLiveQ3, livePhaseForPeriod(types.SportBasketball, 3))
	assert.Equal(t, types.PhaseLiveQ4, livePhaseForPeriod(types.SportBasketball, 4))

	assert.Equal(t, types.PhaseLiveP1, livePhaseForPeriod(types.SportHockey, 1))
	assert.Equal(t, types.PhaseLiveP3, livePhaseForPeriod(types.SportHockey, 3))

	assert.Equal(t, types.PhaseLiveInning, livePhaseForPeriod(types.SportBaseball, 1))
}

func TestFootballDataConnector_NameAndSupports(t *testing.T) {
	c := NewFootballDataConnector("", 0, nil)
	assert.Equal(t, types.ProviderFootballData, c.Name())
	assert.True(t, c.Supports(types.SportSoccer))
	assert.False(t, c.Supports(types.SportBasketball))
}

func TestFootballDataPhaseToCanonical(t *testing.T) {
	assert.Equal(t, types.PhaseScheduled, footballDataPhaseToCanonical("SCHEDULED"))
	assert.Equal(t, types.PhaseScheduled, footballDataPhaseToCanonical("TIMED"))
	assert.Equal(t, types.PhaseLiveFirstHalf, footballDataPhaseToCanonical("IN_PLAY"))
	assert.Equal(t, types.PhaseLiveHalftime, footballDataPhaseToCanonical("PAUSED"))
	assert.Equal(t, types.PhaseFinished, footballDataPhaseToCanonical("FINISHED"))
}

func TestSportradarConnector_NameAndSupportsEverySport(t *testing.T) {
	c := NewSportradarConnector("", 0, nil)
	assert.Equal(t, types.ProviderSportradar, c.Name())
	assert.True(t, c.Supports(types.SportSoccer))
	assert.True(t, c.Supports(types.SportHockey))
}

func TestSportradarSportPath(t *testing.T) {
	assert.Equal(t, "soccer", sportradarSportPath(types.SportSoccer))
	assert.Equal(t, "icehockey", sportradarSportPath(types.SportHockey))
	assert.Equal(t, "nfl", sportradarSportPath(types.SportFootball))
}

func TestSportradarPhaseToCanonical(t *testing.T) {
	assert.Equal(t, types.PhaseScheduled, sportradarPhaseToCanonical(types.SportSoccer, "not_started", 0))
	assert.Equal(t, types.PhaseFinished, sportradarPhaseToCanonical(types.SportSoccer, "ended", 0))
	assert.Equal(t, types.PhasePostponed, sportradarPhaseToCanonical(types.SportSoccer, "postponed", 0))
	assert.Equal(t, types.PhaseCancelled, sportradarPhaseToCanonical(types.SportSoccer, "cancelled", 0))
	assert.Equal(t, types.PhaseSuspended, sportradarPhaseToCanonical(types.SportSoccer, "suspended", 0))
	assert.Equal(t, types.PhaseLiveSecondHalf, sportradarPhaseToCanonical(types.SportSoccer, "live", 2))
}

func TestSportradarEventType(t *testing.T) {
	assert.Equal(t, types.EventGoal, sportradarEventType(types.SportSoccer, "score_change"))
	assert.Equal(t, types.EventYellowCard, sportradarEventType(types.SportSoccer, "yellow_card"))
	assert.Equal(t, types.EventRedCard, sportradarEventType(types.SportSoccer, "red_card"))
	assert.Equal(t, types.EventSubstitution, sportradarEventType(types.SportSoccer, "substitution"))
	assert.Equal(t, types.EventPeriodStart, sportradarEventType(types.SportSoccer, "period_start"))
	assert.Equal(t, types.EventPeriodEnd, sportradarEventType(types.SportSoccer, "period_score"))
	assert.Equal(t, types.EventGeneric, sportradarEventType(types.SportSoccer, "unknown_thing"))
}

func TestTheSportsDBConnector_DefaultsToFreeTestKey(t *testing.T) {
	c := NewTheSportsDBConnector("", 0, nil)
	assert.Equal(t, "https://www.thesportsdb.com/api/v1/json/3", c.client.baseURL)
	assert.Equal(t, types.ProviderTheSportsDB, c.Name())
	assert.True(t, c.Supports(types.SportHockey))
	assert.False(t, c.Supports(types.SportFootball))
}

func TestTsdbPhaseToCanonical(t *testing.T) {
	assert.Equal(t, types.PhaseFinished, tsdbPhaseToCanonical("Match Finished"))
	assert.Equal(t, types.PhaseFinished, tsdbPhaseToCanonical("FT"))
	assert.Equal(t, types.PhaseScheduled, tsdbPhaseToCanonical("Not Started"))
	assert.Equal(t, types.PhaseScheduled, tsdbPhaseToCanonical(""))
	assert.Equal(t, types.PhasePostponed, tsdbPhaseToCanonical("Postponed"))
	assert.Equal(t, types.PhaseCancelled, tsdbPhaseToCanonical("Cancelled"))
	assert.Equal(t, types.PhaseLiveFirstHalf, tsdbPhaseToCanonical("1H"))
}
