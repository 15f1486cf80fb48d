package synthetic

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveview-io/liveview/shared/types"
)

func TestGenerateFromStateChange_FirstSnapshotLive(t *testing.T) {
	gen := New(0.3)
	matchID := uuid.New()
	current := &types.ScoreboardPayload{
		Phase: types.PhaseLiveFirstHalf,
		Score: types.Score{Home: 0, Away: 0},
	}

	events := gen.GenerateFromStateChange(matchID, types.SportSoccer, nil, current)

	require.Len(t, events, 1)
	assert.Equal(t, types.EventMatchStart, events[0].EventType)
	assert.True(t, events[0].Synthetic)
	require.NotNil(t, events[0].Confidence)
	assert.Equal(t, 0.9, *events[0].Confidence)
}

func TestGenerateFromStateChange_FirstSnapshotNotLive(t *testing.T) {
	gen := New(0.3)
	current := &types.ScoreboardPayload{Phase: types.PhaseScheduled}

	events := gen.GenerateFromStateChange(uuid.New(), types.SportSoccer, nil, current)

	assert.Nil(t, events)
}

func TestGenerateFromStateChange_MatchStartTransition(t *testing.T) {
	gen := New(0.3)
	prev := &types.ScoreboardPayload{Phase: types.PhaseScheduled}
	curr := &types.ScoreboardPayload{Phase: types.PhaseLiveFirstHalf, Clock: "1:00"}

	events := gen.GenerateFromStateChange(uuid.New(), types.SportSoccer, prev, curr)

	require.Len(t, events, 1)
	assert.Equal(t, types.EventMatchStart, events[0].EventType)
	require.NotNil(t, events[0].Confidence)
	assert.Equal(t, 0.95, *events[0].Confidence)
}

func TestGenerateFromStateChange_MatchEndTransition(t *testing.T) {
	gen := New(0.3)
	prev := &types.ScoreboardPayload{Phase: types.PhaseLiveSecondHalf}
	curr := &types.ScoreboardPayload{Phase: types.PhaseFinished}

	events := gen.GenerateFromStateChange(uuid.New(), types.SportSoccer, prev, curr)

	require.Len(t, events, 1)
	assert.Equal(t, types.EventMatchEnd, events[0].EventType)
	assert.Equal(t, 0.95, *events[0].Confidence)
}

func TestGenerateFromStateChange_PeriodTransition(t *testing.T) {
	gen := New(0.3)
	prev := &types.ScoreboardPayload{Phase: types.PhaseLiveFirstHalf}
	curr := &types.ScoreboardPayload{Phase: types.PhaseLiveSecondHalf}

	events := gen.GenerateFromStateChange(uuid.New(), types.SportSoccer, prev, curr)

	require.Len(t, events, 2)
	assert.Equal(t, types.EventPeriodEnd, events[0].EventType)
	assert.Equal(t, types.EventPeriodStart, events[1].EventType)
	for _, e := range events {
		assert.Equal(t, 0.85, *e.Confidence)
	}
}

func TestGenerateFromStateChange_SingleGoal(t *testing.T) {
	gen := New(0.3)
	prev := &types.ScoreboardPayload{Phase: types.PhaseLiveFirstHalf, Score: types.Score{Home: 0, Away: 0}}
	curr := &types.ScoreboardPayload{Phase: types.PhaseLiveFirstHalf, Score: types.Score{Home: 1, Away: 0}}

	events := gen.GenerateFromStateChange(uuid.New(), types.SportSoccer, prev, curr)

	require.Len(t, events, 1)
	assert.Equal(t, types.EventGoal, events[0].EventType)
	assert.Equal(t, 0.7, *events[0].Confidence)
	require.NotNil(t, events[0].ScoreHome)
	assert.Equal(t, 1, *events[0].ScoreHome)
}

func TestGenerateFromStateChange_MultiGoalConfidenceFloor(t *testing.T) {
	gen := New(0.3)
	prev := &types.ScoreboardPayload{Phase: types.PhaseLiveFirstHalf, Score: types.Score{Home: 0, Away: 0}}
	curr := &types.ScoreboardPayload{Phase: types.PhaseLiveFirstHalf, Score: types.Score{Home: 5, Away: 0}}

	events := gen.GenerateFromStateChange(uuid.New(), types.SportSoccer, prev, curr)

	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, gen.minConfidence, *e.Confidence)
	}
}

func TestGenerateFromStateChange_NoChange(t *testing.T) {
	gen := New(0.3)
	sb := &types.ScoreboardPayload{Phase: types.PhaseLiveFirstHalf, Score: types.Score{Home: 1, Away: 1}}

	events := gen.GenerateFromStateChange(uuid.New(), types.SportSoccer, sb, sb)

	assert.Nil(t, events)
}

func TestScoringEventTypePerSport(t *testing.T) {
	assert.Equal(t, types.EventBasket, types.ScoringEventType(types.SportBasketball))
	assert.Equal(t, types.EventRun, types.ScoringEventType(types.SportBaseball))
	assert.Equal(t, types.EventGoal, types.ScoringEventType(types.SportHockey))
}

func TestSyntheticEventIDFormat(t *testing.T) {
	id := syntheticEventID()
	assert.Contains(t, id, "synthetic:")
	assert.Len(t, id, len("synthetic:")+12)
}

func TestParseClockToMinute(t *testing.T) {
	m := parseClockToMinute("23:15")
	require.NotNil(t, m)
	assert.Equal(t, 23, *m)

	assert.Nil(t, parseClockToMinute(""))
	assert.Nil(t, parseClockToMinute("garbage"))
}
