package discovery

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/shared/types"
)

func TestTaskKey(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String()+":0", taskKey(id, types.TierScoreboard))
	assert.Equal(t, id.String()+":1", taskKey(id, types.TierEvents))
}

func TestService_PickProvider_PrefersOrderOverAlphabet(t *testing.T) {
	s := New(nil, nil, nil, nil, []string{"sportradar", "espn"}, nil, nil)

	matchPIDs := map[types.ProviderName]string{
		types.ProviderESPN:       "espn-1",
		types.ProviderSportradar: "sr-1",
	}
	leaguePIDs := map[types.ProviderName]string{
		types.ProviderSportradar: "sr-league-1",
	}

	provider, matchPID, leaguePID := s.pickProvider(matchPIDs, leaguePIDs)

	assert.Equal(t, types.ProviderSportradar, provider)
	assert.Equal(t, "sr-1", matchPID)
	assert.Equal(t, "sr-league-1", leaguePID)
}

func TestService_PickProvider_NoMappingReturnsEmptyMatchPID(t *testing.T) {
	s := New(nil, nil, nil, nil, []string{"espn"}, nil, nil)

	provider, matchPID, leaguePID := s.pickProvider(nil, nil)

	assert.Equal(t, types.ProviderESPN, provider)
	assert.Equal(t, "", matchPID)
	assert.Equal(t, "", leaguePID)
}

func TestService_TaskCountAndClear(t *testing.T) {
	s := New(nil, nil, nil, nil, nil, nil, nil)
	assert.Equal(t, 0, s.TaskCount())

	s.tasks["a:0"] = &pollTask{}
	s.tasks["b:1"] = &pollTask{}
	assert.Equal(t, 2, s.TaskCount())

	s.Clear()
	assert.Equal(t, 0, s.TaskCount())
}

func TestLivePhaseStrings_ContainsCoreLivePhases(t *testing.T) {
	phases := livePhaseStrings()
	assert.Contains(t, phases, types.PhaseLiveFirstHalf)
	assert.Contains(t, phases, types.PhaseBreak)
	assert.NotContains(t, phases, types.PhaseScheduled)
	assert.NotContains(t, phases, types.PhaseFinished)
}
