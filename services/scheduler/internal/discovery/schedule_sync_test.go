package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/shared/types"
)

func TestEspnStatusMap_CoversCoreStatuses(t *testing.T) {
	assert.Equal(t, types.PhaseScheduled, espnStatusMap["STATUS_SCHEDULED"])
	assert.Equal(t, types.PhaseLiveFirstHalf, espnStatusMap["STATUS_IN_PROGRESS"])
	assert.Equal(t, types.PhaseFinished, espnStatusMap["STATUS_FINAL"])
	assert.Equal(t, types.PhasePostponed, espnStatusMap["STATUS_POSTPONED"])
	assert.Equal(t, types.PhaseCancelled, espnStatusMap["STATUS_CANCELED"])

	_, ok := espnStatusMap["STATUS_SOMETHING_UNKNOWN"]
	assert.False(t, ok)
}

func TestScheduleSyncLeagues_CoversEverySupportedSport(t *testing.T) {
	sports := make(map[types.Sport]bool)
	for _, l := range scheduleSyncLeagues {
		sports[l.Sport] = true
		assert.NotEmpty(t, l.ESPNLeague)
		assert.NotEmpty(t, l.Name)
	}
	assert.True(t, sports[types.SportSoccer])
	assert.True(t, sports[types.SportBasketball])
	assert.True(t, sports[types.SportHockey])
	assert.True(t, sports[types.SportBaseball])
	assert.True(t, sports[types.SportFootball])
}

func TestNewScheduleSyncService_ConstructsWithoutPanicking(t *testing.T) {
	s := NewScheduleSyncService(nil, nil)
	assert.NotNil(t, s.cron)
	assert.NotNil(t, s.client)
}
