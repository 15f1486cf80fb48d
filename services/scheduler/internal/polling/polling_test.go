package polling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/shared/types"
)

func TestPhaseTempoKey(t *testing.T) {
	assert.Equal(t, "scheduled", phaseTempoKey(types.PhaseScheduled))
	assert.Equal(t, "pre_match", phaseTempoKey(types.PhasePreMatch))
	assert.Equal(t, "live_break", phaseTempoKey(types.PhaseLiveHalftime))
	assert.Equal(t, "live_break", phaseTempoKey(types.PhaseBreak))
	assert.Equal(t, "live_active", phaseTempoKey(types.PhaseLiveFirstHalf))
	assert.Equal(t, "finished", phaseTempoKey(types.PhaseFinished))
	assert.Equal(t, "finished", phaseTempoKey(types.PhaseCancelled))
}
