package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liveview-io/liveview/shared/types"
)

func intPtr(v int) *int { return &v }

func TestStatsEqual(t *testing.T) {
	a := types.TeamStats{Shots: intPtr(5), Corners: intPtr(2)}
	b := types.TeamStats{Shots: intPtr(5), Corners: intPtr(2)}
	assert.True(t, statsEqual(a, b))

	c := types.TeamStats{Shots: intPtr(6), Corners: intPtr(2)}
	assert.False(t, statsEqual(a, c))
}

func TestStatsEqual_NilFieldsAreEqual(t *testing.T) {
	assert.True(t, statsEqual(types.TeamStats{}, types.TeamStats{}))
}
