package providerhealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinF(t *testing.T) {
	assert.Equal(t, 1.0, minF(1.0, 2.0))
	assert.Equal(t, 2.0, minF(3.0, 2.0))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-0.5, 0.0, 1.0))
	assert.Equal(t, 1.0, clamp(1.5, 0.0, 1.0))
	assert.Equal(t, 0.42, clamp(0.42, 0.0, 1.0))
}
