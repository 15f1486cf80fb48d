package leader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew_StartsAsNonLeaderWithUniqueInstanceID(t *testing.T) {
	e1 := New(nil, nil, 10*time.Second, 3*time.Second)
	e2 := New(nil, nil, 10*time.Second, 3*time.Second)

	assert.False(t, e1.IsLeader())
	assert.NotEmpty(t, e1.instanceID)
	assert.NotEqual(t, e1.instanceID, e2.instanceID)
}
