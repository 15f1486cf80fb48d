package wsmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConnection_DefaultsPongToCreation(t *testing.T) {
	c := newConnection(nil, "127.0.0.1:1234")

	assert.NotEmpty(t, c.id)
	assert.Equal(t, "127.0.0.1:1234", c.remoteAddr)
	assert.Equal(t, 0, c.subscriptionCount())
	assert.WithinDuration(t, c.createdAt, c.lastPong(), time.Millisecond)
}

func TestConnection_AddRemoveSubscriptions(t *testing.T) {
	c := newConnection(nil, "addr")

	c.addSubscriptions([]string{"a", "b"})
	assert.Equal(t, 2, c.subscriptionCount())
	assert.ElementsMatch(t, []string{"a", "b"}, c.subscriptionList())

	c.addSubscriptions([]string{"a", "c"})
	assert.Equal(t, 3, c.subscriptionCount())

	c.removeSubscriptions([]string{"a"})
	assert.Equal(t, 2, c.subscriptionCount())
	assert.ElementsMatch(t, []string{"b", "c"}, c.subscriptionList())
}

func TestConnection_TouchPongUpdatesLastPong(t *testing.T) {
	c := newConnection(nil, "addr")
	before := c.lastPong()

	time.Sleep(2 * time.Millisecond)
	c.touchPong()

	assert.True(t, c.lastPong().After(before))
}

func TestConnection_AliveSeconds(t *testing.T) {
	c := newConnection(nil, "addr")
	c.createdAt = time.Now().Add(-5 * time.Second)

	assert.InDelta(t, 5.0, c.aliveSeconds(), 0.5)
}
