package wsmanager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFanoutChannel_RoundTripsWithParse(t *testing.T) {
	matchID := "11111111-1111-1111-1111-111111111111"
	ch := fanoutChannel(matchID, 1)

	assert.Equal(t, "fanout:match:11111111-1111-1111-1111-111111111111:tier:1", ch)

	gotMatch, gotTier := parseFanoutChannel(ch)
	assert.Equal(t, matchID, gotMatch)
	assert.Equal(t, 1, gotTier)
}

func TestParseFanoutChannel_MalformedChannelIsZeroValue(t *testing.T) {
	matchID, tier := parseFanoutChannel("not-a-fanout-channel")
	assert.Equal(t, "", matchID)
	assert.Equal(t, 0, tier)
}

func newTestManager() *Manager {
	return New(nil, nil, 25, 30*time.Second, 90*time.Second)
}

func TestManager_ConnectionCountReflectsConnectionsMap(t *testing.T) {
	m := newTestManager()
	assert.Equal(t, 0, m.ConnectionCount())

	c := newConnection(nil, "addr")
	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()

	assert.Equal(t, 1, m.ConnectionCount())
}

func TestManager_CleanupConnectionRemovesFromChannelIndex(t *testing.T) {
	m := newTestManager()
	c := newConnection(nil, "addr")
	c.addSubscriptions([]string{"fanout:match:abc:tier:0"})

	m.mu.Lock()
	m.connections[c.id] = c
	m.channelSubs["fanout:match:abc:tier:0"] = map[string]bool{c.id: true}
	m.mu.Unlock()

	m.cleanupConnection(c)

	assert.Equal(t, 0, m.ConnectionCount())
	m.mu.RLock()
	_, stillIndexed := m.channelSubs["fanout:match:abc:tier:0"]
	m.mu.RUnlock()
	assert.False(t, stillIndexed)
}

func TestManager_CleanupConnectionIsIdempotent(t *testing.T) {
	m := newTestManager()
	c := newConnection(nil, "addr")
	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()

	assert.NotPanics(t, func() {
		m.cleanupConnection(c)
		m.cleanupConnection(c)
	})
}
