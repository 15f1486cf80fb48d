// Package wsmanager implements the Fan-Out & WebSocket Manager (spec.md
// §4.8), translated from
// original_source/backend/api/ws/manager.py's WebSocketManager, using
// gorilla/websocket in place of FastAPI's native WebSocket support
// following the connection/hub shape the teacher uses in
// services/api-gateway/internal/websocket/hub.go.
package wsmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

const readWait = 60 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type clientMessage struct {
	Op      string `json:"op"`
	MatchID string `json:"match_id"`
	Tiers   []int  `json:"tiers"`
}

// Manager owns every live WebSocket connection on this instance, the
// channel -> connection-id reverse index used for fan-out, and the single
// Redis pattern-subscribe bridge that feeds it.
type Manager struct {
	bus *bus.Bus
	log *logger.Logger

	maxSubscriptions int
	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	mu          sync.RWMutex
	connections map[string]*connection
	channelSubs map[string]map[string]bool
}

func New(b *bus.Bus, log *logger.Logger, maxSubscriptions int, heartbeatEvery, heartbeatTimeout time.Duration) *Manager {
	return &Manager{
		bus: b, log: log,
		maxSubscriptions: maxSubscriptions,
		heartbeatEvery:   heartbeatEvery,
		heartbeatTimeout: heartbeatTimeout,
		connections:      make(map[string]*connection),
		channelSubs:      make(map[string]map[string]bool),
	}
}

// ConnectionCount reports the number of currently live connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Run starts the pub/sub fan-out bridge and the heartbeat loop. It blocks
// until ctx is cancelled, then closes every connection with a
// server-shutdown code.
func (m *Manager) Run(ctx context.Context) {
	go m.runPubsubBridge(ctx)
	go m.runHeartbeat(ctx)
	<-ctx.Done()
	m.closeAll()
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection's
// lifecycle until it disconnects or the manager shuts down.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Base().WithField("error", err).Warn("websocket upgrade failed")
		return
	}
	c := newConnection(conn, r.RemoteAddr)

	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()
	m.log.Base().WithFields(map[string]interface{}{"connection_id": c.id, "remote_addr": c.remoteAddr}).Info("client connected")

	go m.writePump(c)
	m.send(c, types.WSEnvelope{
		Type: types.WSMsgState,
		Data: map[string]interface{}{
			"connection_id":      c.id,
			"max_subscriptions":  m.maxSubscriptions,
			"heartbeat_interval": m.heartbeatEvery.Seconds(),
		},
	})

	m.readPump(c)
}

func (m *Manager) readPump(c *connection) {
	defer m.cleanupConnection(c)
	c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		c.touchPong()
		c.conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		m.handleMessage(c, raw)
	}
}

func (m *Manager) writePump(c *connection) {
	for raw := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return
		}
	}
}

func (m *Manager) handleMessage(c *connection, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.sendError(c, "invalid_json", "message must be valid JSON")
		return
	}
	if msg.Op == "" {
		m.sendError(c, "missing_op", "message must include 'op' field")
		return
	}

	switch types.WSClientOp(msg.Op) {
	case types.WSOpSubscribe:
		m.handleSubscribe(c, msg)
	case types.WSOpUnsubscribe:
		m.handleUnsubscribe(c, msg)
	case types.WSOpPing:
		m.handlePing(c)
	default:
		m.sendError(c, "unknown_op", fmt.Sprintf("unknown operation: %s", msg.Op))
	}
}

func (m *Manager) handleSubscribe(c *connection, msg clientMessage) {
	if msg.MatchID == "" {
		m.sendError(c, "missing_match_id", "subscribe requires match_id")
		return
	}
	if _, err := uuid.Parse(msg.MatchID); err != nil {
		m.sendError(c, "invalid_match_id", "match_id must be a valid UUID")
		return
	}

	tiers := msg.Tiers
	if len(tiers) == 0 {
		tiers = []int{int(types.TierScoreboard)}
	}

	channels := make([]string, 0, len(tiers))
	for _, t := range tiers {
		if t < int(types.TierScoreboard) || t > int(types.TierStats) {
			continue
		}
		channels = append(channels, fanoutChannel(msg.MatchID, t))
	}

	if c.subscriptionCount()+len(channels) > m.maxSubscriptions {
		m.sendError(c, "subscription_limit", fmt.Sprintf("maximum %d subscriptions per connection", m.maxSubscriptions))
		return
	}

	c.addSubscriptions(channels)
	m.mu.Lock()
	for _, ch := range channels {
		if m.channelSubs[ch] == nil {
			m.channelSubs[ch] = make(map[string]bool)
		}
		m.channelSubs[ch][c.id] = true
	}
	m.mu.Unlock()

	ctx := context.Background()
	for _, ch := range channels {
		if err := m.bus.IncrementPresence(ctx, ch); err != nil {
			m.log.Base().WithField("error", err).Warn("failed to increment channel presence")
		}
	}

	m.send(c, types.WSEnvelope{Type: types.WSMsgState, Data: map[string]interface{}{"subscribed": c.subscriptionList()}})

	for _, t := range tiers {
		m.sendReplay(c, msg.MatchID, t)
	}
}

func (m *Manager) handleUnsubscribe(c *connection, msg clientMessage) {
	if msg.MatchID == "" {
		m.sendError(c, "missing_match_id", "unsubscribe requires match_id")
		return
	}
	tiers := msg.Tiers
	if len(tiers) == 0 {
		tiers = []int{int(types.TierScoreboard), int(types.TierEvents), int(types.TierStats)}
	}

	channels := make([]string, 0, len(tiers))
	for _, t := range tiers {
		channels = append(channels, fanoutChannel(msg.MatchID, t))
	}
	c.removeSubscriptions(channels)

	m.mu.Lock()
	for _, ch := range channels {
		if subs, ok := m.channelSubs[ch]; ok {
			delete(subs, c.id)
			if len(subs) == 0 {
				delete(m.channelSubs, ch)
			}
		}
	}
	m.mu.Unlock()

	ctx := context.Background()
	for _, ch := range channels {
		if err := m.bus.DecrementPresence(ctx, ch); err != nil {
			m.log.Base().WithField("error", err).Warn("failed to decrement channel presence")
		}
	}

	m.send(c, types.WSEnvelope{Type: types.WSMsgState, Data: map[string]interface{}{"subscribed": c.subscriptionList()}})
}

func (m *Manager) handlePing(c *connection) {
	c.touchPong()
	m.send(c, types.WSEnvelope{Type: types.WSMsgPong, Timestamp: time.Now().Unix()})
}

var tierSnapshotNames = map[int]string{0: "scoreboard", 1: "events", 2: "stats"}

// sendReplay fetches the cached snapshot (and, for the events tier, the
// capped event-stream tail) so a newly subscribed client never misses
// state that existed before it connected.
func (m *Manager) sendReplay(c *connection, matchID string, tier int) {
	ctx := context.Background()
	tierName, ok := tierSnapshotNames[tier]
	if !ok {
		tierName = "scoreboard"
	}

	raw, err := m.bus.GetSnapshotRaw(ctx, matchID, tierName)
	if err == nil && len(raw) > 0 {
		var data interface{}
		if json.Unmarshal(raw, &data) == nil {
			m.send(c, types.WSEnvelope{
				Type: types.WSMsgSnapshot, MatchID: matchID, Tier: types.Tier(tier),
				Data: data, Replay: true,
			})
		}
	}

	if tier != int(types.TierEvents) {
		return
	}
	tail, err := m.bus.TailEvents(ctx, matchID, 100)
	if err != nil || len(tail) == 0 {
		return
	}
	events := make([]interface{}, 0, len(tail))
	for _, raw := range tail {
		var evt interface{}
		if json.Unmarshal(raw, &evt) == nil {
			events = append(events, evt)
		}
	}
	if len(events) == 0 {
		return
	}
	m.send(c, types.WSEnvelope{
		Type: types.WSMsgSnapshot, MatchID: matchID, Tier: types.TierEvents,
		Data: map[string]interface{}{"kind": "events_batch", "events": events}, Replay: true,
	})
}

// runPubsubBridge subscribes once to every fanout channel and fans each
// message out concurrently to the connections currently subscribed to it.
func (m *Manager) runPubsubBridge(ctx context.Context) {
	pubsub := m.bus.SubscribeFanout(ctx)
	defer pubsub.Close()
	m.log.Base().Info("fan-out pubsub bridge started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.fanOut(msg.Channel, msg.Payload)
		}
	}
}

func (m *Manager) fanOut(channel, payload string) {
	m.mu.RLock()
	subs := m.channelSubs[channel]
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	if len(ids) == 0 {
		return
	}

	matchID, tier := parseFanoutChannel(channel)
	var data interface{}
	if json.Unmarshal([]byte(payload), &data) != nil {
		return
	}
	envelope := types.WSEnvelope{
		Type: types.WSMsgDelta, MatchID: matchID, Tier: types.Tier(tier),
		Data: data, Timestamp: time.Now().Unix(),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}

	var wg sync.WaitGroup
	m.mu.RLock()
	for _, id := range ids {
		c, ok := m.connections[id]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(c *connection) {
			defer wg.Done()
			m.enqueue(c, raw)
		}(c)
	}
	m.mu.RUnlock()
	wg.Wait()
}

func (m *Manager) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepStaleConnections()
		}
	}
}

func (m *Manager) sweepStaleConnections() {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	deadline := m.heartbeatEvery + m.heartbeatTimeout
	for _, c := range conns {
		if time.Since(c.lastPong()) > deadline {
			m.log.Base().WithFields(map[string]interface{}{
				"connection_id": c.id, "alive_seconds": c.aliveSeconds(),
			}).Info("heartbeat timeout, closing connection")
			m.closeConnection(c, websocket.CloseNormalClosure, "heartbeat_timeout")
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			m.closeConnection(c, websocket.CloseNormalClosure, "heartbeat_timeout")
			continue
		}
		m.send(c, types.WSEnvelope{Type: types.WSMsgPing, Timestamp: time.Now().Unix()})
	}
}

func (m *Manager) send(c *connection, envelope types.WSEnvelope) {
	raw, err := json.Marshal(envelope)
	if err != nil {
		m.log.Base().WithField("error", err).Warn("failed to marshal ws envelope")
		return
	}
	m.enqueue(c, raw)
}

func (m *Manager) sendError(c *connection, code, message string) {
	m.send(c, types.WSEnvelope{Type: types.WSMsgError, Data: map[string]string{"code": code, "message": message}})
}

func (m *Manager) enqueue(c *connection, raw []byte) {
	select {
	case c.send <- raw:
	default:
		m.log.Base().WithField("connection_id", c.id).Warn("send buffer full, dropping slow connection")
		m.closeConnection(c, websocket.CloseMessageTooBig, "send_buffer_full")
	}
}

func (m *Manager) closeConnection(c *connection, code int, reason string) {
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.conn.Close()
	m.cleanupConnection(c)
}

func (m *Manager) cleanupConnection(c *connection) {
	m.mu.Lock()
	if _, ok := m.connections[c.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.connections, c.id)
	subs := c.subscriptionList()
	for _, ch := range subs {
		if s, ok := m.channelSubs[ch]; ok {
			delete(s, c.id)
			if len(s) == 0 {
				delete(m.channelSubs, ch)
			}
		}
	}
	m.mu.Unlock()

	if m.bus != nil {
		ctx := context.Background()
		for _, ch := range subs {
			m.bus.DecrementPresence(ctx, ch)
		}
	}

	close(c.send)
	if m.log != nil {
		m.log.Base().WithFields(map[string]interface{}{
			"connection_id": c.id, "alive_seconds": c.aliveSeconds(), "subscriptions": len(subs),
		}).Info("client disconnected")
	}
}

func (m *Manager) closeAll() {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		m.closeConnection(c, websocket.CloseGoingAway, "server_shutdown")
	}
	m.log.Base().WithField("total_connections", len(conns)).Info("fan-out manager stopped")
}

func fanoutChannel(matchID string, tier int) string {
	return fmt.Sprintf("fanout:match:%s:tier:%d", matchID, tier)
}

func parseFanoutChannel(channel string) (matchID string, tier int) {
	parts := strings.Split(channel, ":")
	if len(parts) > 2 {
		matchID = parts[2]
	}
	if len(parts) > 4 {
		tier, _ = strconv.Atoi(parts[4])
	}
	return matchID, tier
}
