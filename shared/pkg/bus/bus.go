// Package bus wraps the Redis-backed control/fan-out bus described in
// spec.md §6: pub/sub channels, capped streams, snapshot cache, presence
// counters, provider-selection pins, quota counters, health sample ring
// buffers, and the scheduler leader lock. Grounded on the teacher's
// CacheService (backend/internal/services/cache.go) and EventPublisher/
// EventProcessor (services/realtime-service/internal/events), generalized
// from DFS lineup caching to the platform's match/provider keyspace.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bus is the single Redis-backed collaborator every service depends on.
type Bus struct {
	Client *redis.Client
}

func New(client *redis.Client) *Bus {
	return &Bus{Client: client}
}

// --- Key helpers -----------------------------------------------------------

func snapKey(matchID, tierName string) string {
	return fmt.Sprintf("snap:match:%s:%s", matchID, tierName)
}

func fanoutChannel(matchID string, tier int) string {
	return fmt.Sprintf("fanout:match:%s:tier:%d", matchID, tier)
}

func eventStreamKey(matchID string) string {
	return fmt.Sprintf("stream:match:%s:events", matchID)
}

func healthKey(provider string) string {
	return fmt.Sprintf("health:provider:%s", provider)
}

func selectionKey(matchID string, tier int) string {
	return fmt.Sprintf("select:match:%s:tier:%d", matchID, tier)
}

func quotaKey(provider string) string {
	return fmt.Sprintf("quota:provider:%s:window", provider)
}

func presenceKey(channel string) string {
	return fmt.Sprintf("presence:count:%s", channel)
}

func builderPrevSnapKey(matchID string) string {
	return fmt.Sprintf("builder:prev_snap:%s", matchID)
}

func disputeKey(matchID string) string {
	return fmt.Sprintf("dispute:match:%s", matchID)
}

func lastCheckedKey(matchID string) string {
	return fmt.Sprintf("verification:last_checked:%s", matchID)
}

func confidenceKey(matchID string) string {
	return fmt.Sprintf("verification:confidence:%s", matchID)
}

const disputesSetKey = "verification:disputes"
const pollCommandsChannel = "ingest:poll_commands"

// --- Snapshots (C4 Normalizer writes, C9 Fan-Out replays) ------------------

// SetSnapshot writes a JSON snapshot with the given TTL (default 300s per spec).
func (b *Bus) SetSnapshot(ctx context.Context, matchID, tierName string, payload interface{}, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal snapshot: %w", err)
	}
	return b.Client.Set(ctx, snapKey(matchID, tierName), data, ttl).Err()
}

// GetSnapshotRaw returns the raw cached JSON bytes, or nil if absent.
func (b *Bus) GetSnapshotRaw(ctx context.Context, matchID, tierName string) ([]byte, error) {
	val, err := b.Client.Get(ctx, snapKey(matchID, tierName)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bus: get snapshot: %w", err)
	}
	return val, nil
}

// --- Fan-out pub/sub (C4 publishes, C9 subscribes) -------------------------

// PublishDelta publishes a JSON payload on the per-(match,tier) channel.
func (b *Bus) PublishDelta(ctx context.Context, matchID string, tier int, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal delta: %w", err)
	}
	return b.Client.Publish(ctx, fanoutChannel(matchID, tier), data).Err()
}

// SubscribeFanout opens a single pattern subscription across every
// fanout:match:*:tier:* channel, per §4.8 (a per-sport sharding alternative
// is noted as future work, not adopted here).
func (b *Bus) SubscribeFanout(ctx context.Context) *redis.PubSub {
	return b.Client.PSubscribe(ctx, "fanout:match:*:tier:*")
}

// --- Capped event stream (C4 appends, C9 replays the tail) -----------------

const eventStreamCap = 500

// AppendEvent appends a normalized event JSON blob to the match's capped stream.
func (b *Bus) AppendEvent(ctx context.Context, matchID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}
	return b.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey(matchID),
		MaxLen: eventStreamCap,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	}).Err()
}

// TailEvents reads up to `count` most recent entries from a match's event stream.
func (b *Bus) TailEvents(ctx context.Context, matchID string, count int64) ([][]byte, error) {
	entries, err := b.Client.XRevRangeN(ctx, eventStreamKey(matchID), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: tail events: %w", err)
	}
	out := make([][]byte, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		if raw, ok := entries[i].Values["data"].(string); ok {
			out = append(out, []byte(raw))
		}
	}
	return out, nil
}

// --- Provider health samples (C2 records, C3 scores) -----------------------

const healthSampleCap = 500

// RecordHealthSample appends a sample to a provider's rolling window list.
func (b *Bus) RecordHealthSample(ctx context.Context, provider string, sample interface{}, windowSeconds int) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("bus: marshal health sample: %w", err)
	}
	key := healthKey(provider)
	pipe := b.Client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, healthSampleCap-1)
	pipe.Expire(ctx, key, time.Duration(windowSeconds)*2*time.Second)
	_, err = pipe.Exec(ctx)
	return err
}

// GetProviderSamples returns raw JSON health samples for a provider, newest first.
func (b *Bus) GetProviderSamples(ctx context.Context, provider string) ([][]byte, error) {
	raws, err := b.Client.LRange(ctx, healthKey(provider), 0, healthSampleCap-1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("bus: get provider samples: %w", err)
	}
	out := make([][]byte, 0, len(raws))
	for _, r := range raws {
		out = append(out, []byte(r))
	}
	return out, nil
}

// --- Provider selection pin (C3 anti-flap) ---------------------------------

// SetProviderSelection pins a provider for (matchID, tier) for ttlSeconds.
func (b *Bus) SetProviderSelection(ctx context.Context, matchID string, tier int, provider string, ttl time.Duration) error {
	return b.Client.Set(ctx, selectionKey(matchID, tier), provider, ttl).Err()
}

// GetProviderSelection returns the pinned provider name, or "" if unpinned.
func (b *Bus) GetProviderSelection(ctx context.Context, matchID string, tier int) (string, error) {
	val, err := b.Client.Get(ctx, selectionKey(matchID, tier)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bus: get provider selection: %w", err)
	}
	return val, nil
}

// --- Quota counters (C3 quota-aware selection) -----------------------------

// IncrementQuota increments a provider's 60s sliding-window usage counter.
func (b *Bus) IncrementQuota(ctx context.Context, provider string) (int64, error) {
	key := quotaKey(provider)
	pipe := b.Client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 60*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("bus: increment quota: %w", err)
	}
	return incr.Val(), nil
}

// GetQuotaUsage returns the current 60s usage counter for a provider.
func (b *Bus) GetQuotaUsage(ctx context.Context, provider string) (int64, error) {
	val, err := b.Client.Get(ctx, quotaKey(provider)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("bus: get quota usage: %w", err)
	}
	return val, nil
}

// --- Presence counters (C9 increments/decrements, C5 reads as demand) ------

// IncrementPresence bumps a channel's subscriber-presence counter (TTL 120s).
func (b *Bus) IncrementPresence(ctx context.Context, channel string) error {
	key := presenceKey(channel)
	pipe := b.Client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 120*time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

// DecrementPresence lowers a channel's subscriber-presence counter, floored at 0.
func (b *Bus) DecrementPresence(ctx context.Context, channel string) error {
	key := presenceKey(channel)
	val, err := b.Client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("bus: decrement presence: %w", err)
	}
	if val < 0 {
		b.Client.Set(ctx, key, 0, 120*time.Second)
	}
	return nil
}

// GetSubscriberCount returns the tier-0 scoreboard channel's presence count
// for a match, the demand signal for adaptive polling (§4.4).
func (b *Bus) GetSubscriberCount(ctx context.Context, matchID string) (int, error) {
	val, err := b.Client.Get(ctx, presenceKey(fanoutChannel(matchID, 0))).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("bus: get subscriber count: %w", err)
	}
	return val, nil
}

// --- Poll command channel (C5 publishes, C6 consumes) ----------------------

// PublishPollCommand publishes a poll command JSON payload.
func (b *Bus) PublishPollCommand(ctx context.Context, cmd interface{}) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("bus: marshal poll command: %w", err)
	}
	return b.Client.Publish(ctx, pollCommandsChannel, data).Err()
}

// SubscribePollCommands subscribes to the poll-command channel.
func (b *Bus) SubscribePollCommands(ctx context.Context) *redis.PubSub {
	return b.Client.Subscribe(ctx, pollCommandsChannel)
}

// --- Builder's previous-snapshot memory (C7) --------------------------------

// SetBuilderPrevSnapshot persists the scoreboard the Builder last saw for a
// match, 1h TTL, so synthetic generation survives process restarts.
func (b *Bus) SetBuilderPrevSnapshot(ctx context.Context, matchID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal builder prev snapshot: %w", err)
	}
	return b.Client.Set(ctx, builderPrevSnapKey(matchID), data, time.Hour).Err()
}

func (b *Bus) GetBuilderPrevSnapshot(ctx context.Context, matchID string) ([]byte, error) {
	val, err := b.Client.Get(ctx, builderPrevSnapKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bus: get builder prev snapshot: %w", err)
	}
	return val, nil
}

func (b *Bus) DeleteBuilderPrevSnapshot(ctx context.Context, matchID string) error {
	return b.Client.Del(ctx, builderPrevSnapKey(matchID)).Err()
}

// --- Verifier disputes (C8) -------------------------------------------------

func (b *Bus) SetDispute(ctx context.Context, matchID string, record interface{}, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("bus: marshal dispute: %w", err)
	}
	key := disputeKey(matchID)
	pipe := b.Client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.SAdd(ctx, disputesSetKey, key)
	_, err = pipe.Exec(ctx)
	return err
}

func (b *Bus) ClearDispute(ctx context.Context, matchID string) error {
	key := disputeKey(matchID)
	pipe := b.Client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, disputesSetKey, key)
	_, err := pipe.Exec(ctx)
	return err
}

// SetLastChecked records the wall-clock time of the most recent verification
// pass for a match, at the contract key verification:last_checked:{id}
// (spec.md §6), mirroring reconciliation.py's bookkeeping write.
func (b *Bus) SetLastChecked(ctx context.Context, matchID string, ttl time.Duration) error {
	return b.Client.Set(ctx, lastCheckedKey(matchID), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// SetConfidence persists the Verifier's arbitration score for a match at
// the contract key verification:confidence:{id} (spec.md §6), mirroring
// reconciliation.py's confidence bookkeeping write.
func (b *Bus) SetConfidence(ctx context.Context, matchID string, score float64, ttl time.Duration) error {
	return b.Client.Set(ctx, confidenceKey(matchID), score, ttl).Err()
}

// --- Leader election (C5) ---------------------------------------------------

const leaderKey = "leader:scheduler"

// renewScript atomically extends the leader TTL only if instanceID still
// holds the lock — a compare-and-renew, not a blind EXPIRE.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

// releaseScript atomically deletes the lock only if instanceID still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// TryAcquireLeader attempts to become scheduler leader via SETNX with a TTL.
// Returns true if this instance now holds the lock.
func (b *Bus) TryAcquireLeader(ctx context.Context, instanceID string, ttl time.Duration) (bool, error) {
	ok, err := b.Client.SetNX(ctx, leaderKey, instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("bus: acquire leader: %w", err)
	}
	return ok, nil
}

// RenewLeader extends the lock's TTL if instanceID still holds it.
func (b *Bus) RenewLeader(ctx context.Context, instanceID string, ttl time.Duration) (bool, error) {
	res, err := renewScript.Run(ctx, b.Client, []string{leaderKey}, instanceID, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("bus: renew leader: %w", err)
	}
	return res == 1, nil
}

// ReleaseLeader deletes the lock if instanceID still holds it.
func (b *Bus) ReleaseLeader(ctx context.Context, instanceID string) error {
	_, err := releaseScript.Run(ctx, b.Client, []string{leaderKey}, instanceID).Result()
	if err != nil {
		return fmt.Errorf("bus: release leader: %w", err)
	}
	return nil
}

// CurrentLeader returns the instance_id currently holding leadership, if any.
func (b *Bus) CurrentLeader(ctx context.Context) (string, error) {
	val, err := b.Client.Get(ctx, leaderKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("bus: current leader: %w", err)
	}
	return val, nil
}

// JitteredBackoff returns an exponential backoff duration, base*2^attempt,
// used by service startup loops tolerating transient DB/Redis unavailability.
func JitteredBackoff(attempt int, base time.Duration, max time.Duration) time.Duration {
	d := base * time.Duration(math.Pow(2, float64(attempt)))
	if d > max {
		return max
	}
	return d
}
