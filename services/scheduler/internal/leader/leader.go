// Package leader implements the Scheduler's leader election (spec.md
// §4.4): SETNX + TTL to acquire, then a compare-and-renew Lua script so
// only the instance that still holds the lock can extend it, and a
// compare-and-delete script so a graceful shutdown never releases a lock
// another instance has since acquired. Grounded on
// original_source/backend/shared/utils/redis_manager.py's lock pattern.
package leader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
)

// Elector runs a background renew loop while this instance believes it
// holds leadership, and reports leadership transitions through IsLeader.
type Elector struct {
	bus        *bus.Bus
	log        *logger.Logger
	instanceID string
	ttl        time.Duration
	renewEvery time.Duration

	isLeader atomic.Bool
}

func New(b *bus.Bus, log *logger.Logger, ttl, renewEvery time.Duration) *Elector {
	return &Elector{
		bus: b, log: log,
		instanceID: uuid.New().String(),
		ttl:        ttl, renewEvery: renewEvery,
	}
}

// IsLeader reports this instance's last-known leadership state. Cheap and
// lock-free (an atomic load); the scheduler's tick loop polls it every
// iteration, and the /status HTTP handler reads it concurrently from a
// different goroutine than Run's renew loop.
func (e *Elector) IsLeader() bool { return e.isLeader.Load() }

// Run attempts to acquire/retain leadership until ctx is cancelled,
// releasing the lock cleanly on exit if still held.
func (e *Elector) Run(ctx context.Context) {
	ticker := time.NewTicker(e.renewEvery)
	defer ticker.Stop()
	defer e.release(context.Background())

	e.tryBecomeLeader(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.isLeader.Load() {
				e.renew(ctx)
			} else {
				e.tryBecomeLeader(ctx)
			}
		}
	}
}

func (e *Elector) tryBecomeLeader(ctx context.Context) {
	ok, err := e.bus.TryAcquireLeader(ctx, e.instanceID, e.ttl)
	if err != nil {
		e.log.Base().WithField("error", err).Warn("leader acquisition check failed")
		return
	}
	if ok && !e.isLeader.Load() {
		e.log.Base().WithField("instance_id", e.instanceID).Info("became scheduler leader")
	}
	e.isLeader.Store(ok)
}

func (e *Elector) renew(ctx context.Context) {
	ok, err := e.bus.RenewLeader(ctx, e.instanceID, e.ttl)
	if err != nil {
		e.log.Base().WithField("error", err).Warn("leader renewal check failed")
		return
	}
	if !ok && e.isLeader.Load() {
		e.log.Base().WithField("instance_id", e.instanceID).Warn("lost scheduler leadership")
	}
	e.isLeader.Store(ok)
}

func (e *Elector) release(ctx context.Context) {
	if !e.isLeader.Load() {
		return
	}
	if err := e.bus.ReleaseLeader(ctx, e.instanceID); err != nil {
		e.log.Base().WithField("error", err).Warn("failed to release leader lock on shutdown")
	}
}
