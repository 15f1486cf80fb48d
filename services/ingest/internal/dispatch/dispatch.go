// Package dispatch implements the Ingest Service's poll-command consumer
// (spec.md §4.5): a pattern subscriber on ingest:poll_commands, bounded
// concurrency, and no requeue on failure — the Scheduler owns reissue.
package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/liveview-io/liveview/services/ingest/internal/providers"
	"github.com/liveview-io/liveview/services/ingest/internal/registry"
	"github.com/liveview-io/liveview/shared/normalize"
	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

// Dispatcher pulls PollCommands off the bus and fans them out to the
// Registry-selected provider, bounded by a semaphore so a burst of
// commands can never open unlimited concurrent upstream calls.
type Dispatcher struct {
	bus        *bus.Bus
	registry   *registry.Registry
	normalizer *normalize.Service
	log        *logger.Logger
	sem        chan struct{}
	healthWindowS int
}

func New(b *bus.Bus, reg *registry.Registry, norm *normalize.Service, log *logger.Logger, concurrency, healthWindowSeconds int) *Dispatcher {
	return &Dispatcher{
		bus: b, registry: reg, normalizer: norm, log: log,
		sem: make(chan struct{}, concurrency), healthWindowS: healthWindowSeconds,
	}
}

// Run subscribes to the poll-command channel and processes messages until
// ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	pubsub := d.bus.SubscribePollCommands(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var cmd types.PollCommand
			if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
				d.log.Base().WithField("error", err).Warn("dropping malformed poll command")
				continue
			}

			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(cmd types.PollCommand) {
				defer func() { <-d.sem }()
				d.process(ctx, cmd)
			}(cmd)
		}
	}
}

// process executes one poll command end-to-end: select provider, fetch,
// record health sample, normalize. Failures are logged, never requeued —
// the Scheduler will naturally reissue the command on its next tick.
func (d *Dispatcher) process(ctx context.Context, cmd types.PollCommand) {
	matchID, err := uuid.Parse(cmd.CanonicalMatchID)
	if err != nil {
		d.log.Base().WithField("error", err).Warn("poll command has invalid match id")
		return
	}

	name, conn, err := d.registry.SelectProvider(ctx, cmd.CanonicalMatchID, cmd.Tier, cmd.Sport)
	if err != nil {
		d.log.Base().WithFields(map[string]interface{}{"match_id": matchID, "tier": cmd.Tier, "error": err}).Warn("no provider available for poll command")
		return
	}

	var result types.ConnectorResult
	switch cmd.Tier {
	case types.TierScoreboard:
		result = conn.FetchScoreboard(ctx, cmd.Sport, cmd.MatchProviderID)
	case types.TierEvents:
		result = conn.FetchEvents(ctx, cmd.Sport, cmd.MatchProviderID)
	case types.TierStats:
		result = conn.FetchStats(ctx, cmd.Sport, cmd.MatchProviderID)
	}

	d.recordSample(ctx, name, result)

	if !result.Success {
		d.log.Base().WithFields(map[string]interface{}{
			"provider": name, "match_id": matchID, "tier": cmd.Tier, "error": result.Error,
		}).Warn("provider fetch failed")
		if result.RateLimited {
			d.bus.IncrementQuota(ctx, string(name))
		}
		return
	}
	d.bus.IncrementQuota(ctx, string(name))

	switch cmd.Tier {
	case types.TierScoreboard:
		if result.Scoreboard != nil {
			if _, err := d.normalizer.NormalizeScoreboard(ctx, matchID, *result.Scoreboard, name); err != nil {
				d.log.Base().WithField("error", err).Error("normalize scoreboard failed")
			}
		}
	case types.TierEvents:
		if result.Events != nil {
			if _, err := d.normalizer.NormalizeEvents(ctx, matchID, result.Events, name); err != nil {
				d.log.Base().WithField("error", err).Error("normalize events failed")
			}
		}
	case types.TierStats:
		if result.Stats != nil {
			if _, err := d.normalizer.NormalizeStats(ctx, matchID, *result.Stats, name); err != nil {
				d.log.Base().WithField("error", err).Error("normalize stats failed")
			}
		}
	}
}

func (d *Dispatcher) recordSample(ctx context.Context, provider types.ProviderName, result types.ConnectorResult) {
	sample := types.HealthSample{
		TS:          time.Now().Unix(),
		LatencyMS:   result.LatencyMS,
		IsError:     !result.Success,
		RateLimited: result.RateLimited,
	}
	if err := d.bus.RecordHealthSample(ctx, string(provider), sample, d.healthWindowS); err != nil {
		d.log.Base().WithField("error", err).Warn("failed to record health sample")
	}
}

// Connectors is a convenience constructor grouping every wired connector,
// in cascade-preference order, for the service's main().
func Connectors(espn, sportradar, footballData, theSportsDB providers.Connector) []providers.Connector {
	return []providers.Connector{sportradar, espn, footballData, theSportsDB}
}
