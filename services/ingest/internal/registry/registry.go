package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/liveview-io/liveview/services/ingest/internal/providers"
	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/pkg/providerhealth"
	"github.com/liveview-io/liveview/shared/types"
)

// Registry manages provider instances and runs the deterministic
// failover cascade described in spec.md §4.2: anti-flap pin check, then
// health+quota filtered cascade sorted by score, falling back to
// desperation mode (first cascade entry regardless of health) rather
// than failing the poll outright.
type Registry struct {
	byName        map[types.ProviderName]providers.Connector
	cascadeOrder  []types.ProviderName
	scorer        *providerhealth.Scorer
	bus           *bus.Bus
	healthThresh  float64
	flapTTL       time.Duration
	rpmLimit      int64
	log           *logger.Logger
}

func New(conns []providers.Connector, order []string, scorer *providerhealth.Scorer, b *bus.Bus, healthThreshold float64, flapTTL time.Duration, rpmLimit int, log *logger.Logger) *Registry {
	byName := make(map[types.ProviderName]providers.Connector, len(conns))
	for _, c := range conns {
		byName[c.Name()] = c
	}
	cascade := make([]types.ProviderName, 0, len(order))
	for _, name := range order {
		pn := types.ProviderName(name)
		if _, ok := byName[pn]; ok {
			cascade = append(cascade, pn)
		}
	}
	return &Registry{
		byName: byName, cascadeOrder: cascade, scorer: scorer, bus: b,
		healthThresh: healthThreshold, flapTTL: flapTTL, rpmLimit: int64(rpmLimit), log: log,
	}
}

func (r *Registry) Get(name types.ProviderName) providers.Connector {
	return r.byName[name]
}

func (r *Registry) All() map[types.ProviderName]providers.Connector {
	return r.byName
}

type candidate struct {
	score float64
	name  types.ProviderName
	conn  providers.Connector
}

// SelectProvider returns the best connector for a (match, tier, sport),
// pinning the choice in the bus for the anti-flap TTL.
func (r *Registry) SelectProvider(ctx context.Context, matchID string, tier types.Tier, sport types.Sport) (types.ProviderName, providers.Connector, error) {
	if pinned, err := r.bus.GetProviderSelection(ctx, matchID, int(tier)); err == nil && pinned != "" {
		pn := types.ProviderName(pinned)
		if conn, ok := r.byName[pn]; ok && conn.Supports(sport) {
			health, err := r.scorer.ComputeHealth(ctx, pn)
			if err == nil && health.Score >= r.healthThresh {
				if r.checkQuota(ctx, pn) {
					return pn, conn, nil
				}
				r.log.Base().WithFields(map[string]interface{}{"provider": pn, "match_id": matchID}).Info("pinned provider quota exceeded, re-evaluating")
			} else {
				r.log.Base().WithFields(map[string]interface{}{"provider": pn, "score": health.Score, "match_id": matchID}).Info("pinned provider unhealthy, re-evaluating")
			}
		}
	}

	var candidates []candidate
	for _, name := range r.cascadeOrder {
		conn, ok := r.byName[name]
		if !ok || !conn.Supports(sport) {
			continue
		}
		health, err := r.scorer.ComputeHealth(ctx, name)
		if err != nil || health.Score < r.healthThresh {
			continue
		}
		if !r.checkQuota(ctx, name) {
			continue
		}
		candidates = append(candidates, candidate{score: health.Score, name: name, conn: conn})
	}

	if len(candidates) == 0 {
		r.log.Base().WithFields(map[string]interface{}{"match_id": matchID, "tier": tier}).Warn("all providers degraded, using desperation fallback")
		for _, name := range r.cascadeOrder {
			conn, ok := r.byName[name]
			if ok && conn.Supports(sport) {
				r.pin(ctx, matchID, tier, name)
				return name, conn, nil
			}
		}
		return "", nil, fmt.Errorf("registry: no provider available for sport=%s tier=%d", sport, tier)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	best := candidates[0]
	r.pin(ctx, matchID, tier, best.name)
	r.log.Base().WithFields(map[string]interface{}{
		"provider": best.name, "match_id": matchID, "tier": tier, "health_score": best.score,
	}).Info("provider selected")
	return best.name, best.conn, nil
}

func (r *Registry) pin(ctx context.Context, matchID string, tier types.Tier, name types.ProviderName) {
	if err := r.bus.SetProviderSelection(ctx, matchID, int(tier), string(name), r.flapTTL); err != nil {
		r.log.Base().WithField("error", err).Warn("failed to pin provider selection")
	}
}

func (r *Registry) checkQuota(ctx context.Context, name types.ProviderName) bool {
	if r.rpmLimit <= 0 {
		return true
	}
	usage, err := r.bus.GetQuotaUsage(ctx, string(name))
	if err != nil {
		return true
	}
	return usage < r.rpmLimit
}

// AllHealth returns health scores for every registered provider, used by
// the health/readiness endpoints.
func (r *Registry) AllHealth(ctx context.Context) map[types.ProviderName]types.ProviderHealth {
	out := make(map[types.ProviderName]types.ProviderHealth, len(r.byName))
	for name := range r.byName {
		if h, err := r.scorer.ComputeHealth(ctx, name); err == nil {
			out[name] = h
		}
	}
	return out
}
