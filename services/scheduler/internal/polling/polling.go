// Package polling implements the Adaptive Polling Engine (spec.md §4.4),
// translated line-for-line from
// original_source/backend/scheduler/engine/polling.py.
package polling

import (
	"context"
	"math"
	"math/rand"

	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/types"
)

// sportTempo gives the base polling interval in seconds per sport and
// phase-tempo-key, before demand/health/quota adjustments.
var sportTempo = map[types.Sport]map[string]float64{
	types.SportSoccer: {
		"live_active": 3.0, "live_break": 15.0, "pre_match": 60.0, "scheduled": 120.0, "finished": 300.0,
	},
	types.SportBasketball: {
		"live_active": 2.0, "live_break": 10.0, "pre_match": 60.0, "scheduled": 120.0, "finished": 300.0,
	},
	types.SportHockey: {
		"live_active": 3.0, "live_break": 12.0, "pre_match": 60.0, "scheduled": 120.0, "finished": 300.0,
	},
	types.SportBaseball: {
		"live_active": 5.0, "live_break": 20.0, "pre_match": 60.0, "scheduled": 120.0, "finished": 300.0,
	},
	types.SportFootball: {
		"live_active": 3.0, "live_break": 15.0, "pre_match": 60.0, "scheduled": 120.0, "finished": 300.0,
	},
}

var tierMultipliers = map[types.Tier]float64{
	types.TierScoreboard: 1.0,
	types.TierEvents:     1.5,
	types.TierStats:      3.0,
}

func phaseTempoKey(phase types.MatchPhase) string {
	if phase.IsTerminal() {
		return "finished"
	}
	switch phase {
	case types.PhaseScheduled:
		return "scheduled"
	case types.PhasePreMatch:
		return "pre_match"
	case types.PhaseLiveHalftime, types.PhaseBreak:
		return "live_break"
	}
	if phase.IsLive() {
		return "live_active"
	}
	return "scheduled"
}

// Engine computes the adaptive per-(match,tier) polling interval.
type Engine struct {
	bus         *bus.Bus
	minInterval float64
	maxInterval float64
	jitterFactor float64
}

func NewEngine(b *bus.Bus, minIntervalS, maxIntervalS, jitterFactor float64) *Engine {
	return &Engine{bus: b, minInterval: minIntervalS, maxInterval: maxIntervalS, jitterFactor: jitterFactor}
}

// ComputeInterval returns the polling interval, in seconds, for one
// (match, sport, phase, tier) combination.
func (e *Engine) ComputeInterval(ctx context.Context, matchID string, sport types.Sport, phase types.MatchPhase, tier types.Tier, providerHealthScore float64, quotaUsage, quotaLimit int64) float64 {
	tempoKey := phaseTempoKey(phase)
	tempos, ok := sportTempo[sport]
	if !ok {
		tempos = sportTempo[types.SportSoccer]
	}
	base, ok := tempos[tempoKey]
	if !ok {
		base = 30.0
	}

	tierMult, ok := tierMultipliers[tier]
	if !ok {
		tierMult = 1.0
	}
	interval := base * tierMult

	subscribers, _ := e.bus.GetSubscriberCount(ctx, matchID)
	var demandFactor float64
	if subscribers > 0 {
		demandFactor = 1.0 / (1.0 + math.Log(1.0+float64(subscribers)))
	} else {
		demandFactor = 3.0
	}
	interval *= demandFactor

	healthFactor := 1.0 + (1.0-providerHealthScore)*2.0
	interval *= healthFactor

	if quotaLimit > 0 {
		usageRatio := float64(quotaUsage) / float64(quotaLimit)
		if usageRatio > 0.7 {
			quotaFactor := 1.0 + (usageRatio-0.7)*5.0
			if usageRatio > 0.9 {
				quotaFactor *= 2.0
			}
			interval *= quotaFactor
		}
	}

	if interval < e.minInterval {
		interval = e.minInterval
	}
	if interval > e.maxInterval {
		interval = e.maxInterval
	}

	jitterRange := interval * e.jitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange
	interval += jitter
	if interval < e.minInterval {
		interval = e.minInterval
	}

	return interval
}
