// Package providerhealth implements the Health Scorer (spec.md §4.2),
// translated from
// original_source/backend/ingest/providers/registry.py's HealthScorer.
// It is shared between the Ingest service (which records samples and
// evaluates the failover cascade) and the Scheduler (which reads the same
// score to slow down polling against a degraded provider).
package providerhealth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/types"
)

const (
	weightErrorRate = 0.40
	weightLatency   = 0.25
	weightRateLimit = 0.20
	weightFreshness = 0.15

	maxLatencyMS      = 5000.0
	maxRateLimitHits  = 10.0
	maxFreshnessLagMS = 10000.0
	coldStartScore    = 0.8
)

// Scorer computes ProviderHealth from a provider's rolling sample window
// stored in the bus.
type Scorer struct {
	bus     *bus.Bus
	windowS int
}

func NewScorer(b *bus.Bus, windowSeconds int) *Scorer {
	return &Scorer{bus: b, windowS: windowSeconds}
}

// ComputeHealth scores a provider. An empty sample window returns a
// neutral 0.8 score — cold start gets the benefit of the doubt, never a
// floor of zero.
func (h *Scorer) ComputeHealth(ctx context.Context, provider types.ProviderName) (types.ProviderHealth, error) {
	raws, err := h.bus.GetProviderSamples(ctx, string(provider))
	if err != nil {
		return types.ProviderHealth{}, err
	}

	now := time.Now().Unix()
	var recent []types.HealthSample
	for _, raw := range raws {
		var s types.HealthSample
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		if now-s.TS <= int64(h.windowS) {
			recent = append(recent, s)
		}
	}

	if len(recent) == 0 {
		return types.ProviderHealth{Provider: provider, Score: coldStartScore, SampleCount: 0}, nil
	}

	total := len(recent)
	errors, rateLimits := 0, 0
	var latencySum float64
	latencyCount := 0
	lastSuccessTS := int64(0)
	hasSuccess := false

	for _, s := range recent {
		if s.IsError {
			errors++
		} else {
			hasSuccess = true
			if s.TS > lastSuccessTS {
				lastSuccessTS = s.TS
			}
		}
		if s.RateLimited {
			rateLimits++
		}
		if s.LatencyMS > 0 {
			latencySum += float64(s.LatencyMS)
			latencyCount++
		}
	}

	avgLatency := 0.0
	if latencyCount > 0 {
		avgLatency = latencySum / float64(latencyCount)
	}

	freshnessLagMS := maxFreshnessLagMS
	if hasSuccess {
		freshnessLagMS = float64(now-lastSuccessTS) * 1000
	}

	errorRate := float64(errors) / float64(total)

	errComponent := 1.0 - errorRate
	latComponent := 1.0 - minF(avgLatency/maxLatencyMS, 1.0)
	rlComponent := 1.0 - minF(float64(rateLimits)/maxRateLimitHits, 1.0)
	freshComponent := 1.0 - minF(freshnessLagMS/maxFreshnessLagMS, 1.0)

	score := weightErrorRate*errComponent + weightLatency*latComponent + weightRateLimit*rlComponent + weightFreshness*freshComponent
	score = clamp(score, 0.0, 1.0)

	return types.ProviderHealth{
		Provider:       provider,
		ErrorRate:      errorRate,
		AvgLatencyMS:   avgLatency,
		RateLimitHits:  rateLimits,
		FreshnessLagMS: freshnessLagMS,
		Score:          score,
		SampleCount:    total,
	}, nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
