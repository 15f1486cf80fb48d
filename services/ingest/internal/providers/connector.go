// Package providers implements the per-provider×sport fetchers described
// in spec.md §4.1. Each Connector is stateless: callers supply sport and
// provider-specific identifiers per call, and every outcome — including
// network failures — comes back as a tagged ConnectorResult rather than an
// error return, so the Registry's cascade logic never has to distinguish
// "call failed" from "call succeeded with bad news" through error types.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/liveview-io/liveview/shared/types"
)

// Connector is implemented once per upstream data provider.
type Connector interface {
	Name() types.ProviderName
	Supports(sport types.Sport) bool

	FetchScoreboard(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult
	FetchEvents(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult
	FetchStats(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult
	FetchLeagueSchedule(ctx context.Context, sport types.Sport, leagueProviderID string, from, to time.Time) types.ConnectorResult
}

// timed runs fn and wraps the elapsed time plus panics-as-errors into the
// common ConnectorResult shape every concrete connector method returns.
func timed(provider types.ProviderName, tier types.Tier, fn func() (types.ConnectorResult, error)) (res types.ConnectorResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = types.ConnectorResult{Success: false, Error: fmt.Sprintf("panic: %v", r)}
		}
		res.Provider = provider
		res.Tier = tier
		res.LatencyMS = time.Since(start).Milliseconds()
	}()
	res, err := fn()
	if err != nil {
		res.Success = false
		res.Error = err.Error()
	}
	return res
}
