package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

// TheSportsDBConnector is the last-resort cascade entry: free tier, no
// per-minute event detail, scoreboard/schedule only. It never returns an
// events/stats payload. The Registry does not check which tiers a provider
// serves, so when this provider is selected for those tiers the poll fails
// and is recorded as an error health sample.
type TheSportsDBConnector struct {
	client *httpClient
}

func NewTheSportsDBConnector(apiKey string, timeout time.Duration, log *logger.Logger) *TheSportsDBConnector {
	key := apiKey
	if key == "" {
		key = "3" // thesportsdb's published free test key
	}
	return &TheSportsDBConnector{
		client: newHTTPClient("thesportsdb", "https://www.thesportsdb.com/api/v1/json/"+key, "", timeout, log),
	}
}

func (c *TheSportsDBConnector) Name() types.ProviderName { return types.ProviderTheSportsDB }

func (c *TheSportsDBConnector) Supports(sport types.Sport) bool {
	switch sport {
	case types.SportSoccer, types.SportBasketball, types.SportHockey, types.SportBaseball:
		return true
	default:
		return false
	}
}

type tsdbEvent struct {
	StrStatus  string `json:"strStatus"`
	IntHomeScore string `json:"intHomeScore"`
	IntAwayScore string `json:"intAwayScore"`
	StrProgress string `json:"strProgress"`
}

type tsdbEventsResponse struct {
	Events []tsdbEvent `json:"events"`
}

func (c *TheSportsDBConnector) FetchScoreboard(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderTheSportsDB, types.TierScoreboard, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, "/lookupevent.php", map[string]string{"id": matchProviderID})
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		var parsed tsdbEventsResponse
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			return types.ConnectorResult{}, fmt.Errorf("thesportsdb: decode event: %w", err)
		}
		if len(parsed.Events) == 0 {
			return types.ConnectorResult{}, fmt.Errorf("thesportsdb: event not found")
		}
		ev := parsed.Events[0]
		var home, away int
		fmt.Sscanf(ev.IntHomeScore, "%d", &home)
		fmt.Sscanf(ev.IntAwayScore, "%d", &away)
		return types.ConnectorResult{
			Success: true,
			Scoreboard: &types.ScoreboardPayload{
				Sport:     sport,
				Score:     types.Score{Home: home, Away: away},
				Phase:     tsdbPhaseToCanonical(ev.StrStatus),
				Clock:     ev.StrProgress,
				UpdatedAt: time.Now().UTC(),
			},
		}, nil
	})
}

// FetchEvents always fails: thesportsdb's free tier exposes no event-level
// detail, so this provider only ever returns tier-0 scoreboard data.
func (c *TheSportsDBConnector) FetchEvents(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return types.ConnectorResult{
		Provider: types.ProviderTheSportsDB, Tier: types.TierEvents,
		Success: false, Error: "thesportsdb: event detail not available on this tier",
	}
}

func (c *TheSportsDBConnector) FetchStats(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return types.ConnectorResult{
		Provider: types.ProviderTheSportsDB, Tier: types.TierStats,
		Success: false, Error: "thesportsdb: statistics not available on this tier",
	}
}

func (c *TheSportsDBConnector) FetchLeagueSchedule(ctx context.Context, sport types.Sport, leagueProviderID string, from, to time.Time) types.ConnectorResult {
	return timed(types.ProviderTheSportsDB, types.TierScoreboard, func() (types.ConnectorResult, error) {
		_, err := c.client.get(ctx, "/eventsseason.php", map[string]string{"id": leagueProviderID})
		if err != nil {
			return types.ConnectorResult{}, err
		}
		return types.ConnectorResult{Success: true}, nil
	})
}

func tsdbPhaseToCanonical(status string) types.MatchPhase {
	switch status {
	case "Match Finished", "FT":
		return types.PhaseFinished
	case "Not Started", "NS":
		return types.PhaseScheduled
	case "Postponed":
		return types.PhasePostponed
	case "Cancelled":
		return types.PhaseCancelled
	case "":
		return types.PhaseScheduled
	default:
		return types.PhaseLiveFirstHalf
	}
}
