package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

// FootballDataConnector wraps football-data.org, a soccer-only provider
// carried in the cascade to diversify away from sportradar/ESPN outages
// during live soccer windows.
type FootballDataConnector struct {
	client *httpClient
}

func NewFootballDataConnector(apiKey string, timeout time.Duration, log *logger.Logger) *FootballDataConnector {
	c := newHTTPClient("football_data", "https://api.football-data.org/v4", apiKey, timeout, log)
	c.headers["X-Auth-Token"] = apiKey
	return &FootballDataConnector{client: c}
}

func (c *FootballDataConnector) Name() types.ProviderName { return types.ProviderFootballData }

func (c *FootballDataConnector) Supports(sport types.Sport) bool { return sport == types.SportSoccer }

type footballDataMatch struct {
	Status string `json:"status"`
	Score  struct {
		FullTime struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		} `json:"fullTime"`
		HalfTime struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		} `json:"halfTime"`
	} `json:"score"`
	Minute *int `json:"minute"`
}

func (c *FootballDataConnector) FetchScoreboard(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderFootballData, types.TierScoreboard, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, fmt.Sprintf("/matches/%s", matchProviderID), nil)
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		var parsed footballDataMatch
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			return types.ConnectorResult{}, fmt.Errorf("football_data: decode match: %w", err)
		}
		home, away := 0, 0
		if parsed.Score.FullTime.Home != nil {
			home, away = *parsed.Score.FullTime.Home, *parsed.Score.FullTime.Away
		}
		clock := ""
		if parsed.Minute != nil {
			clock = fmt.Sprintf("%d'", *parsed.Minute)
		}
		return types.ConnectorResult{
			Success: true,
			Scoreboard: &types.ScoreboardPayload{
				Sport:     sport,
				Score:     types.Score{Home: home, Away: away},
				Phase:     footballDataPhaseToCanonical(parsed.Status),
				Clock:     clock,
				UpdatedAt: time.Now().UTC(),
			},
		}, nil
	})
}

// FetchEvents: football-data.org's free tier does not expose a
// match-events endpoint; this provider participates only in tier-0
// cascades.
func (c *FootballDataConnector) FetchEvents(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return types.ConnectorResult{
		Provider: types.ProviderFootballData, Tier: types.TierEvents,
		Success: false, Error: "football_data: event detail not available",
	}
}

func (c *FootballDataConnector) FetchStats(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return types.ConnectorResult{
		Provider: types.ProviderFootballData, Tier: types.TierStats,
		Success: false, Error: "football_data: statistics not available",
	}
}

func (c *FootballDataConnector) FetchLeagueSchedule(ctx context.Context, sport types.Sport, leagueProviderID string, from, to time.Time) types.ConnectorResult {
	return timed(types.ProviderFootballData, types.TierScoreboard, func() (types.ConnectorResult, error) {
		_, err := c.client.get(ctx, fmt.Sprintf("/competitions/%s/matches", leagueProviderID), map[string]string{
			"dateFrom": from.Format("2006-01-02"),
			"dateTo":   to.Format("2006-01-02"),
		})
		if err != nil {
			return types.ConnectorResult{}, err
		}
		return types.ConnectorResult{Success: true}, nil
	})
}

func footballDataPhaseToCanonical(status string) types.MatchPhase {
	switch status {
	case "SCHEDULED", "TIMED":
		return types.PhaseScheduled
	case "IN_PLAY":
		return types.PhaseLiveFirstHalf
	case "PAUSED":
		return types.PhaseLiveHalftime
	case "FINISHED":
		return types.PhaseFinished
	case "POSTPONED":
		return types.PhasePostponed
	case "CANCELLED":
		return types.PhaseCancelled
	case "SUSPENDED":
		return types.PhaseSuspended
	default:
		return types.PhaseScheduled
	}
}
