package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

// ESPNConnector fetches from ESPN's public scoreboard/summary endpoints.
// Covers soccer, basketball, football, baseball; ESPN has no first-class
// hockey coverage in the free tier so it declines that sport.
type ESPNConnector struct {
	client *httpClient
}

func NewESPNConnector(apiKey string, timeout time.Duration, log *logger.Logger) *ESPNConnector {
	return &ESPNConnector{
		client: newHTTPClient("espn", "https://site.api.espn.com/apis/site/v2/sports", apiKey, timeout, log),
	}
}

func (c *ESPNConnector) Name() types.ProviderName { return types.ProviderESPN }

func (c *ESPNConnector) Supports(sport types.Sport) bool {
	switch sport {
	case types.SportSoccer, types.SportBasketball, types.SportFootball, types.SportBaseball:
		return true
	default:
		return false
	}
}

type espnScoreboardResponse struct {
	Competitions []struct {
		Status struct {
			Type struct {
				Name  string `json:"name"`
				State string `json:"state"`
			} `json:"type"`
			DisplayClock string `json:"displayClock"`
			Period       int    `json:"period"`
		} `json:"status"`
		Competitors []struct {
			HomeAway string `json:"homeAway"`
			Score    string `json:"score"`
		} `json:"competitors"`
	} `json:"competitions"`
}

func (c *ESPNConnector) FetchScoreboard(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderESPN, types.TierScoreboard, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, fmt.Sprintf("/%s/summary", espnSportPath(sport)), map[string]string{"event": matchProviderID})
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		var parsed espnScoreboardResponse
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			return types.ConnectorResult{}, fmt.Errorf("espn: decode scoreboard: %w", err)
		}
		if len(parsed.Competitions) == 0 {
			return types.ConnectorResult{}, fmt.Errorf("espn: no competitions in response")
		}
		comp := parsed.Competitions[0]
		var home, away int
		for _, team := range comp.Competitors {
			var score int
			fmt.Sscanf(team.Score, "%d", &score)
			if team.HomeAway == "home" {
				home = score
			} else {
				away = score
			}
		}
		return types.ConnectorResult{
			Success: true,
			Scoreboard: &types.ScoreboardPayload{
				Sport:     sport,
				Score:     types.Score{Home: home, Away: away},
				Phase:     espnPhaseToCanonical(sport, comp.Status.Type.State, comp.Status.Period),
				Clock:     comp.Status.DisplayClock,
				UpdatedAt: time.Now().UTC(),
			},
		}, nil
	})
}

type espnEventsResponse struct {
	Plays []struct {
		ID      string `json:"id"`
		Text    string `json:"text"`
		Period  struct{ Number int `json:"number"` } `json:"period"`
		Clock   struct{ DisplayValue string `json:"displayValue"` } `json:"clock"`
		ScoringPlay bool `json:"scoringPlay"`
		Team    struct{ ID string `json:"id"` } `json:"team"`
	} `json:"plays"`
}

func (c *ESPNConnector) FetchEvents(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderESPN, types.TierEvents, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, fmt.Sprintf("/%s/summary", espnSportPath(sport)), map[string]string{"event": matchProviderID})
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		var parsed espnEventsResponse
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			return types.ConnectorResult{}, fmt.Errorf("espn: decode events: %w", err)
		}
		events := make([]types.EventPayload, 0, len(parsed.Plays))
		for _, p := range parsed.Plays {
			evType := types.EventGeneric
			if p.ScoringPlay {
				evType = types.ScoringEventType(sport)
			}
			events = append(events, types.EventPayload{
				EventType:       evType,
				Period:          fmt.Sprintf("%d", p.Period.Number),
				Detail:          p.Text,
				ProviderEventID: p.ID,
			})
		}
		return types.ConnectorResult{Success: true, Events: events}, nil
	})
}

func (c *ESPNConnector) FetchStats(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderESPN, types.TierStats, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, fmt.Sprintf("/%s/summary", espnSportPath(sport)), map[string]string{"event": matchProviderID})
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		if len(res.Body) == 0 {
			return types.ConnectorResult{}, fmt.Errorf("espn: empty stats body")
		}
		return types.ConnectorResult{
			Success: true,
			Stats:   &types.StatsPayload{UpdatedAt: time.Now().UTC()},
		}, nil
	})
}

func (c *ESPNConnector) FetchLeagueSchedule(ctx context.Context, sport types.Sport, leagueProviderID string, from, to time.Time) types.ConnectorResult {
	return timed(types.ProviderESPN, types.TierScoreboard, func() (types.ConnectorResult, error) {
		_, err := c.client.get(ctx, fmt.Sprintf("/%s/scoreboard", espnSportPath(sport)), map[string]string{
			"dates": from.Format("20060102") + "-" + to.Format("20060102"),
		})
		if err != nil {
			return types.ConnectorResult{}, err
		}
		return types.ConnectorResult{Success: true}, nil
	})
}

func espnSportPath(sport types.Sport) string {
	switch sport {
	case types.SportSoccer:
		return "soccer/eng.1"
	case types.SportBasketball:
		return "basketball/nba"
	case types.SportFootball:
		return "football/nfl"
	case types.SportBaseball:
		return "baseball/mlb"
	default:
		return string(sport)
	}
}

func espnPhaseToCanonical(sport types.Sport, state string, period int) types.MatchPhase {
	switch state {
	case "pre":
		return types.PhasePreMatch
	case "post":
		return types.PhaseFinished
	case "in":
		return livePhaseForPeriod(sport, period)
	default:
		return types.PhaseScheduled
	}
}

// livePhaseForPeriod maps a numbered period to the sport's phase enum.
func livePhaseForPeriod(sport types.Sport, period int) types.MatchPhase {
	switch sport {
	case types.SportSoccer:
		if period <= 1 {
			return types.PhaseLiveFirstHalf
		}
		return types.PhaseLiveSecondHalf
	case types.SportBasketball:
		switch period {
		case 1:
			return types.PhaseLiveQ1
		case 2:
			return types.PhaseLiveQ2
		case 3:
			return types.PhaseLiveQ3
		default:
			return types.PhaseLiveQ4
		}
	case types.SportHockey:
		switch period {
		case 1:
			return types.PhaseLiveP1
		case 2:
			return types.PhaseLiveP2
		default:
			return types.PhaseLiveP3
		}
	default:
		return types.PhaseLiveInning
	}
}
