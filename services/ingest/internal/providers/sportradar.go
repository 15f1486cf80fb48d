package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

// SportradarConnector is the primary cascade entry: it covers every
// supported sport and carries the richest event/stats payloads.
type SportradarConnector struct {
	client *httpClient
}

func NewSportradarConnector(apiKey string, timeout time.Duration, log *logger.Logger) *SportradarConnector {
	return &SportradarConnector{
		client: newHTTPClient("sportradar", "https://api.sportradar.com", apiKey, timeout, log),
	}
}

func (c *SportradarConnector) Name() types.ProviderName { return types.ProviderSportradar }

func (c *SportradarConnector) Supports(sport types.Sport) bool { return true }

type sportradarSummary struct {
	SportEvent struct {
		Status string `json:"status"`
	} `json:"sport_event_status"`
	Score struct {
		Home int `json:"home_score"`
		Away int `json:"away_score"`
	} `json:"score"`
	Clock  string `json:"clock"`
	Period int    `json:"period"`
}

func (c *SportradarConnector) FetchScoreboard(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderSportradar, types.TierScoreboard, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, fmt.Sprintf("/%s/trial/v4/en/matches/%s/summary.json", sportradarSportPath(sport), matchProviderID), nil)
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		var parsed sportradarSummary
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			return types.ConnectorResult{}, fmt.Errorf("sportradar: decode summary: %w", err)
		}
		return types.ConnectorResult{
			Success: true,
			Scoreboard: &types.ScoreboardPayload{
				Sport:     sport,
				Score:     types.Score{Home: parsed.Score.Home, Away: parsed.Score.Away},
				Phase:     sportradarPhaseToCanonical(sport, parsed.SportEvent.Status, parsed.Period),
				Clock:     parsed.Clock,
				UpdatedAt: time.Now().UTC(),
			},
		}, nil
	})
}

type sportradarTimelineEvent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Period int    `json:"period"`
	Match  struct {
		Clock string `json:"match_clock"`
	} `json:"match_time"`
}

type sportradarTimeline struct {
	Timeline []sportradarTimelineEvent `json:"timeline"`
}

func (c *SportradarConnector) FetchEvents(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderSportradar, types.TierEvents, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, fmt.Sprintf("/%s/trial/v4/en/matches/%s/timeline.json", sportradarSportPath(sport), matchProviderID), nil)
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		var parsed sportradarTimeline
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			return types.ConnectorResult{}, fmt.Errorf("sportradar: decode timeline: %w", err)
		}
		events := make([]types.EventPayload, 0, len(parsed.Timeline))
		for _, ev := range parsed.Timeline {
			events = append(events, types.EventPayload{
				EventType:       sportradarEventType(sport, ev.Type),
				Period:          fmt.Sprintf("%d", ev.Period),
				Detail:          ev.Match.Clock,
				ProviderEventID: ev.ID,
			})
		}
		return types.ConnectorResult{Success: true, Events: events}, nil
	})
}

type sportradarStats struct {
	Statistics struct {
		Totals struct {
			Competitors []struct {
				Qualifier string                 `json:"qualifier"`
				Statistics map[string]interface{} `json:"statistics"`
			} `json:"competitors"`
		} `json:"totals"`
	} `json:"statistics"`
}

func (c *SportradarConnector) FetchStats(ctx context.Context, sport types.Sport, matchProviderID string) types.ConnectorResult {
	return timed(types.ProviderSportradar, types.TierStats, func() (types.ConnectorResult, error) {
		res, err := c.client.get(ctx, fmt.Sprintf("/%s/trial/v4/en/matches/%s/summary.json", sportradarSportPath(sport), matchProviderID), nil)
		if err != nil {
			return types.ConnectorResult{RateLimited: res.RateLimited}, err
		}
		var parsed sportradarStats
		if err := json.Unmarshal(res.Body, &parsed); err != nil {
			return types.ConnectorResult{}, fmt.Errorf("sportradar: decode stats: %w", err)
		}
		var home, away types.TeamStats
		for _, comp := range parsed.Statistics.Totals.Competitors {
			extra := types.JSONMap(comp.Statistics)
			if comp.Qualifier == "home" {
				home.Extra = extra
			} else {
				away.Extra = extra
			}
		}
		return types.ConnectorResult{
			Success: true,
			Stats:   &types.StatsPayload{Home: home, Away: away, UpdatedAt: time.Now().UTC()},
		}, nil
	})
}

func (c *SportradarConnector) FetchLeagueSchedule(ctx context.Context, sport types.Sport, leagueProviderID string, from, to time.Time) types.ConnectorResult {
	return timed(types.ProviderSportradar, types.TierScoreboard, func() (types.ConnectorResult, error) {
		_, err := c.client.get(ctx, fmt.Sprintf("/%s/trial/v4/en/seasons/%s/schedules/%s.json", sportradarSportPath(sport), leagueProviderID, from.Format("2006-01-02")), nil)
		if err != nil {
			return types.ConnectorResult{}, err
		}
		return types.ConnectorResult{Success: true}, nil
	})
}

func sportradarSportPath(sport types.Sport) string {
	switch sport {
	case types.SportSoccer:
		return "soccer"
	case types.SportBasketball:
		return "basketball"
	case types.SportHockey:
		return "icehockey"
	case types.SportBaseball:
		return "baseball"
	case types.SportFootball:
		return "nfl"
	default:
		return string(sport)
	}
}

func sportradarPhaseToCanonical(sport types.Sport, status string, period int) types.MatchPhase {
	switch status {
	case "not_started":
		return types.PhaseScheduled
	case "closed", "ended":
		return types.PhaseFinished
	case "postponed":
		return types.PhasePostponed
	case "cancelled":
		return types.PhaseCancelled
	case "suspended":
		return types.PhaseSuspended
	case "live", "inprogress":
		return livePhaseForPeriod(sport, period)
	default:
		return types.PhaseScheduled
	}
}

func sportradarEventType(sport types.Sport, raw string) types.EventType {
	switch raw {
	case "score_change":
		return types.ScoringEventType(sport)
	case "yellow_card":
		return types.EventYellowCard
	case "red_card":
		return types.EventRedCard
	case "substitution":
		return types.EventSubstitution
	case "period_start":
		return types.EventPeriodStart
	case "period_score", "break_start":
		return types.EventPeriodEnd
	default:
		return types.EventGeneric
	}
}
