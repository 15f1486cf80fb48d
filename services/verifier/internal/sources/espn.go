// Package sources implements the Verifier's independent cross-check
// fetchers (spec.md §4.7). ESPNSource is translated from
// original_source/backend/verifier/sources/espn.py's
// ESPNVerificationSource, the only source the original ships.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// CanonicalMatchState is the normalized shape every verification source
// reduces to before comparison, mirroring sources/base.py's
// CanonicalMatchState.
type CanonicalMatchState struct {
	ScoreHome int
	ScoreAway int
	Phase     string
	Clock     string
	Period    string
	Source    string
	FetchedAt time.Time
}

// LeagueEvent pairs a fetched CanonicalMatchState with the team names and
// provider event id the engine needs to match it against a canonical
// match.
type LeagueEvent struct {
	HomeName string
	AwayName string
	EventID  string
	State    CanonicalMatchState
}

// espnSimplePhases mirrors ESPN_STATUS_TO_PHASE; only used for the
// non-STATUS_IN_PROGRESS branches, since in-progress resolution also
// depends on sport and period.
var espnSimplePhases = map[string]string{
	"STATUS_SCHEDULED": "scheduled",
	"STATUS_FINAL":      "finished",
	"STATUS_FULL_TIME":  "finished",
	"STATUS_POSTPONED":  "postponed",
	"STATUS_CANCELED":   "cancelled",
	"STATUS_DELAYED":    "suspended",
	"STATUS_RAIN_DELAY": "suspended",
	"STATUS_HALFTIME":   "live_halftime",
	"STATUS_END_PERIOD": "break",
}

// resolvePhase reproduces _resolve_phase's sport-aware period mapping for
// STATUS_IN_PROGRESS, which espnSimplePhases cannot express.
func resolvePhase(espnStatus string, period int, sport string) string {
	if phase, ok := espnSimplePhases[espnStatus]; ok {
		return phase
	}
	if espnStatus != "STATUS_IN_PROGRESS" {
		return "scheduled"
	}
	switch sport {
	case "basketball":
		if period > 4 {
			return "live_ot"
		}
		switch period {
		case 2:
			return "live_q2"
		case 3:
			return "live_q3"
		case 4:
			return "live_q4"
		default:
			return "live_q1"
		}
	case "hockey":
		if period > 3 {
			return "live_ot"
		}
		switch period {
		case 2:
			return "live_p2"
		case 3:
			return "live_p3"
		default:
			return "live_p1"
		}
	case "baseball":
		return "live_inning"
	default:
		if period == 2 {
			return "live_second_half"
		}
		return "live_first_half"
	}
}

// ESPNSource fetches ESPN's public scoreboard JSON feeds, the same
// endpoint the Scheduler's schedule-sync cron uses, but read-only and
// per-verification-pass rather than cron-scheduled.
type ESPNSource struct {
	client *http.Client
}

func NewESPNSource(timeout time.Duration) *ESPNSource {
	return &ESPNSource{client: &http.Client{Timeout: timeout}}
}

const espnBase = "https://site.api.espn.com/apis/site/v2/sports"

// ScoreboardURL builds the domain-rate-limited fetch URL for a league
// path, used both to issue the request and as the rate limiter's key.
func (s *ESPNSource) ScoreboardURL(sportLeaguePath string) string {
	return fmt.Sprintf("%s/%s/scoreboard", espnBase, sportLeaguePath)
}

type espnScoreboardFeed struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID           string `json:"id"`
	Competitions []struct {
		Competitors []struct {
			HomeAway string `json:"homeAway"`
			Score    string `json:"score"`
			Team     struct {
				DisplayName string `json:"displayName"`
				Name        string `json:"name"`
			} `json:"team"`
		} `json:"competitors"`
		Status struct {
			Type struct {
				Name string `json:"name"`
			} `json:"type"`
			Period       int    `json:"period"`
			DisplayClock string `json:"displayClock"`
		} `json:"status"`
	} `json:"competitions"`
}

// FetchLeagueScoreboard fetches the full scoreboard for a league path and
// returns every event's team names and canonical state; a 429 response
// surfaces as a typed error so the caller can drive backoff.
func (s *ESPNSource) FetchLeagueScoreboard(ctx context.Context, sportLeaguePath, sport string) ([]LeagueEvent, error) {
	url := s.ScoreboardURL(sportLeaguePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("espn scoreboard request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("espn scoreboard fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("espn scoreboard returned %d", resp.StatusCode)
	}

	var feed espnScoreboardFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode espn scoreboard: %w", err)
	}

	fetchedAt := time.Now().UTC()
	result := make([]LeagueEvent, 0, len(feed.Events))
	for _, event := range feed.Events {
		if len(event.Competitions) == 0 {
			continue
		}
		comp := event.Competitions[0]
		if len(comp.Competitors) < 2 {
			continue
		}

		var homeName, awayName string
		var scoreHome, scoreAway int
		for _, c := range comp.Competitors {
			name := c.Team.DisplayName
			if name == "" {
				name = c.Team.Name
			}
			score, _ := strconv.Atoi(c.Score)
			if c.HomeAway == "home" {
				homeName, scoreHome = name, score
			} else {
				awayName, scoreAway = name, score
			}
		}

		phase := resolvePhase(comp.Status.Type.Name, comp.Status.Period, sport)
		period := ""
		if comp.Status.Period > 0 {
			period = strconv.Itoa(comp.Status.Period)
		}

		result = append(result, LeagueEvent{
			HomeName: homeName,
			AwayName: awayName,
			EventID:  event.ID,
			State: CanonicalMatchState{
				ScoreHome: scoreHome,
				ScoreAway: scoreAway,
				Phase:     phase,
				Clock:     comp.Status.DisplayClock,
				Period:    period,
				Source:    "espn",
				FetchedAt: fetchedAt,
			},
		})
	}
	return result, nil
}

// ErrRateLimited tags a 429 response so callers can distinguish it from a
// transient network failure and drive domain backoff instead of retrying.
var ErrRateLimited = fmt.Errorf("espn: rate limited")
