// Package engine implements the Verifier's continuous cross-check loop
// (spec.md §4.7), translated from
// original_source/backend/verifier/engine.py's
// ContinuousMatchVerificationEngine and run_verification_loop.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liveview-io/liveview/services/verifier/internal/confidence"
	"github.com/liveview-io/liveview/services/verifier/internal/sources"
	"github.com/liveview-io/liveview/shared/normalize"
	"github.com/liveview-io/liveview/shared/pkg/breaker"
	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/pkg/ratelimit"
	"github.com/liveview-io/liveview/shared/types"
)

// espnLeaguePaths maps an ESPN league provider_id (as stored in
// provider_mappings for entity_type="league") to the sport/league path
// segment ESPN's scoreboard API expects, mirroring engine.py's
// ESPN_LEAGUE_PATHS.
var espnLeaguePaths = map[string]string{
	"eng.1":           "soccer/eng.1",
	"eng.2":           "soccer/eng.2",
	"eng.fa":          "soccer/eng.fa",
	"eng.league_cup":  "soccer/eng.league_cup",
	"usa.1":           "soccer/usa.1",
	"esp.1":           "soccer/esp.1",
	"ger.1":           "soccer/ger.1",
	"ita.1":           "soccer/ita.1",
	"fra.1":           "soccer/fra.1",
	"ned.1":           "soccer/ned.1",
	"por.1":           "soccer/por.1",
	"uefa.champions":  "soccer/uefa.champions",
	"nba":             "basketball/nba",
	"wnba":            "basketball/wnba",
	"nhl":             "hockey/nhl",
	"mlb":             "baseball/mlb",
	"nfl":             "football/nfl",
}

// LiveMatchSnapshot is our system's own view of a live match, loaded fresh
// each verification pass.
type LiveMatchSnapshot struct {
	MatchID        uuid.UUID
	HomeName       string
	AwayName       string
	LeagueID       uuid.UUID
	Sport          types.Sport
	ESPNLeaguePath string
	ScoreHome      int
	ScoreAway      int
	Phase          types.MatchPhase
	Clock          string
	Period         string
}

// Engine runs the verification pass against ESPN, arbitrates confidence,
// and applies, logs, or disputes the outcome.
type Engine struct {
	db       *gorm.DB
	bus      *bus.Bus
	log      *logger.Logger
	norm     *normalize.Service
	espn     *sources.ESPNSource
	limiter  *ratelimit.DomainLimiter
	circuit  *breaker.Registry
	sem      chan struct{}

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	confidenceHigh   float64
	confidenceMedium float64
	lastCheckedTTL   time.Duration
	disputeTTL       time.Duration
}

type Config struct {
	FetchTimeout      time.Duration
	MaxConcurrent     int
	RetryMaxAttempts  int
	RetryBaseDelay    time.Duration
	DomainRPM         int
	DomainBurst       int
	BreakerThreshold  int
	BreakerRecovery   time.Duration
	RateLimit429Delay time.Duration
	ConfidenceHigh    float64
	ConfidenceMedium  float64
	LastCheckedTTL    time.Duration
	DisputeTTL        time.Duration
}

func New(db *gorm.DB, b *bus.Bus, log *logger.Logger, cfg Config) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	return &Engine{
		db:               db,
		bus:              b,
		log:              log,
		norm:             normalize.New(db, b, log),
		espn:             sources.NewESPNSource(cfg.FetchTimeout),
		limiter:          ratelimit.New(cfg.DomainRPM, cfg.DomainBurst, cfg.RateLimit429Delay),
		circuit:          breaker.NewRegistry(cfg.BreakerThreshold, cfg.BreakerRecovery, log),
		sem:              make(chan struct{}, cfg.MaxConcurrent),
		retryMaxAttempts: cfg.RetryMaxAttempts,
		retryBaseDelay:   cfg.RetryBaseDelay,
		confidenceHigh:   cfg.ConfidenceHigh,
		confidenceMedium: cfg.ConfidenceMedium,
		lastCheckedTTL:   cfg.LastCheckedTTL,
		disputeTTL:       cfg.DisputeTTL,
	}
}

// GetLiveMatches loads every match currently in a live or break phase,
// together with the team names and ESPN league path the verification
// pass needs, matching engine.py's get_live_matches query shape.
func (e *Engine) GetLiveMatches(ctx context.Context) ([]LiveMatchSnapshot, error) {
	type row struct {
		ID         uuid.UUID
		LeagueID   uuid.UUID
		HomeTeamID uuid.UUID
		AwayTeamID uuid.UUID
		Sport      types.Sport
		Phase      types.MatchPhase
		ScoreHome  int
		ScoreAway  int
		Clock      string
		Period     string
	}

	var rows []row
	err := e.db.WithContext(ctx).Table("matches").
		Select("matches.id, matches.league_id, matches.home_team_id, matches.away_team_id, matches.sport, matches.phase, "+
			"COALESCE(match_states.score_home, 0) as score_home, COALESCE(match_states.score_away, 0) as score_away, "+
			"match_states.clock, match_states.period").
		Joins("LEFT JOIN match_states ON match_states.match_id = matches.id").
		Where("matches.phase LIKE ? OR matches.phase = ?", "live%", string(types.PhaseBreak)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load live matches: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	teamIDs := make(map[uuid.UUID]bool)
	leagueIDs := make(map[uuid.UUID]bool)
	for _, r := range rows {
		teamIDs[r.HomeTeamID] = true
		teamIDs[r.AwayTeamID] = true
		leagueIDs[r.LeagueID] = true
	}

	teamNames := make(map[uuid.UUID]string)
	var teams []types.Team
	if err := e.db.WithContext(ctx).Where("id IN ?", uuidKeys(teamIDs)).Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	for _, t := range teams {
		teamNames[t.ID] = t.Name
	}

	leaguePaths := make(map[uuid.UUID]string)
	var mappings []types.ProviderMapping
	if err := e.db.WithContext(ctx).
		Where("entity_type = ? AND provider = ? AND canonical_id IN ?", "league", types.ProviderESPN, uuidKeys(leagueIDs)).
		Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("load league provider mappings: %w", err)
	}
	for _, m := range mappings {
		if path, ok := espnLeaguePaths[m.ProviderID]; ok {
			leaguePaths[m.CanonicalID] = path
		}
	}

	snapshots := make([]LiveMatchSnapshot, 0, len(rows))
	for _, r := range rows {
		snapshots = append(snapshots, LiveMatchSnapshot{
			MatchID:        r.ID,
			HomeName:       teamNames[r.HomeTeamID],
			AwayName:       teamNames[r.AwayTeamID],
			LeagueID:       r.LeagueID,
			Sport:          r.Sport,
			ESPNLeaguePath: leaguePaths[r.LeagueID],
			ScoreHome:      r.ScoreHome,
			ScoreAway:      r.ScoreAway,
			Phase:          r.Phase,
			Clock:          r.Clock,
			Period:         r.Period,
		})
	}
	return snapshots, nil
}

func uuidKeys(m map[uuid.UUID]bool) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// matchTeamNames is a loose comparison on team names: exact match on the
// first 30 normalized characters, or ESPN's normalized names each
// containing ours as a substring ("Arsenal" matches "Arsenal FC"); the
// reverse containment is not checked.
func matchTeamNames(home, away, espnHome, espnAway string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if len(s) > 30 {
			s = s[:30]
		}
		return s
	}
	h, a, eh, ea := norm(home), norm(away), norm(espnHome), norm(espnAway)
	if h == eh && a == ea {
		return true
	}
	return strings.Contains(eh, h) && strings.Contains(ea, a) && h != "" && a != ""
}

// fetchESPNForLeague rate-limits, circuit-breaks, and retries a single
// league scoreboard fetch, mirroring _fetch_espn_for_league's
// rate-limiter -> breaker -> semaphore -> exponential-backoff-retry chain.
func (e *Engine) fetchESPNForLeague(ctx context.Context, leaguePath, sport string) []sources.LeagueEvent {
	url := e.espn.ScoreboardURL(leaguePath)

	if !e.limiter.Allow(url) {
		if err := e.limiter.WaitForSlot(ctx, url, 15*time.Second); err != nil {
			return nil
		}
	}
	if e.circuit.State(ratelimit.Domain(url)) == "open" {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMaxAttempts; attempt++ {
		result, err := e.tryFetch(ctx, url, leaguePath, sport)
		if err == nil {
			return result
		}
		lastErr = err
		if err == sources.ErrRateLimited {
			e.limiter.Record429(url, 0)
			break
		}
		if attempt < e.retryMaxAttempts {
			delay := e.retryBaseDelay * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}
	}
	e.log.Base().WithFields(map[string]interface{}{"path": leaguePath, "error": lastErr}).Debug("espn league fetch error")
	return nil
}

func (e *Engine) tryFetch(ctx context.Context, url, leaguePath, sport string) ([]sources.LeagueEvent, error) {
	domain := ratelimit.Domain(url)
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	result, err := e.circuit.Execute(ctx, domain, func(ctx context.Context) (interface{}, error) {
		return e.espn.FetchLeagueScoreboard(ctx, leaguePath, sport)
	})
	if err != nil {
		return nil, err
	}
	return result.([]sources.LeagueEvent), nil
}

// VerifyOne fetches independent state for one match, arbitrates
// confidence against our own current state, and applies a correction,
// logs a warning, or flags a dispute depending on the outcome.
func (e *Engine) VerifyOne(ctx context.Context, snap LiveMatchSnapshot) {
	current := confidence.CurrentState{
		ScoreHome: snap.ScoreHome,
		ScoreAway: snap.ScoreAway,
		Phase:     string(snap.Phase),
		Clock:     snap.Clock,
		Period:    snap.Period,
	}

	var verified []sources.CanonicalMatchState
	if snap.ESPNLeaguePath != "" {
		events := e.fetchESPNForLeague(ctx, snap.ESPNLeaguePath, string(snap.Sport))
		for _, ev := range events {
			if matchTeamNames(snap.HomeName, snap.AwayName, ev.HomeName, ev.AwayName) {
				verified = append(verified, ev.State)
				break
			}
		}
	}

	if len(verified) == 0 {
		e.setLastChecked(ctx, snap.MatchID)
		return
	}

	score, level, recommended := confidence.Compute(current, verified, e.confidenceHigh, e.confidenceMedium)
	e.setConfidence(ctx, snap.MatchID, score)
	e.setLastChecked(ctx, snap.MatchID)

	if recommended == nil || confidence.MatchesRecommended(current, *recommended) {
		return
	}

	switch level {
	case types.ConfidenceHigh:
		e.applyCorrection(ctx, snap, *recommended)
	case types.ConfidenceMedium:
		e.log.Base().WithFields(map[string]interface{}{
			"match_id": snap.MatchID, "confidence": score,
			"current_score": fmt.Sprintf("%d-%d", current.ScoreHome, current.ScoreAway),
			"recommended_score": fmt.Sprintf("%d-%d", recommended.ScoreHome, recommended.ScoreAway),
		}).Warn("verification medium confidence mismatch")
	default:
		e.flagDispute(ctx, snap, current, verified, score)
	}
}

func (e *Engine) applyCorrection(ctx context.Context, snap LiveMatchSnapshot, recommended sources.CanonicalMatchState) {
	phase := types.MatchPhase(recommended.Phase)
	sb := types.ScoreboardPayload{
		Sport: snap.Sport,
		Score: types.Score{Home: recommended.ScoreHome, Away: recommended.ScoreAway},
		Phase: phase,
		Clock: recommended.Clock,
		Period: recommended.Period,
	}
	changed, err := e.norm.NormalizeScoreboard(ctx, snap.MatchID, sb, types.ProviderESPN)
	if err != nil {
		e.log.Base().WithFields(map[string]interface{}{"match_id": snap.MatchID, "error": err}).Error("verification correction failed")
		return
	}
	if changed {
		e.log.Base().WithFields(map[string]interface{}{
			"match_id": snap.MatchID, "score": fmt.Sprintf("%d-%d", recommended.ScoreHome, recommended.ScoreAway),
			"phase": phase,
		}).Info("verification correction applied")
	}
}

func (e *Engine) flagDispute(ctx context.Context, snap LiveMatchSnapshot, current confidence.CurrentState, verified []sources.CanonicalMatchState, score float64) {
	recommended := verified[0]
	record := types.DisputeRecord{
		MatchID:         snap.MatchID,
		CurrentHome:     current.ScoreHome,
		CurrentAway:     current.ScoreAway,
		RecommendedHome: recommended.ScoreHome,
		RecommendedAway: recommended.ScoreAway,
		SourceCount:     len(verified),
		DetectedAt:      time.Now().UTC(),
	}
	if err := e.bus.SetDispute(ctx, snap.MatchID.String(), record, e.disputeTTL); err != nil {
		e.log.Base().WithFields(map[string]interface{}{"match_id": snap.MatchID, "error": err}).Warn("failed to record dispute")
		return
	}
	e.log.Base().WithFields(map[string]interface{}{"match_id": snap.MatchID, "confidence": score}).Warn("verification dispute flagged")
}

func (e *Engine) setLastChecked(ctx context.Context, matchID uuid.UUID) {
	if err := e.bus.SetLastChecked(ctx, matchID.String(), e.lastCheckedTTL); err != nil {
		e.log.Base().WithFields(map[string]interface{}{"match_id": matchID, "error": err}).Debug("failed to record last-checked timestamp")
	}
}

func (e *Engine) setConfidence(ctx context.Context, matchID uuid.UUID, score float64) {
	if err := e.bus.SetConfidence(ctx, matchID.String(), score, e.lastCheckedTTL); err != nil {
		e.log.Base().WithFields(map[string]interface{}{"match_id": matchID, "error": err}).Debug("failed to record confidence score")
	}
}

// highDemandThreshold is the live-match count at or below which the pass
// uses the tighter high-demand interval, matching engine.py's literal
// "len(matches) <= 20" cutoff in run_verification_loop.
const highDemandThreshold = 20

type Intervals struct {
	HighMin, HighMax time.Duration
	LowMin, LowMax   time.Duration
	Jitter           float64
}

// RunLoop runs continuous verification passes. Each pass verifies every
// live match concurrently (bounded by the engine's semaphore) and then
// sleeps for one shared jittered delay before the next pass — a single
// per-pass interval, not an independent timer per match, following
// run_verification_loop's structure exactly rather than the literal
// per-match wording elsewhere in the spec: matches within a pass share
// fate (all checked together), so a shared delay is the natural
// generalization of the teacher's loop.
func (e *Engine) RunLoop(ctx context.Context, intervals Intervals) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		matches, err := e.GetLiveMatches(ctx)
		if err != nil {
			e.log.Base().WithField("error", err).Error("verification loop: failed to load live matches")
			if !sleepCtx(ctx, 30*time.Second) {
				return
			}
			continue
		}
		if len(matches) == 0 {
			if !sleepCtx(ctx, 60*time.Second) {
				return
			}
			continue
		}

		var wg sync.WaitGroup
		for _, snap := range matches {
			wg.Add(1)
			go func(s LiveMatchSnapshot) {
				defer wg.Done()
				e.VerifyOne(ctx, s)
			}(snap)
		}
		wg.Wait()

		min, max := intervals.HighMin, intervals.HighMax
		if len(matches) > highDemandThreshold {
			min, max = intervals.LowMin, intervals.LowMax
		}
		base := min + time.Duration(rand.Float64()*float64(max-min))
		jitter := time.Duration((rand.Float64()*2 - 1) * intervals.Jitter * float64(base))
		delay := base + jitter
		if delay < time.Second {
			delay = time.Second
		}

		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
