// Package discovery implements match discovery and poll-task reconciliation
// (spec.md §4.4), translated from
// original_source/backend/scheduler/service.py's SchedulerService.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liveview-io/liveview/services/scheduler/internal/polling"
	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/pkg/providerhealth"
	"github.com/liveview-io/liveview/shared/types"
)

// recentlyFinishedWindow keeps recently finished matches polling briefly
// so a late score correction from the source still lands (final-score
// confirmation).
const recentlyFinishedWindow = 15 * time.Minute

// pollTask tracks one (match, tier) polling cadence in memory.
type pollTask struct {
	matchID          uuid.UUID
	sport            types.Sport
	tier             types.Tier
	leagueProviderID string
	matchProviderID  string
	provider         types.ProviderName
	phase            types.MatchPhase
	nextPollAt       time.Time
}

func taskKey(matchID uuid.UUID, tier types.Tier) string {
	return fmt.Sprintf("%s:%d", matchID, tier)
}

// Service reconciles poll tasks against the database and dispatches due
// polls on each tick. It only runs its side effects while told it holds
// scheduler leadership.
type Service struct {
	db       *gorm.DB
	bus      *bus.Bus
	engine   *polling.Engine
	scorer   *providerhealth.Scorer
	log      *logger.Logger
	order    []string
	quotaLimits map[types.ProviderName]int64

	tasks map[string]*pollTask
}

func New(db *gorm.DB, b *bus.Bus, engine *polling.Engine, scorer *providerhealth.Scorer, order []string, quotaLimits map[types.ProviderName]int64, log *logger.Logger) *Service {
	return &Service{
		db: db, bus: b, engine: engine, scorer: scorer, log: log,
		order: order, quotaLimits: quotaLimits,
		tasks: make(map[string]*pollTask),
	}
}

type discoveredMatch struct {
	MatchID  uuid.UUID
	LeagueID uuid.UUID
	Sport    types.Sport
	Phase    types.MatchPhase
}

// ReconcileTasks re-queries active matches and creates/removes poll tasks.
func (s *Service) ReconcileTasks(ctx context.Context) {
	matches, err := s.discoverActiveMatches(ctx)
	if err != nil {
		s.log.Base().WithField("error", err).Error("match discovery query failed")
		return
	}

	active := make(map[string]bool)
	for _, m := range matches {
		tiers := []types.Tier{types.TierScoreboard}
		if m.Phase.IsLive() {
			tiers = append(tiers, types.TierEvents, types.TierStats)
		}

		matchPIDs, leaguePIDs, err := s.loadProviderIDs(ctx, m.MatchID, m.LeagueID)
		if err != nil {
			s.log.Base().WithField("error", err).Warn("failed to load provider mappings for match")
			continue
		}

		for _, tier := range tiers {
			key := taskKey(m.MatchID, tier)
			active[key] = true

			if existing, ok := s.tasks[key]; ok {
				existing.phase = m.Phase
				continue
			}

			provider, matchPID, leaguePID := s.pickProvider(matchPIDs, leaguePIDs)
			if matchPID == "" {
				continue // no provider mapping yet; Scheduler retries next reconcile
			}

			s.tasks[key] = &pollTask{
				matchID: m.MatchID, sport: m.Sport, tier: tier,
				leagueProviderID: leaguePID, matchProviderID: matchPID,
				provider: provider, phase: m.Phase,
			}
			s.log.Base().WithFields(map[string]interface{}{
				"match_id": m.MatchID, "tier": tier, "sport": m.Sport, "phase": m.Phase,
			}).Info("poll task created")
		}
	}

	for key, task := range s.tasks {
		if !active[key] {
			delete(s.tasks, key)
			s.log.Base().WithFields(map[string]interface{}{"match_id": task.matchID, "tier": task.tier}).Info("poll task removed")
		}
	}
}

func (s *Service) pickProvider(matchPIDs, leaguePIDs map[types.ProviderName]string) (types.ProviderName, string, string) {
	for _, name := range s.order {
		pn := types.ProviderName(name)
		if pid, ok := matchPIDs[pn]; ok {
			return pn, pid, leaguePIDs[pn]
		}
	}
	return types.ProviderESPN, "", ""
}

func (s *Service) discoverActiveMatches(ctx context.Context) ([]discoveredMatch, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-recentlyFinishedWindow)

	var matches []types.Match
	err := s.db.WithContext(ctx).
		Where(
			"phase IN ? OR start_time BETWEEN ? AND ? OR (phase = ? AND updated_at >= ?)",
			livePhaseStrings(), now.Add(-5*time.Minute), now.Add(10*time.Minute),
			types.PhaseFinished, cutoff,
		).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}

	out := make([]discoveredMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, discoveredMatch{MatchID: m.ID, LeagueID: m.LeagueID, Sport: m.Sport, Phase: m.Phase})
	}
	return out, nil
}

func livePhaseStrings() []types.MatchPhase {
	return []types.MatchPhase{
		types.PhasePreMatch, types.PhaseLiveFirstHalf, types.PhaseLiveHalftime, types.PhaseLiveSecondHalf,
		types.PhaseLiveExtraTime, types.PhaseLivePenalties, types.PhaseLiveQ1, types.PhaseLiveQ2,
		types.PhaseLiveQ3, types.PhaseLiveQ4, types.PhaseLiveOT, types.PhaseLiveP1, types.PhaseLiveP2,
		types.PhaseLiveP3, types.PhaseLiveInning, types.PhaseBreak, types.PhaseSuspended,
	}
}

func (s *Service) loadProviderIDs(ctx context.Context, matchID, leagueID uuid.UUID) (map[types.ProviderName]string, map[types.ProviderName]string, error) {
	var matchMappings []types.ProviderMapping
	if err := s.db.WithContext(ctx).Where("entity_type = ? AND canonical_id = ?", "match", matchID).Find(&matchMappings).Error; err != nil {
		return nil, nil, err
	}
	var leagueMappings []types.ProviderMapping
	if err := s.db.WithContext(ctx).Where("entity_type = ? AND canonical_id = ?", "league", leagueID).Find(&leagueMappings).Error; err != nil {
		return nil, nil, err
	}

	matchPIDs := make(map[types.ProviderName]string, len(matchMappings))
	for _, m := range matchMappings {
		matchPIDs[m.Provider] = m.ProviderID
	}
	leaguePIDs := make(map[types.ProviderName]string, len(leagueMappings))
	for _, m := range leagueMappings {
		leaguePIDs[m.Provider] = m.ProviderID
	}
	return matchPIDs, leaguePIDs, nil
}

// ExecutePollCycle dispatches poll commands for every task whose computed
// interval has elapsed.
func (s *Service) ExecutePollCycle(ctx context.Context) {
	now := time.Now()
	for _, task := range s.tasks {
		if now.Before(task.nextPollAt) {
			continue
		}

		health, err := s.scorer.ComputeHealth(ctx, task.provider)
		healthScore := 1.0
		if err == nil {
			healthScore = health.Score
		}
		quotaUsage, _ := s.bus.GetQuotaUsage(ctx, string(task.provider))
		quotaLimit := s.quotaLimits[task.provider]
		if quotaLimit == 0 {
			quotaLimit = 1000
		}

		intervalS := s.engine.ComputeInterval(ctx, task.matchID.String(), task.sport, task.phase, task.tier, healthScore, quotaUsage, quotaLimit)
		task.nextPollAt = now.Add(time.Duration(intervalS * float64(time.Second)))

		cmd := types.PollCommand{
			CanonicalMatchID: task.matchID.String(),
			Tier:             task.tier,
			Sport:            task.sport,
			LeagueProviderID: task.leagueProviderID,
			MatchProviderID:  task.matchProviderID,
			Provider:         task.provider,
			Timestamp:        now.Unix(),
		}
		if err := s.bus.PublishPollCommand(ctx, cmd); err != nil {
			s.log.Base().WithField("error", err).Warn("failed to publish poll command")
		}
	}
}

// TaskCount reports the number of in-memory poll tasks, for the /status
// endpoint and the Design Notes' observability expectations.
func (s *Service) TaskCount() int { return len(s.tasks) }

// Clear drops all in-memory tasks, called on leadership loss so a demoted
// instance doesn't keep dispatching stale polls.
func (s *Service) Clear() { s.tasks = make(map[string]*pollTask) }
