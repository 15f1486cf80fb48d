// Package service orchestrates the Builder (spec.md §4.6): it subscribes
// to scoreboard and event fan-out deltas, generates synthetic timeline
// events from scoreboard diffs, persists and publishes them, reconciles
// them against real events as those arrive, and periodically prunes its
// in-memory scoreboard cache for finished matches. Translated from
// original_source/backend/builder/service.py's BuilderService.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liveview-io/liveview/services/builder/internal/reconcile"
	"github.com/liveview-io/liveview/services/builder/internal/synthetic"
	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

const (
	sportCacheTTL      = 2 * time.Hour
	prevSnapshotMemTTL = time.Hour
	cleanupEvery       = 5 * time.Minute

	postCommitRetries = 3
	postCommitBackoff = 50 * time.Millisecond
)

// Service is the Builder's top-level orchestrator.
type Service struct {
	db  *gorm.DB
	bus *bus.Bus
	log *logger.Logger

	gen       *synthetic.Generator
	reconciler *reconcile.Engine

	mu             sync.Mutex
	prevScoreboard map[string]*types.ScoreboardPayload
	sportCache     map[string]types.Sport
}

func New(db *gorm.DB, b *bus.Bus, log *logger.Logger, minConfidence float64) *Service {
	return &Service{
		db: db, bus: b, log: log,
		gen:            synthetic.New(minConfidence),
		reconciler:     reconcile.New(db, log),
		prevScoreboard: make(map[string]*types.ScoreboardPayload),
		sportCache:     make(map[string]types.Sport),
	}
}

// Run subscribes to the fan-out bus and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	go s.runPeriodicCleanup(ctx)

	pubsub := s.bus.SubscribeFanout(ctx)
	defer pubsub.Close()
	s.log.Base().Info("builder subscribed to fan-out bus")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			matchID, tier := parseFanoutChannel(msg.Channel)
			if matchID == "" {
				continue
			}
			switch tier {
			case int(types.TierScoreboard):
				go s.handleScoreboardDelta(context.Background(), matchID, msg.Payload)
			case int(types.TierEvents):
				go s.handleEventsDelta(context.Background(), matchID, msg.Payload)
			}
		}
	}
}

func (s *Service) handleScoreboardDelta(ctx context.Context, matchIDStr, payload string) {
	var current types.ScoreboardPayload
	if err := json.Unmarshal([]byte(payload), &current); err != nil {
		s.log.Base().WithField("error", err).Warn("builder: invalid scoreboard delta payload")
		return
	}

	matchID, err := uuid.Parse(matchIDStr)
	if err != nil {
		return
	}

	sport, ok := s.resolveSport(ctx, matchID)
	if !ok {
		return
	}

	previous := s.loadPreviousScoreboard(ctx, matchIDStr)
	events := s.gen.GenerateFromStateChange(matchID, sport, previous, &current)

	if len(events) > 0 {
		if err := s.persistSyntheticEvents(ctx, matchID, events); err != nil {
			s.log.Base().WithField("error", err).Error("builder: failed to persist synthetic events")
		} else {
			s.log.Base().WithFields(map[string]interface{}{
				"match_id": matchID, "count": len(events),
			}).Info("synthetic events generated")
		}
	}

	s.savePreviousScoreboard(ctx, matchIDStr, &current)
}

func (s *Service) handleEventsDelta(ctx context.Context, matchIDStr, payload string) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		var single json.RawMessage
		if err := json.Unmarshal([]byte(payload), &single); err != nil {
			return
		}
		raw = []json.RawMessage{single}
	}

	matchID, err := uuid.Parse(matchIDStr)
	if err != nil {
		return
	}

	var realEvents []types.MatchEvent
	for _, r := range raw {
		var evt types.MatchEvent
		if json.Unmarshal(r, &evt) == nil && !evt.Synthetic {
			realEvents = append(realEvents, evt)
		}
	}
	if len(realEvents) == 0 {
		return
	}

	superseded, err := s.reconciler.Reconcile(ctx, matchID, realEvents)
	if err != nil {
		s.log.Base().WithField("error", err).Error("builder: reconciliation failed")
		return
	}
	if superseded > 0 {
		s.log.Base().WithFields(map[string]interface{}{
			"match_id": matchID, "superseded_count": superseded,
		}).Info("reconciliation completed")
	}
}

func (s *Service) resolveSport(ctx context.Context, matchID uuid.UUID) (types.Sport, bool) {
	s.mu.Lock()
	if sport, ok := s.sportCache[matchID.String()]; ok {
		s.mu.Unlock()
		return sport, true
	}
	s.mu.Unlock()

	var match types.Match
	if err := s.db.WithContext(ctx).Select("sport").First(&match, "id = ?", matchID).Error; err != nil {
		return "", false
	}

	s.mu.Lock()
	s.sportCache[matchID.String()] = match.Sport
	s.mu.Unlock()
	return match.Sport, true
}

func (s *Service) loadPreviousScoreboard(ctx context.Context, matchID string) *types.ScoreboardPayload {
	s.mu.Lock()
	if sb, ok := s.prevScoreboard[matchID]; ok {
		s.mu.Unlock()
		return sb
	}
	s.mu.Unlock()

	raw, err := s.bus.GetBuilderPrevSnapshot(ctx, matchID)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var sb types.ScoreboardPayload
	if json.Unmarshal(raw, &sb) != nil {
		return nil
	}

	s.mu.Lock()
	s.prevScoreboard[matchID] = &sb
	s.mu.Unlock()
	return &sb
}

func (s *Service) savePreviousScoreboard(ctx context.Context, matchID string, sb *types.ScoreboardPayload) {
	s.mu.Lock()
	s.prevScoreboard[matchID] = sb
	s.mu.Unlock()

	if err := s.bus.SetBuilderPrevSnapshot(ctx, matchID, sb); err != nil {
		s.log.Base().WithField("error", err).Warn("builder: failed to persist previous scoreboard")
	}
}

// persistSyntheticEvents assigns strictly monotonic per-match seq numbers
// inside a transaction, then appends to the capped event stream and
// publishes a tier-1 delta with a small bounded retry, matching the
// Normalizer's post-commit durability pattern.
func (s *Service) persistSyntheticEvents(ctx context.Context, matchID uuid.UUID, events []types.MatchEvent) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&types.MatchEvent{}).
			Where("match_id = ?", matchID).
			Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("load max seq: %w", err)
		}
		for i := range events {
			maxSeq++
			events[i].Seq = maxSeq
			if err := tx.Create(&events[i]).Error; err != nil {
				return fmt.Errorf("insert synthetic event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist synthetic events: %w", err)
	}

	s.publishWithRetry(ctx, func() error {
		for _, evt := range events {
			if err := s.bus.AppendEvent(ctx, matchID.String(), evt); err != nil {
				return err
			}
		}
		return s.bus.PublishDelta(ctx, matchID.String(), int(types.TierEvents), events)
	})
	return nil
}

func (s *Service) publishWithRetry(ctx context.Context, fn func() error) {
	var err error
	for attempt := 0; attempt < postCommitRetries; attempt++ {
		if err = fn(); err == nil {
			return
		}
		time.Sleep(postCommitBackoff * time.Duration(attempt+1))
	}
	s.log.Base().WithField("error", err).Error("builder: post-commit publish failed after retries")
}

// runPeriodicCleanup drops cached scoreboards for matches whose phase has
// gone terminal, mirroring the teacher's 5-minute sweep.
func (s *Service) runPeriodicCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepTerminalMatches(ctx)
		}
	}
}

func (s *Service) sweepTerminalMatches(ctx context.Context) {
	s.mu.Lock()
	stale := make([]string, 0)
	for matchID, sb := range s.prevScoreboard {
		if sb.Phase.IsTerminal() {
			stale = append(stale, matchID)
		}
	}
	for _, matchID := range stale {
		delete(s.prevScoreboard, matchID)
		delete(s.sportCache, matchID)
	}
	s.mu.Unlock()

	if len(stale) > 0 {
		s.log.Base().WithField("removed_count", len(stale)).Info("previous-scoreboard cache cleanup")
	}
	for _, matchID := range stale {
		if err := s.bus.DeleteBuilderPrevSnapshot(ctx, matchID); err != nil {
			s.log.Base().WithField("error", err).Warn("builder: failed to delete prev snapshot")
		}
	}
}

func parseFanoutChannel(channel string) (matchID string, tier int) {
	parts := strings.Split(channel, ":")
	if len(parts) > 2 {
		matchID = parts[2]
	}
	if len(parts) > 4 {
		tier, _ = strconv.Atoi(parts[4])
	}
	return matchID, tier
}
