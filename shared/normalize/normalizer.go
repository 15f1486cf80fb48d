// Package normalize implements the Normalization Service (spec.md §4.3):
// idempotent, versioned upserts from canonical connector payloads into
// Postgres, followed by a snapshot write and delta publish. Grounded on
// original_source/backend/ingest/normalization/normalizer.py, translated
// from SQLAlchemy sessions to gorm transactions and from asyncio to
// goroutine-safe synchronous calls the way the teacher's service layer
// wraps *gorm.DB in a single struct per concern.
package normalize

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liveview-io/liveview/shared/pkg/bus"
	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

const snapshotTTL = 300 * time.Second

// postCommitRetries/postCommitBackoff resolve the Open Question on
// snapshot/publish durability after a committed write: spec.md leaves
// post-commit Redis failures merely logged; SPEC_FULL.md adds a small
// bounded retry before falling back to a log-only failure.
const postCommitRetries = 3
const postCommitBackoff = 50 * time.Millisecond

// Service is the Normalizer, invoked in-process by both the Ingest and
// Verifier binaries (it is a library, not a sixth network service).
type Service struct {
	db  *gorm.DB
	bus *bus.Bus
	log *logger.Logger
}

func New(db *gorm.DB, b *bus.Bus, log *logger.Logger) *Service {
	return &Service{db: db, bus: b, log: log}
}

// ResolveCanonicalID looks up the canonical UUID for a provider-specific
// entity ID, or (uuid.Nil, false) if no mapping exists yet.
func (s *Service) ResolveCanonicalID(ctx context.Context, entityType string, provider types.ProviderName, providerID string) (uuid.UUID, bool, error) {
	var mapping types.ProviderMapping
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND provider = ? AND provider_id = ?", entityType, provider, providerID).
		First(&mapping).Error
	if err == gorm.ErrRecordNotFound {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("normalize: resolve canonical id: %w", err)
	}
	return mapping.CanonicalID, true, nil
}

// EnsureMapping creates or repoints a provider mapping, idempotently.
func (s *Service) EnsureMapping(ctx context.Context, entityType string, canonicalID uuid.UUID, provider types.ProviderName, providerID string) error {
	mapping := types.ProviderMapping{
		EntityType:  entityType,
		CanonicalID: canonicalID,
		Provider:    provider,
		ProviderID:  providerID,
	}
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND provider = ? AND provider_id = ?", entityType, provider, providerID).
		Assign(types.ProviderMapping{CanonicalID: canonicalID}).
		FirstOrCreate(&mapping).Error
	if err != nil {
		return fmt.Errorf("normalize: ensure mapping: %w", err)
	}
	return nil
}

// NormalizeScoreboard upserts tier-0 state. Returns (changed, error); on
// changed=false callers must not publish a delta (idempotent no-op per I1).
func (s *Service) NormalizeScoreboard(ctx context.Context, matchID uuid.UUID, sb types.ScoreboardPayload, provider types.ProviderName) (bool, error) {
	var changed bool
	var version, seq int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing types.MatchState
		err := tx.First(&existing, "match_id = ?", matchID).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			version, seq = 1, 1
			changed = true
			state := types.MatchState{
				MatchID:        matchID,
				ScoreHome:      sb.Score.Home,
				ScoreAway:      sb.Score.Away,
				ScoreBreakdown: sb.Score.Breakdown,
				Clock:          sb.Clock,
				Phase:          sb.Phase,
				Period:         sb.Period,
				Version:        version,
				Seq:            seq,
				UpdatedAt:      time.Now().UTC(),
			}
			if err := tx.Create(&state).Error; err != nil {
				return fmt.Errorf("create match state: %w", err)
			}
		case err != nil:
			return fmt.Errorf("load match state: %w", err)
		default:
			changed = existing.ScoreHome != sb.Score.Home ||
				existing.ScoreAway != sb.Score.Away ||
				existing.Phase != sb.Phase ||
				existing.Clock != sb.Clock
			if !changed {
				version, seq = existing.Version, existing.Seq
				return nil
			}
			version, seq = existing.Version+1, existing.Seq+1
			updates := map[string]interface{}{
				"score_home":      sb.Score.Home,
				"score_away":      sb.Score.Away,
				"score_breakdown": sb.Score.Breakdown,
				"clock":           sb.Clock,
				"phase":           sb.Phase,
				"period":          sb.Period,
				"version":         version,
				"seq":             seq,
				"updated_at":      time.Now().UTC(),
			}
			if err := tx.Model(&types.MatchState{}).Where("match_id = ?", matchID).Updates(updates).Error; err != nil {
				return fmt.Errorf("update match state: %w", err)
			}
		}

		if changed {
			if err := tx.Model(&types.Match{}).Where("id = ?", matchID).Updates(map[string]interface{}{
				"phase": sb.Phase,
			}).Error; err != nil {
				return fmt.Errorf("update match phase: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("normalize: scoreboard: %w", err)
	}
	if !changed {
		return false, nil
	}

	sb.MatchID = matchID
	sb.UpdatedAt = time.Now().UTC()
	s.publishWithRetry(ctx, "scoreboard", func() error {
		if err := s.bus.SetSnapshot(ctx, matchID.String(), "scoreboard", sb, snapshotTTL); err != nil {
			return err
		}
		return s.bus.PublishDelta(ctx, matchID.String(), int(types.TierScoreboard), sb)
	})

	s.log.Base().WithFields(map[string]interface{}{
		"match_id": matchID, "score": fmt.Sprintf("%d-%d", sb.Score.Home, sb.Score.Away),
		"phase": sb.Phase, "version": version, "provider": provider,
	}).Info("scoreboard normalized")
	return true, nil
}

// NormalizeEvents inserts new events, assigning strictly monotonic seq
// numbers per match (I2) and skipping duplicates on the (match, provider,
// provider_event_id) unique constraint (I4). Returns only the newly
// inserted events.
func (s *Service) NormalizeEvents(ctx context.Context, matchID uuid.UUID, events []types.EventPayload, provider types.ProviderName) ([]types.MatchEvent, error) {
	var inserted []types.MatchEvent

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&types.MatchEvent{}).
			Where("match_id = ?", matchID).
			Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("load max seq: %w", err)
		}

		for _, ev := range events {
			providerEventID := ev.ProviderEventID
			if providerEventID == "" {
				providerEventID = uuid.New().String()
			}

			var existing types.MatchEvent
			err := tx.Where("match_id = ? AND source_provider = ? AND provider_event_id = ?", matchID, provider, providerEventID).
				First(&existing).Error
			if err == nil {
				continue // idempotent: already seen
			}
			if err != gorm.ErrRecordNotFound {
				return fmt.Errorf("check existing event: %w", err)
			}

			maxSeq++
			row := types.MatchEvent{
				MatchID:             matchID,
				Seq:                 maxSeq,
				EventType:           ev.EventType,
				Minute:              ev.Minute,
				Second:              ev.Second,
				Period:              ev.Period,
				TeamID:              ev.TeamID,
				PlayerID:            ev.PlayerID,
				PlayerName:          ev.PlayerName,
				SecondaryPlayerID:   ev.SecondaryPlayerID,
				SecondaryPlayerName: ev.SecondaryPlayerName,
				Detail:              ev.Detail,
				ScoreHome:           ev.ScoreHome,
				ScoreAway:           ev.ScoreAway,
				Synthetic:           ev.Synthetic,
				Confidence:          ev.Confidence,
				SourceProvider:      &provider,
				ProviderEventID:     providerEventID,
				CreatedAt:           time.Now().UTC(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
			inserted = append(inserted, row)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("normalize: events: %w", err)
	}
	if len(inserted) == 0 {
		return nil, nil
	}

	s.publishWithRetry(ctx, "events", func() error {
		for _, evt := range inserted {
			if err := s.bus.AppendEvent(ctx, matchID.String(), evt); err != nil {
				return err
			}
		}
		return s.bus.PublishDelta(ctx, matchID.String(), int(types.TierEvents), inserted)
	})

	s.log.Base().WithFields(map[string]interface{}{
		"match_id": matchID, "new_count": len(inserted), "provider": provider,
	}).Info("events normalized")
	return inserted, nil
}

// NormalizeStats upserts tier-2 statistics. Returns (changed, error).
func (s *Service) NormalizeStats(ctx context.Context, matchID uuid.UUID, payload types.StatsPayload, provider types.ProviderName) (bool, error) {
	var changed bool
	var version, seq int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing types.MatchStats
		err := tx.First(&existing, "match_id = ?", matchID).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			version, seq = 1, 1
			changed = true
			row := types.MatchStats{
				MatchID:   matchID,
				HomeStats: payload.Home,
				AwayStats: payload.Away,
				Version:   version,
				Seq:       seq,
				UpdatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("create match stats: %w", err)
			}
		case err != nil:
			return fmt.Errorf("load match stats: %w", err)
		default:
			changed = !statsEqual(existing.HomeStats, payload.Home) || !statsEqual(existing.AwayStats, payload.Away)
			if !changed {
				version, seq = existing.Version, existing.Seq
				return nil
			}
			version, seq = existing.Version+1, existing.Seq+1
			updates := map[string]interface{}{
				"home_stats": payload.Home,
				"away_stats": payload.Away,
				"version":    version,
				"seq":        seq,
				"updated_at": time.Now().UTC(),
			}
			if err := tx.Model(&types.MatchStats{}).Where("match_id = ?", matchID).Updates(updates).Error; err != nil {
				return fmt.Errorf("update match stats: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("normalize: stats: %w", err)
	}
	if !changed {
		return false, nil
	}

	payload.MatchID = matchID
	payload.UpdatedAt = time.Now().UTC()
	s.publishWithRetry(ctx, "stats", func() error {
		if err := s.bus.SetSnapshot(ctx, matchID.String(), "stats", payload, snapshotTTL); err != nil {
			return err
		}
		return s.bus.PublishDelta(ctx, matchID.String(), int(types.TierStats), payload)
	})

	s.log.Base().WithFields(map[string]interface{}{
		"match_id": matchID, "version": version,
	}).Info("stats normalized")
	return true, nil
}

// publishWithRetry runs a post-commit Redis side effect (snapshot write +
// delta publish) with a small bounded retry; persistent failure is logged,
// never surfaced, since the Postgres write already committed.
func (s *Service) publishWithRetry(ctx context.Context, tier string, fn func() error) {
	var err error
	for attempt := 0; attempt < postCommitRetries; attempt++ {
		if err = fn(); err == nil {
			return
		}
		time.Sleep(postCommitBackoff * time.Duration(attempt+1))
	}
	s.log.Base().WithFields(map[string]interface{}{
		"tier": tier, "error": err,
	}).Error("post-commit snapshot/publish failed after retries")
}

func statsEqual(a, b types.TeamStats) bool {
	return reflect.DeepEqual(a, b)
}
