// Package reconcile implements the Builder's synthetic/real event
// reconciliation (spec.md §4.6), translated from
// original_source/backend/builder/service.py's ReconciliationEngine. When
// a real provider event arrives, any synthetic event it duplicates is
// superseded and hard-deleted — the real source always wins.
package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

// scanLimit bounds how many recent synthetic events are checked against
// each incoming batch of real events, matching the teacher's recency cap.
const scanLimit = 50

var scoringEvents = map[types.EventType]bool{
	types.EventGoal: true, types.EventBasket: true, types.EventRun: true,
}

var phaseEvents = map[types.EventType]bool{
	types.EventMatchStart: true, types.EventMatchEnd: true,
	types.EventPeriodStart: true, types.EventPeriodEnd: true,
}

// Engine compares incoming real events against recent synthetic events
// for the same match and deletes any synthetic event a real one supersedes.
type Engine struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) *Engine {
	return &Engine{db: db, log: log}
}

// Reconcile returns the number of synthetic events superseded by realEvents.
func (e *Engine) Reconcile(ctx context.Context, matchID uuid.UUID, realEvents []types.MatchEvent) (int, error) {
	if len(realEvents) == 0 {
		return 0, nil
	}

	superseded := 0
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var synthetic []types.MatchEvent
		if err := tx.Where("match_id = ? AND synthetic = ?", matchID, true).
			Order("seq DESC").Limit(scanLimit).Find(&synthetic).Error; err != nil {
			return fmt.Errorf("load synthetic events: %w", err)
		}
		if len(synthetic) == 0 {
			return nil
		}

		consumed := make(map[int]bool, len(synthetic))
		for _, real := range realEvents {
			for idx, synth := range synthetic {
				if consumed[idx] {
					continue
				}
				if !eventsMatch(real, synth) {
					continue
				}
				if err := tx.Delete(&types.MatchEvent{}, "id = ?", synth.ID).Error; err != nil {
					return fmt.Errorf("delete superseded synthetic event: %w", err)
				}
				consumed[idx] = true
				superseded++
				e.log.Base().WithFields(map[string]interface{}{
					"match_id": matchID, "synthetic_event_id": synth.ID,
					"real_event_type": real.EventType, "real_provider_event_id": real.ProviderEventID,
				}).Info("synthetic event superseded")
				break // each real event supersedes at most one synthetic event
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	return superseded, nil
}

func eventsMatch(real, synth types.MatchEvent) bool {
	if real.EventType != synth.EventType {
		return false
	}

	if scoringEvents[real.EventType] {
		if !intPtrEqual(real.ScoreHome, synth.ScoreHome) || !intPtrEqual(real.ScoreAway, synth.ScoreAway) {
			return false
		}
		if real.TeamID != nil && synth.TeamID != nil && *real.TeamID != *synth.TeamID {
			return false
		}
	}

	if phaseEvents[real.EventType] {
		if real.Minute != nil && synth.Minute != nil {
			if abs(*real.Minute-*synth.Minute) > 5 {
				return false
			}
		}
	}

	return true
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
