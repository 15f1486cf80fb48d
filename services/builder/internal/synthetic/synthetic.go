// Package synthetic implements the Builder's timeline inference (spec.md
// §4.6), translated from
// original_source/backend/builder/timeline/synthetic.py's
// SyntheticTimelineGenerator: comparing successive scoreboard snapshots to
// infer MATCH_START/MATCH_END/PERIOD_START/PERIOD_END and scoring events
// when a provider's play-by-play feed is unavailable.
package synthetic

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liveview-io/liveview/shared/types"
)

// Generator produces synthetic MatchEvent rows (unpersisted: ID and Seq
// are left zero for the caller to fill in) from scoreboard state diffs.
type Generator struct {
	minConfidence float64
}

func New(minConfidence float64) *Generator {
	return &Generator{minConfidence: minConfidence}
}

// GenerateFromStateChange compares previous and current scoreboard
// snapshots for one match and returns the synthetic events inferred from
// the transition. previous is nil on a match's first observed snapshot.
func (g *Generator) GenerateFromStateChange(matchID uuid.UUID, sport types.Sport, previous, current *types.ScoreboardPayload) []types.MatchEvent {
	if previous == nil {
		if current.Phase.IsLive() {
			return []types.MatchEvent{
				g.makeEvent(matchID, types.EventMatchStart, intPtr(0), nil, "", nil,
					fmt.Sprintf("Match started (%s)", current.Phase), 0.9, &current.Score.Home, &current.Score.Away),
			}
		}
		return nil
	}

	var events []types.MatchEvent
	events = append(events, g.detectPhaseTransitions(matchID, previous.Phase, current.Phase, current.Clock, current.Score)...)
	events = append(events, g.detectScoreChanges(matchID, sport, previous.Score, current.Score, current.Clock)...)
	return events
}

func (g *Generator) detectPhaseTransitions(matchID uuid.UUID, prevPhase, currPhase types.MatchPhase, clock string, score types.Score) []types.MatchEvent {
	if prevPhase == currPhase {
		return nil
	}

	minute := parseClockToMinute(clock)
	var events []types.MatchEvent

	if !prevPhase.IsLive() && currPhase.IsLive() {
		events = append(events, g.makeEvent(matchID, types.EventMatchStart, intPtr(0), nil, "", nil,
			"Match started", 0.95, &score.Home, &score.Away))
	}

	if prevPhase.IsLive() && currPhase.IsTerminal() {
		events = append(events, g.makeEvent(matchID, types.EventMatchEnd, minute, nil, "", nil,
			fmt.Sprintf("Match ended (%s)", currPhase), 0.95, &score.Home, &score.Away))
	}

	if prevPhase.IsLive() && currPhase.IsLive() {
		events = append(events,
			g.makeEvent(matchID, types.EventPeriodEnd, minute, nil, string(prevPhase), nil,
				fmt.Sprintf("Period ended: %s", prevPhase), 0.85, &score.Home, &score.Away),
			g.makeEvent(matchID, types.EventPeriodStart, minute, nil, string(currPhase), nil,
				fmt.Sprintf("Period started: %s", currPhase), 0.85, &score.Home, &score.Away),
		)
	}

	if prevPhase.IsLive() && (currPhase == types.PhaseLiveHalftime || currPhase == types.PhaseBreak) {
		events = append(events, g.makeEvent(matchID, types.EventPeriodEnd, minute, nil, "", nil,
			fmt.Sprintf("Break: %s", currPhase), 0.9, &score.Home, &score.Away))
	}

	return events
}

func (g *Generator) detectScoreChanges(matchID uuid.UUID, sport types.Sport, prev, curr types.Score, clock string) []types.MatchEvent {
	homeDelta := curr.Home - prev.Home
	awayDelta := curr.Away - prev.Away
	if homeDelta == 0 && awayDelta == 0 {
		return nil
	}

	minute := parseClockToMinute(clock)
	scoringEvent := types.ScoringEventType(sport)
	totalDelta := abs(homeDelta) + abs(awayDelta)

	var events []types.MatchEvent
	for i := 0; i < homeDelta; i++ {
		confidence := confidenceFor(g.minConfidence, totalDelta)
		home, away := prev.Home+i+1, curr.Away
		events = append(events, g.makeEvent(matchID, scoringEvent, minute, nil, "", nil,
			fmt.Sprintf("Home team scored (%d-%d)", home, away), confidence, &home, &away))
	}
	for i := 0; i < awayDelta; i++ {
		confidence := confidenceFor(g.minConfidence, totalDelta)
		home, away := curr.Home, prev.Away+i+1
		events = append(events, g.makeEvent(matchID, scoringEvent, minute, nil, "", nil,
			fmt.Sprintf("Away team scored (%d-%d)", home, away), confidence, &home, &away))
	}
	return events
}

func confidenceFor(minConfidence float64, totalDelta int) float64 {
	c := 0.7 - 0.1*float64(max(0, totalDelta-1))
	if c < minConfidence {
		return minConfidence
	}
	return c
}

func (g *Generator) makeEvent(matchID uuid.UUID, eventType types.EventType, minute, second *int, period string, teamID *uuid.UUID, detail string, confidence float64, scoreHome, scoreAway *int) types.MatchEvent {
	conf := confidence
	return types.MatchEvent{
		MatchID:         matchID,
		EventType:       eventType,
		Minute:          minute,
		Second:          second,
		Period:          period,
		TeamID:          teamID,
		Detail:          detail,
		ScoreHome:       scoreHome,
		ScoreAway:       scoreAway,
		Synthetic:       true,
		Confidence:      &conf,
		SourceProvider:  nil,
		ProviderEventID: syntheticEventID(),
		CreatedAt:       time.Now().UTC(),
	}
}

func syntheticEventID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("synthetic:%s", hex[:12])
}

func parseClockToMinute(clock string) *int {
	if clock == "" {
		return nil
	}
	part := clock
	if idx := strings.Index(clock, ":"); idx >= 0 {
		part = clock[:idx]
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return nil
	}
	return &n
}

func intPtr(v int) *int { return &v }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
