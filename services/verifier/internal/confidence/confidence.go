// Package confidence implements the Verifier's arbitration scoring
// (spec.md §4.7), translated from
// original_source/backend/verifier/confidence.py: two or more independent
// sources agreeing with our current state is HIGH confidence, one is
// MEDIUM, none is DISPUTED.
package confidence

import (
	"strings"

	"github.com/liveview-io/liveview/services/verifier/internal/sources"
	"github.com/liveview-io/liveview/shared/types"
)

// CurrentState is our system's own view of a match, read from Postgres,
// compared against each independently-fetched CanonicalMatchState.
type CurrentState struct {
	ScoreHome int
	ScoreAway int
	Phase     string
	Clock     string
	Period    string
}

func normalizePhase(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// phaseEquivalent treats any two live-ish phases (or any two terminal
// phases) as matching, since a source and our own poller rarely observe
// the exact same sub-phase string at the same instant.
func phaseEquivalent(a, b string) bool {
	pa, pb := normalizePhase(a), normalizePhase(b)
	if pa == pb {
		return true
	}
	liveish := func(p string) bool { return strings.HasPrefix(p, "live_") || p == "break" }
	if liveish(pa) && liveish(pb) {
		return true
	}
	terminal := func(p string) bool { return p == "finished" || p == "postponed" || p == "cancelled" }
	return terminal(pa) && terminal(pb)
}

func scoreMatches(current CurrentState, verified sources.CanonicalMatchState) bool {
	return current.ScoreHome == verified.ScoreHome &&
		current.ScoreAway == verified.ScoreAway &&
		phaseEquivalent(current.Phase, verified.Phase)
}

// Compute scores a current state against the independently-verified
// states gathered this pass. The returned score is fixed at 0.9/0.6/0.3
// by the count of agreeing sources (m>=2 / m==1 / m==0) exactly as the
// teacher's compute_confidence does; the returned ConfidenceLevel applies
// cfg.VerifierConfidenceHigh/Medium as the HIGH/MEDIUM/DISPUTED cutoffs
// against that score, giving the configured thresholds real effect
// without overriding the literal scoring formula.
func Compute(current CurrentState, verified []sources.CanonicalMatchState, highCutoff, mediumCutoff float64) (float64, types.ConfidenceLevel, *sources.CanonicalMatchState) {
	if len(verified) == 0 {
		return 0.0, types.ConfidenceDisputed, nil
	}

	var matching []sources.CanonicalMatchState
	for _, v := range verified {
		if scoreMatches(current, v) {
			matching = append(matching, v)
		}
	}

	var score float64
	var recommended *sources.CanonicalMatchState
	switch {
	case len(matching) >= 2:
		score = 0.9
		recommended = &matching[0]
	case len(matching) == 1:
		score = 0.6
		recommended = &matching[0]
	default:
		score = 0.3
		best := verified[0]
		for _, v := range verified[1:] {
			if v.FetchedAt.After(best.FetchedAt) {
				best = v
			}
		}
		recommended = &best
	}

	level := types.ConfidenceDisputed
	switch {
	case score >= highCutoff:
		level = types.ConfidenceHigh
	case score >= mediumCutoff:
		level = types.ConfidenceMedium
	}
	return score, level, recommended
}

// MatchesRecommended reports whether current already agrees with the
// recommended state, meaning no correction is needed.
func MatchesRecommended(current CurrentState, recommended sources.CanonicalMatchState) bool {
	return scoreMatches(current, recommended)
}
