package confidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveview-io/liveview/services/verifier/internal/sources"
	"github.com/liveview-io/liveview/shared/types"
)

func TestCompute_TwoSourcesAgreeIsHigh(t *testing.T) {
	current := CurrentState{ScoreHome: 2, ScoreAway: 1, Phase: "live_second_half"}
	verified := []sources.CanonicalMatchState{
		{ScoreHome: 2, ScoreAway: 1, Phase: "live_second_half", Source: "espn"},
		{ScoreHome: 2, ScoreAway: 1, Phase: "live_second_half", Source: "espn2"},
	}

	score, level, recommended := Compute(current, verified, 0.8, 0.5)

	assert.Equal(t, 0.9, score)
	assert.Equal(t, types.ConfidenceHigh, level)
	require.NotNil(t, recommended)
}

func TestCompute_OneSourceAgreesIsMedium(t *testing.T) {
	current := CurrentState{ScoreHome: 2, ScoreAway: 1, Phase: "live_second_half"}
	verified := []sources.CanonicalMatchState{
		{ScoreHome: 2, ScoreAway: 1, Phase: "live_second_half", Source: "espn"},
	}

	score, level, recommended := Compute(current, verified, 0.8, 0.5)

	assert.Equal(t, 0.6, score)
	assert.Equal(t, types.ConfidenceMedium, level)
	require.NotNil(t, recommended)
}

func TestCompute_NoAgreementIsDisputedAndPicksFreshest(t *testing.T) {
	current := CurrentState{ScoreHome: 2, ScoreAway: 1, Phase: "live_second_half"}
	older := sources.CanonicalMatchState{ScoreHome: 3, ScoreAway: 1, Phase: "live_second_half", Source: "espn", FetchedAt: time.Unix(100, 0)}
	newer := sources.CanonicalMatchState{ScoreHome: 4, ScoreAway: 1, Phase: "live_second_half", Source: "other", FetchedAt: time.Unix(200, 0)}
	verified := []sources.CanonicalMatchState{older, newer}

	score, level, recommended := Compute(current, verified, 0.8, 0.5)

	assert.Equal(t, 0.3, score)
	assert.Equal(t, types.ConfidenceDisputed, level)
	require.NotNil(t, recommended)
	assert.Equal(t, 4, recommended.ScoreHome)
}

func TestCompute_NoVerifiedSourcesIsDisputedWithNilRecommendation(t *testing.T) {
	current := CurrentState{ScoreHome: 0, ScoreAway: 0, Phase: "scheduled"}

	score, level, recommended := Compute(current, nil, 0.8, 0.5)

	assert.Equal(t, 0.0, score)
	assert.Equal(t, types.ConfidenceDisputed, level)
	assert.Nil(t, recommended)
}

func TestCompute_ThresholdsControlDisposition(t *testing.T) {
	current := CurrentState{ScoreHome: 1, ScoreAway: 0, Phase: "live_first_half"}
	verified := []sources.CanonicalMatchState{
		{ScoreHome: 1, ScoreAway: 0, Phase: "live_first_half"},
	}

	// score is fixed at 0.6 regardless of threshold configuration.
	score, level, _ := Compute(current, verified, 0.99, 0.99)
	assert.Equal(t, 0.6, score)
	assert.Equal(t, types.ConfidenceDisputed, level)

	score, level, _ = Compute(current, verified, 0.5, 0.1)
	assert.Equal(t, 0.6, score)
	assert.Equal(t, types.ConfidenceHigh, level)
}

func TestPhaseEquivalent_LiveVariantsMatch(t *testing.T) {
	assert.True(t, phaseEquivalent("live_first_half", "live_q2"))
	assert.True(t, phaseEquivalent("break", "live_halftime"))
	assert.True(t, phaseEquivalent("finished", "cancelled"))
	assert.False(t, phaseEquivalent("live_first_half", "finished"))
}

func TestMatchesRecommended(t *testing.T) {
	current := CurrentState{ScoreHome: 1, ScoreAway: 1, Phase: "live_first_half"}
	recommended := sources.CanonicalMatchState{ScoreHome: 1, ScoreAway: 1, Phase: "live_first_half"}
	assert.True(t, MatchesRecommended(current, recommended))

	recommended.ScoreHome = 2
	assert.False(t, MatchesRecommended(current, recommended))
}
