package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JSONMap is a generic JSONB column, following the teacher's
// PositionRequirements convention (sql.Scanner/driver.Valuer over a map).
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("JSONMap: scan source is not []byte")
	}
	return json.Unmarshal(bytes, m)
}

// League belongs to a Sport and is immutable after creation.
type League struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"not null"`
	ShortName string
	Sport     Sport  `gorm:"type:varchar(32);not null;index"`
	Country   string
	LogoURL   string
	CreatedAt time.Time
}

// Team belongs to a Sport.
type Team struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"not null"`
	ShortName string
	Sport     Sport `gorm:"type:varchar(32);not null;index"`
	LogoURL   string
	CreatedAt time.Time
}

// ScoreBreakdown is a period-level score entry (quarter, half, inning).
type ScoreBreakdown struct {
	Period string `json:"period"`
	Home   int    `json:"home"`
	Away   int    `json:"away"`
}

// Match is (league, home_team, away_team, start_time, venue?, phase).
// Invariant: HomeTeamID != AwayTeamID.
type Match struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	LeagueID   uuid.UUID  `gorm:"type:uuid;not null;index"`
	HomeTeamID uuid.UUID  `gorm:"type:uuid;not null"`
	AwayTeamID uuid.UUID  `gorm:"type:uuid;not null"`
	Sport      Sport      `gorm:"type:varchar(32);not null;index"`
	StartTime  time.Time  `gorm:"not null;index"`
	Venue      string
	Phase      MatchPhase `gorm:"type:varchar(32);not null;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// MatchState is one-to-one with Match. Monotonic: version and seq strictly
// increase on every observed change (I1).
type MatchState struct {
	MatchID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	ScoreHome     int       `gorm:"not null;default:0"`
	ScoreAway     int       `gorm:"not null;default:0"`
	ScoreBreakdown []ScoreBreakdown `gorm:"serializer:json"`
	Clock         string
	Phase         MatchPhase `gorm:"type:varchar(32);not null"`
	Period        string
	AggregateHome *int
	AggregateAway *int
	Version       int64 `gorm:"not null;default:0"`
	Seq           int64 `gorm:"not null;default:0"`
	UpdatedAt     time.Time
}

// MatchEvent is the append-only per-match event log. Uniqueness on
// (match_id, source_provider, provider_event_id) when provider_event_id is
// present (I4); Seq strictly monotonic per match (I2).
type MatchEvent struct {
	ID                  uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MatchID             uuid.UUID    `gorm:"type:uuid;not null;index:idx_match_events_match"`
	Seq                 int64        `gorm:"not null"`
	EventType           EventType    `gorm:"type:varchar(32);not null"`
	Minute              *int
	Second              *int
	Period              string
	TeamID              *uuid.UUID   `gorm:"type:uuid"`
	PlayerID            *uuid.UUID   `gorm:"type:uuid"`
	PlayerName          string
	SecondaryPlayerID   *uuid.UUID   `gorm:"type:uuid"`
	SecondaryPlayerName string
	Detail              string
	ScoreHome           *int
	ScoreAway           *int
	Synthetic           bool          `gorm:"not null;default:false;index"`
	Confidence          *float64
	SourceProvider      *ProviderName `gorm:"type:varchar(32)"`
	ProviderEventID     string        `gorm:"index:idx_match_events_dedup,unique"`
	CreatedAt           time.Time
}

// TeamStats is the flat per-team statistics blob (sport-dependent fields).
type TeamStats struct {
	Possession     *float64 `json:"possession,omitempty"`
	Shots          *int     `json:"shots,omitempty"`
	ShotsOnTarget  *int     `json:"shots_on_target,omitempty"`
	Corners        *int     `json:"corners,omitempty"`
	Fouls          *int     `json:"fouls,omitempty"`
	Offsides       *int     `json:"offsides,omitempty"`
	Passes         *int     `json:"passes,omitempty"`
	PassAccuracy   *float64 `json:"pass_accuracy,omitempty"`
	YellowCards    *int     `json:"yellow_cards,omitempty"`
	RedCards       *int     `json:"red_cards,omitempty"`
	FieldGoalPct   *float64 `json:"field_goal_pct,omitempty"`
	ThreePointPct  *float64 `json:"three_point_pct,omitempty"`
	FreeThrowPct   *float64 `json:"free_throw_pct,omitempty"`
	Rebounds       *int     `json:"rebounds,omitempty"`
	Assists        *int     `json:"assists,omitempty"`
	Turnovers      *int     `json:"turnovers,omitempty"`
	Steals         *int     `json:"steals,omitempty"`
	Blocks         *int     `json:"blocks,omitempty"`
	PowerPlays     *int     `json:"power_plays,omitempty"`
	PenaltyMinutes *int     `json:"penalty_minutes,omitempty"`
	Hits           *int     `json:"hits,omitempty"`
	AtBats         *int     `json:"at_bats,omitempty"`
	Runs           *int     `json:"runs,omitempty"`
	HomeRuns       *int     `json:"home_runs,omitempty"`
	Strikeouts     *int     `json:"strikeouts,omitempty"`
	Walks          *int     `json:"walks,omitempty"`
	Extra          JSONMap  `json:"extra,omitempty" gorm:"-"`
}

// MatchStats carries the same version/seq discipline as MatchState.
type MatchStats struct {
	MatchID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	HomeStats TeamStats `gorm:"serializer:json"`
	AwayStats TeamStats `gorm:"serializer:json"`
	Version   int64     `gorm:"not null;default:0"`
	Seq       int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// ProviderMapping is the identity bridge between canonical UUIDs and
// external provider identifiers. Unique on (entity_type, provider, provider_id).
type ProviderMapping struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EntityType  string       `gorm:"type:varchar(32);not null;index:idx_provider_mapping,unique,priority:1"`
	CanonicalID uuid.UUID    `gorm:"type:uuid;not null;index"`
	Provider    ProviderName `gorm:"type:varchar(32);not null;index:idx_provider_mapping,unique,priority:2"`
	ProviderID  string       `gorm:"not null;index:idx_provider_mapping,unique,priority:3"`
	CreatedAt   time.Time
}

// Score is the wire-level scoreboard payload shape shared between
// connectors, the normalizer, and fan-out deltas.
type Score struct {
	Home      int              `json:"home"`
	Away      int              `json:"away"`
	Breakdown []ScoreBreakdown `json:"breakdown,omitempty"`
}

// ScoreboardPayload is the canonical tier-0 shape a Connector returns and
// the Normalizer writes/publishes.
type ScoreboardPayload struct {
	MatchID   uuid.UUID  `json:"match_id"`
	Sport     Sport      `json:"sport"`
	Score     Score      `json:"score"`
	Phase     MatchPhase `json:"phase"`
	Clock     string     `json:"clock,omitempty"`
	Period    string     `json:"period,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// EventPayload is the canonical tier-1 shape a Connector or the Builder
// produces before the Normalizer assigns a seq.
type EventPayload struct {
	EventType           EventType     `json:"event_type"`
	Minute              *int          `json:"minute,omitempty"`
	Second              *int          `json:"second,omitempty"`
	Period              string        `json:"period,omitempty"`
	TeamID              *uuid.UUID    `json:"team_id,omitempty"`
	PlayerID            *uuid.UUID    `json:"player_id,omitempty"`
	PlayerName          string        `json:"player_name,omitempty"`
	SecondaryPlayerID   *uuid.UUID    `json:"secondary_player_id,omitempty"`
	SecondaryPlayerName string        `json:"secondary_player_name,omitempty"`
	Detail              string        `json:"detail,omitempty"`
	ScoreHome           *int          `json:"score_home,omitempty"`
	ScoreAway           *int          `json:"score_away,omitempty"`
	Synthetic           bool          `json:"synthetic"`
	Confidence          *float64      `json:"confidence,omitempty"`
	SourceProvider      *ProviderName `json:"source_provider,omitempty"`
	ProviderEventID     string        `json:"provider_event_id,omitempty"`
}

// StatsPayload is the canonical tier-2 shape.
type StatsPayload struct {
	MatchID   uuid.UUID `json:"match_id"`
	Home      TeamStats `json:"home"`
	Away      TeamStats `json:"away"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConnectorResult is the tagged result every Provider Connector call
// returns (§4.1): network/parse failures surface as success=false, never
// as an error return.
type ConnectorResult struct {
	Provider    ProviderName `json:"provider"`
	Tier        Tier         `json:"tier"`
	Success     bool         `json:"success"`
	LatencyMS   int64        `json:"latency_ms"`
	RateLimited bool         `json:"rate_limited"`
	Error       string       `json:"error,omitempty"`

	Scoreboard *ScoreboardPayload `json:"scoreboard,omitempty"`
	Events     []EventPayload     `json:"events,omitempty"`
	Stats      *StatsPayload      `json:"stats,omitempty"`
}

// HealthSample is one recorded outcome of a provider call, stored in the
// rolling window at `health:provider:{p}`.
type HealthSample struct {
	TS          int64 `json:"ts"`
	LatencyMS   int64 `json:"latency_ms"`
	IsError     bool  `json:"error"`
	RateLimited bool  `json:"rate_limited"`
}

// ProviderHealth is the computed composite health score for a provider.
type ProviderHealth struct {
	Provider       ProviderName `json:"provider"`
	ErrorRate      float64      `json:"error_rate"`
	AvgLatencyMS   float64      `json:"avg_latency_ms"`
	RateLimitHits  int          `json:"rate_limit_hits"`
	FreshnessLagMS float64      `json:"freshness_lag_ms"`
	Score          float64      `json:"score"`
	SampleCount    int          `json:"sample_count"`
}

// PollCommand is the JSON payload published on `ingest:poll_commands`.
type PollCommand struct {
	CanonicalMatchID string       `json:"canonical_match_id"`
	Tier             Tier         `json:"tier"`
	Sport            Sport        `json:"sport"`
	LeagueProviderID string       `json:"league_provider_id"`
	MatchProviderID  string       `json:"match_provider_id"`
	Provider         ProviderName `json:"provider"`
	Timestamp        int64        `json:"timestamp"`
}

// WSEnvelope is the server-to-client message envelope.
type WSEnvelope struct {
	Type      WSServerMsgType `json:"type"`
	Tier      Tier            `json:"tier,omitempty"`
	MatchID   string          `json:"match_id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Replay    bool            `json:"replay,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Data      interface{}     `json:"data,omitempty"`
}

// MatchSnapshot is the cached replay-on-connect payload.
type MatchSnapshot struct {
	MatchID      uuid.UUID      `json:"match_id"`
	Scoreboard   *ScoreboardPayload `json:"scoreboard,omitempty"`
	RecentEvents []EventPayload `json:"recent_events,omitempty"`
	Stats        *StatsPayload  `json:"stats,omitempty"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
}

// DisputeRecord is a Verifier bookkeeping record written when no
// confident consensus could be reached.
type DisputeRecord struct {
	MatchID         uuid.UUID `json:"match_id"`
	CurrentHome     int       `json:"current_home"`
	CurrentAway     int       `json:"current_away"`
	RecommendedHome int       `json:"recommended_home"`
	RecommendedAway int       `json:"recommended_away"`
	SourceCount     int       `json:"source_count"`
	DetectedAt      time.Time `json:"detected_at"`
}
