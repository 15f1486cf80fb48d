package types

// Sport is the closed set of supported sports. Immutable once assigned to a
// League.
type Sport string

const (
	SportSoccer     Sport = "soccer"
	SportBasketball Sport = "basketball"
	SportHockey     Sport = "hockey"
	SportBaseball   Sport = "baseball"
	SportFootball   Sport = "football"
)

// MatchPhase is the exhaustive phase enumeration. The three disjoint
// subsets (pre-live, live, terminal) are exposed only through the pure
// helper methods below — no other package should pattern-match on the
// string value directly.
type MatchPhase string

const (
	PhaseScheduled     MatchPhase = "scheduled"
	PhasePreMatch      MatchPhase = "pre_match"
	PhaseLiveFirstHalf MatchPhase = "live_first_half"
	PhaseLiveHalftime  MatchPhase = "live_halftime"
	PhaseLiveSecondHalf MatchPhase = "live_second_half"
	PhaseLiveExtraTime MatchPhase = "live_extra_time"
	PhaseLivePenalties MatchPhase = "live_penalties"
	PhaseLiveQ1        MatchPhase = "live_q1"
	PhaseLiveQ2        MatchPhase = "live_q2"
	PhaseLiveQ3        MatchPhase = "live_q3"
	PhaseLiveQ4        MatchPhase = "live_q4"
	PhaseLiveOT        MatchPhase = "live_ot"
	PhaseLiveP1        MatchPhase = "live_p1"
	PhaseLiveP2        MatchPhase = "live_p2"
	PhaseLiveP3        MatchPhase = "live_p3"
	PhaseLiveInning    MatchPhase = "live_inning"
	PhaseBreak         MatchPhase = "break"
	PhaseSuspended     MatchPhase = "suspended"
	PhaseFinished      MatchPhase = "finished"
	PhasePostponed     MatchPhase = "postponed"
	PhaseCancelled     MatchPhase = "cancelled"
)

// IsLive reports whether the phase belongs to the live subset: any
// "live_*" phase, plus break and suspended (the match clock is running or
// paused mid-contest, not yet over).
func (p MatchPhase) IsLive() bool {
	if p == PhaseBreak || p == PhaseSuspended {
		return true
	}
	return len(p) > 5 && p[:5] == "live_"
}

// IsTerminal reports whether the phase is a final state. Terminal phases
// never transition back to live or pre-match (I5).
func (p MatchPhase) IsTerminal() bool {
	switch p {
	case PhaseFinished, PhasePostponed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// IsPreLive reports whether the match has not yet started its clock.
func (p MatchPhase) IsPreLive() bool {
	return p == PhaseScheduled || p == PhasePreMatch
}

// Tier is the update granularity: 0=scoreboard, 1=events, 2=stats.
type Tier int

const (
	TierScoreboard Tier = 0
	TierEvents     Tier = 1
	TierStats      Tier = 2
)

// ProviderName is the closed set of upstream data providers, in the
// default cascade order.
type ProviderName string

const (
	ProviderSportradar   ProviderName = "sportradar"
	ProviderESPN         ProviderName = "espn"
	ProviderFootballData ProviderName = "football_data"
	ProviderTheSportsDB  ProviderName = "thesportsdb"
)

// EventType is the closed set of match event kinds.
type EventType string

const (
	EventGoal         EventType = "goal"
	EventAssist       EventType = "assist"
	EventYellowCard   EventType = "yellow_card"
	EventRedCard      EventType = "red_card"
	EventSubstitution EventType = "substitution"
	EventPenalty      EventType = "penalty"
	EventPenaltyMiss  EventType = "penalty_miss"
	EventOwnGoal      EventType = "own_goal"
	EventVARDecision  EventType = "var_decision"
	EventPeriodStart  EventType = "period_start"
	EventPeriodEnd    EventType = "period_end"
	EventMatchStart   EventType = "match_start"
	EventMatchEnd     EventType = "match_end"
	EventShot         EventType = "shot"
	EventFoul         EventType = "foul"
	EventCorner       EventType = "corner"
	EventOffside      EventType = "offside"
	EventBasket       EventType = "basket"
	EventThreePointer EventType = "three_pointer"
	EventFreeThrow    EventType = "free_throw"
	EventRebound      EventType = "rebound"
	EventTurnover     EventType = "turnover"
	EventSteal        EventType = "steal"
	EventBlock        EventType = "block"
	EventHit          EventType = "hit"
	EventRun          EventType = "run"
	EventStrikeout    EventType = "strikeout"
	EventHomeRun      EventType = "home_run"
	EventWalk         EventType = "walk"
	EventTimeout      EventType = "timeout"
	EventGeneric      EventType = "generic"
)

// ScoringEventType returns the primary scoring event for a sport, used by
// the Builder's synthetic-event inference.
func ScoringEventType(sport Sport) EventType {
	switch sport {
	case SportSoccer, SportHockey:
		return EventGoal
	case SportBasketball:
		return EventBasket
	case SportBaseball:
		return EventRun
	default:
		return EventGeneric
	}
}

// WSClientOp is the vocabulary of operations a WebSocket client may send.
type WSClientOp string

const (
	WSOpSubscribe   WSClientOp = "subscribe"
	WSOpUnsubscribe WSClientOp = "unsubscribe"
	WSOpPing        WSClientOp = "ping"
)

// WSServerMsgType tags every server-to-client frame.
type WSServerMsgType string

const (
	WSMsgSnapshot WSServerMsgType = "snapshot"
	WSMsgDelta    WSServerMsgType = "delta"
	WSMsgEvent    WSServerMsgType = "event"
	WSMsgState    WSServerMsgType = "state"
	WSMsgPong     WSServerMsgType = "pong"
	WSMsgError    WSServerMsgType = "error"
	WSMsgPing     WSServerMsgType = "ping"
)

// ConfidenceLevel tags the Verifier's arbitration outcome.
type ConfidenceLevel string

const (
	ConfidenceHigh      ConfidenceLevel = "high"
	ConfidenceMedium    ConfidenceLevel = "medium"
	ConfidenceDisputed  ConfidenceLevel = "disputed"
)
