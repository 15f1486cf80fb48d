package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/liveview-io/liveview/shared/pkg/logger"
	"github.com/liveview-io/liveview/shared/types"
)

const espnBase = "https://site.api.espn.com/apis/site/v2/sports"

// scheduleSyncLeague is one entry of the fixed league universe the
// schedule sync walks every cycle, grounded on
// original_source/backend/scheduler/service.py's SCHEDULE_SYNC_LEAGUES.
type scheduleSyncLeague struct {
	Sport      types.Sport
	ESPNSport  string
	ESPNLeague string
	Name       string
	Country    string
}

var scheduleSyncLeagues = []scheduleSyncLeague{
	{types.SportSoccer, "soccer", "eng.1", "Premier League", "England"},
	{types.SportSoccer, "soccer", "usa.1", "MLS", "USA"},
	{types.SportSoccer, "soccer", "esp.1", "La Liga", "Spain"},
	{types.SportSoccer, "soccer", "ger.1", "Bundesliga", "Germany"},
	{types.SportSoccer, "soccer", "ita.1", "Serie A", "Italy"},
	{types.SportSoccer, "soccer", "fra.1", "Ligue 1", "France"},
	{types.SportSoccer, "soccer", "uefa.champions", "Champions League", "Europe"},
	{types.SportBasketball, "basketball", "nba", "NBA", "USA"},
	{types.SportBasketball, "basketball", "wnba", "WNBA", "USA"},
	{types.SportHockey, "hockey", "nhl", "NHL", "USA"},
	{types.SportBaseball, "baseball", "mlb", "MLB", "USA"},
	{types.SportFootball, "football", "nfl", "NFL", "USA"},
}

var espnStatusMap = map[string]types.MatchPhase{
	"STATUS_SCHEDULED":    types.PhaseScheduled,
	"STATUS_IN_PROGRESS":  types.PhaseLiveFirstHalf,
	"STATUS_HALFTIME":     types.PhaseLiveHalftime,
	"STATUS_END_PERIOD":   types.PhaseBreak,
	"STATUS_FINAL":        types.PhaseFinished,
	"STATUS_FULL_TIME":    types.PhaseFinished,
	"STATUS_POSTPONED":    types.PhasePostponed,
	"STATUS_CANCELED":     types.PhaseCancelled,
	"STATUS_DELAYED":      types.PhaseSuspended,
	"STATUS_RAIN_DELAY":   types.PhaseSuspended,
}

// ScheduleSyncService discovers upcoming and in-progress matches from
// ESPN's public scoreboard feed and upserts them, on a cron.v3 schedule —
// "every ~4h" in spec.md.
type ScheduleSyncService struct {
	db     *gorm.DB
	log    *logger.Logger
	client *http.Client
	cron   *cron.Cron
}

func NewScheduleSyncService(db *gorm.DB, log *logger.Logger) *ScheduleSyncService {
	return &ScheduleSyncService{
		db:     db,
		log:    log,
		client: &http.Client{Timeout: 15 * time.Second},
		cron:   cron.New(),
	}
}

// Start registers the "@every 4h" job and runs an immediate sync.
func (s *ScheduleSyncService) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@every 4h", func() { s.syncOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule sync: register cron job: %w", err)
	}
	s.cron.Start()
	go s.syncOnce(ctx)
	return nil
}

func (s *ScheduleSyncService) Stop() {
	<-s.cron.Stop().Done()
}

func (s *ScheduleSyncService) syncOnce(ctx context.Context) {
	today := time.Now().UTC()
	var totalNew, totalUpdated int

	for d := 0; d < 7; d++ {
		dateStr := today.AddDate(0, 0, d).Format("20060102")
		for _, league := range scheduleSyncLeagues {
			n, u, err := s.syncLeagueDate(ctx, league, dateStr)
			if err != nil {
				s.log.Base().WithFields(map[string]interface{}{
					"league": league.Name, "date": dateStr, "error": err,
				}).Warn("schedule sync league error")
				continue
			}
			totalNew += n
			totalUpdated += u
		}
	}

	s.log.Base().WithFields(map[string]interface{}{
		"new_matches": totalNew, "updated_matches": totalUpdated,
	}).Info("schedule sync completed")
}

type espnScoreboardFeed struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID           string `json:"id"`
	Date         string `json:"date"`
	Competitions []struct {
		Date        string `json:"date"`
		Competitors []struct {
			HomeAway       string      `json:"homeAway"`
			Score          string      `json:"score"`
			AggregateScore interface{} `json:"aggregateScore"`
			Team           struct {
				ID           string      `json:"id"`
				DisplayName  string      `json:"displayName"`
				Abbreviation string      `json:"abbreviation"`
				Logo         string      `json:"logo"`
			} `json:"team"`
		} `json:"competitors"`
		Status struct {
			Type struct {
				Name         string `json:"name"`
				DisplayClock string `json:"displayClock"`
			} `json:"type"`
			DisplayClock string `json:"displayClock"`
		} `json:"status"`
		Venue struct {
			FullName string `json:"fullName"`
		} `json:"venue"`
	} `json:"competitions"`
}

func (s *ScheduleSyncService) syncLeagueDate(ctx context.Context, league scheduleSyncLeague, dateStr string) (int, int, error) {
	url := fmt.Sprintf("%s/%s/%s/scoreboard", espnBase, league.ESPNSport, league.ESPNLeague)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	q := req.URL.Query()
	q.Set("dates", dateStr)
	req.URL.RawQuery = q.Encode()

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("espn scoreboard returned %d", resp.StatusCode)
	}

	var feed espnScoreboardFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return 0, 0, fmt.Errorf("decode scoreboard: %w", err)
	}
	if len(feed.Events) == 0 {
		return 0, 0, nil
	}

	leagueID, err := s.upsertLeague(ctx, league)
	if err != nil {
		return 0, 0, err
	}

	newCount, updatedCount := 0, 0
	for _, event := range feed.Events {
		isNew, err := s.upsertMatch(ctx, leagueID, league, event)
		if err != nil {
			s.log.Base().WithFields(map[string]interface{}{"event_id": event.ID, "error": err}).Debug("schedule sync event error")
			continue
		}
		if isNew {
			newCount++
		} else {
			updatedCount++
		}
	}
	return newCount, updatedCount, nil
}

func (s *ScheduleSyncService) upsertLeague(ctx context.Context, league scheduleSyncLeague) (uuid.UUID, error) {
	var existing types.League
	err := s.db.WithContext(ctx).Where("sport = ? AND name = ?", league.Sport, league.Name).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return uuid.Nil, err
	}

	row := types.League{Name: league.Name, ShortName: league.Name, Sport: league.Sport, Country: league.Country, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, err
	}

	mapping := types.ProviderMapping{EntityType: "league", CanonicalID: row.ID, Provider: types.ProviderESPN, ProviderID: league.ESPNLeague}
	s.db.WithContext(ctx).Where("entity_type = ? AND provider = ? AND provider_id = ?", "league", types.ProviderESPN, league.ESPNLeague).FirstOrCreate(&mapping)
	return row.ID, nil
}

func (s *ScheduleSyncService) upsertTeam(ctx context.Context, sport types.Sport, espnLeague, teamID, name, shortName, logo string) (uuid.UUID, error) {
	scopedID := espnLeague + ":" + teamID
	var existing types.ProviderMapping
	err := s.db.WithContext(ctx).Where("entity_type = ? AND provider = ? AND provider_id = ?", "team", types.ProviderESPN, scopedID).First(&existing).Error
	if err == nil {
		return existing.CanonicalID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return uuid.Nil, err
	}

	row := types.Team{Name: name, ShortName: shortName, Sport: sport, LogoURL: logo, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return uuid.Nil, err
	}
	mapping := types.ProviderMapping{EntityType: "team", CanonicalID: row.ID, Provider: types.ProviderESPN, ProviderID: scopedID}
	if err := s.db.WithContext(ctx).Create(&mapping).Error; err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

func (s *ScheduleSyncService) upsertMatch(ctx context.Context, leagueID uuid.UUID, league scheduleSyncLeague, event espnEvent) (bool, error) {
	if len(event.Competitions) == 0 {
		return false, fmt.Errorf("event has no competitions")
	}
	comp := event.Competitions[0]

	var homeTeamID, awayTeamID uuid.UUID
	var scoreHome, scoreAway int
	for _, competitor := range comp.Competitors {
		teamID, err := s.upsertTeam(ctx, league.Sport, league.ESPNLeague, competitor.Team.ID, competitor.Team.DisplayName, competitor.Team.Abbreviation, competitor.Team.Logo)
		if err != nil {
			return false, err
		}
		score, _ := strconv.Atoi(competitor.Score)
		if competitor.HomeAway == "home" {
			homeTeamID, scoreHome = teamID, score
		} else {
			awayTeamID, scoreAway = teamID, score
		}
	}
	if homeTeamID == uuid.Nil || awayTeamID == uuid.Nil {
		return false, fmt.Errorf("missing home/away team")
	}

	phase, ok := espnStatusMap[comp.Status.Type.Name]
	if !ok {
		phase = types.PhaseScheduled
	}

	startTime, err := time.Parse(time.RFC3339, event.Date)
	if err != nil {
		startTime = time.Now().UTC()
	}

	var existingMapping types.ProviderMapping
	err = s.db.WithContext(ctx).Where("entity_type = ? AND provider = ? AND provider_id = ?", "match", types.ProviderESPN, event.ID).First(&existingMapping).Error
	if err == nil {
		return false, s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&types.Match{}).Where("id = ?", existingMapping.CanonicalID).Update("phase", phase).Error; err != nil {
				return err
			}
			return tx.Model(&types.MatchState{}).Where("match_id = ?", existingMapping.CanonicalID).Updates(map[string]interface{}{
				"score_home": scoreHome, "score_away": scoreAway, "phase": phase,
				"clock": comp.Status.DisplayClock,
			}).Error
		})
	}
	if err != gorm.ErrRecordNotFound {
		return false, err
	}

	match := types.Match{
		LeagueID: leagueID, HomeTeamID: homeTeamID, AwayTeamID: awayTeamID,
		Sport: league.Sport, StartTime: startTime, Venue: comp.Venue.FullName, Phase: phase,
	}
	if err := s.db.WithContext(ctx).Create(&match).Error; err != nil {
		return false, err
	}
	state := types.MatchState{MatchID: match.ID, ScoreHome: scoreHome, ScoreAway: scoreAway, Phase: phase, Clock: comp.Status.DisplayClock}
	if err := s.db.WithContext(ctx).Create(&state).Error; err != nil {
		return false, err
	}
	mapping := types.ProviderMapping{EntityType: "match", CanonicalID: match.ID, Provider: types.ProviderESPN, ProviderID: event.ID}
	if err := s.db.WithContext(ctx).Create(&mapping).Error; err != nil {
		return false, err
	}
	return true, nil
}
