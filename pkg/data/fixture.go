package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is a YAML description of players, seasons and matches used to seed a store
type Fixture struct {
	Players []Player        `yaml:"players"`
	Seasons []SeasonFixture `yaml:"seasons"`
	Matches []MatchFixture  `yaml:"matches"`
}

// SeasonFixture is the YAML form of a season
type SeasonFixture struct {
	ID            string `yaml:"id"`
	LeagueID      string `yaml:"league_id"`
	Name          string `yaml:"name"`
	StartDate     string `yaml:"start_date"`
	EndDate       string `yaml:"end_date"`
	ScoringSystem string `yaml:"scoring_system"`
	PointSystem   string `yaml:"point_system"`
}

// MatchFixture is the YAML form of a match. Roster entries follow the CSV cell convention.
type MatchFixture struct {
	ID         string    `yaml:"id"`
	SeasonID   string    `yaml:"season_id"`
	OccurredAt string    `yaml:"occurred_at"`
	TeamA      [2]string `yaml:"team_a"`
	TeamB      [2]string `yaml:"team_b"`
	Score      [2]*int   `yaml:"score"`
	Ranked     *bool     `yaml:"ranked"`
}

// LoadFixture reads and converts a YAML fixture file
func LoadFixture(filename string) (*Fixture, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", filename, err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(content, &fixture); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParseError, filename, err)
	}
	return &fixture, nil
}

// SeasonModels converts the season entries into domain seasons
func (f *Fixture) SeasonModels() ([]Season, error) {
	seasons := make([]Season, 0, len(f.Seasons))
	for _, sf := range f.Seasons {
		start, err := ParseDate(sf.StartDate)
		if err != nil {
			return nil, fmt.Errorf("%w: season %s start_date: %v", ErrInvalidSeason, sf.ID, err)
		}
		end, err := ParseDate(sf.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: season %s end_date: %v", ErrInvalidSeason, sf.ID, err)
		}
		season := Season{
			ID:            sf.ID,
			LeagueID:      sf.LeagueID,
			Name:          sf.Name,
			StartDate:     start,
			EndDate:       end,
			ScoringSystem: ScoringMode(sf.ScoringSystem),
			PointSystem:   sf.PointSystem,
		}
		if season.ScoringSystem == "" {
			season.ScoringSystem = ModePointsSystem
		}
		if err := season.Validate(); err != nil {
			return nil, err
		}
		seasons = append(seasons, season)
	}
	return seasons, nil
}

// MatchModels converts the match entries into validated domain matches
func (f *Fixture) MatchModels() ([]Match, error) {
	matches := make([]Match, 0, len(f.Matches))
	for i, mf := range f.Matches {
		if mf.ID == "" {
			return nil, fmt.Errorf("%w: fixture match %d has no ID", ErrInvalidMatch, i+1)
		}
		at, err := ParseTimestamp(mf.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("%w: match %s: %v", ErrInvalidMatch, mf.ID, err)
		}

		match := Match{
			ID:           mf.ID,
			SeasonID:     mf.SeasonID,
			OccurredAt:   at,
			TeamA:        [2]RosterSlot{fixtureSlot(mf.ID, ColumnA1, mf.TeamA[0]), fixtureSlot(mf.ID, ColumnA2, mf.TeamA[1])},
			TeamB:        [2]RosterSlot{fixtureSlot(mf.ID, ColumnB1, mf.TeamB[0]), fixtureSlot(mf.ID, ColumnB2, mf.TeamB[1])},
			TeamAScore:   mf.Score[0],
			TeamBScore:   mf.Score[1],
			RankedIntent: true,
		}
		if mf.Ranked != nil {
			match.RankedIntent = *mf.Ranked
		}
		if err := match.Validate(); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func fixtureSlot(matchID, position, value string) RosterSlot {
	if len(value) > len(PlaceholderPrefix) && value[:len(PlaceholderPrefix)] == PlaceholderPrefix {
		return RosterSlot{SlotID: value[len(PlaceholderPrefix):]}
	}
	return RosterSlot{SlotID: matchID + "/" + position, PlayerID: value}
}
