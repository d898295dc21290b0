package season

import (
	"sort"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
)

// Standing is one row of a season's standings table
type Standing struct {
	Rank          int     `json:"rank"`
	PlayerID      string  `json:"player_id"`
	Points        int     `json:"points"`
	Rating        float64 `json:"rating"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	MatchesPlayed int     `json:"matches_played"`
}

// WinRate returns wins over matches played, 0 without matches
func (s Standing) WinRate() float64 {
	if s.MatchesPlayed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.MatchesPlayed)
}

// BuildStandings orders a season's statistics by points or rating (per system), then wins,
// then player ID. Players level on score and wins share a rank.
func BuildStandings(stats []data.SeasonStats, system ScoringSystem) []Standing {
	_, byRating := system.(SeasonRating)

	rows := make([]Standing, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, Standing{
			PlayerID:      s.PlayerID,
			Points:        s.Points,
			Rating:        s.Rating,
			Wins:          s.Wins,
			Losses:        s.Losses,
			MatchesPlayed: s.MatchesPlayed,
		})
	}

	primary := func(s Standing) float64 {
		if byRating {
			return s.Rating
		}
		return float64(s.Points)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		pi, pj := primary(rows[i]), primary(rows[j])
		if pi != pj {
			return pi > pj
		}
		if rows[i].Wins != rows[j].Wins {
			return rows[i].Wins > rows[j].Wins
		}
		return rows[i].PlayerID < rows[j].PlayerID
	})

	for i := range rows {
		if i > 0 && primary(rows[i]) == primary(rows[i-1]) && rows[i].Wins == rows[i-1].Wins {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}

	return rows
}
