package season

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pschwagler/beach-kings-sub002/pkg/data"
)

func TestBuildStandings_Points(t *testing.T) {
	stats := []data.SeasonStats{
		{PlayerID: "dave", Points: 4, Wins: 1, Losses: 1, MatchesPlayed: 2},
		{PlayerID: "alice", Points: 6, Wins: 2, MatchesPlayed: 2},
		{PlayerID: "carol", Points: 4, Wins: 1, Losses: 1, MatchesPlayed: 2},
		{PlayerID: "bob", Points: 4, Wins: 0, Losses: 4, MatchesPlayed: 4},
		{PlayerID: "erin", Points: 2, Losses: 2, MatchesPlayed: 2},
	}

	standings := BuildStandings(stats, DefaultPointsSystem())
	require.Len(t, standings, 5)

	order := make([]string, len(standings))
	ranks := make([]int, len(standings))
	for i, s := range standings {
		order[i] = s.PlayerID
		ranks[i] = s.Rank
	}

	assert.Equal(t, []string{"alice", "carol", "dave", "bob", "erin"}, order)
	assert.Equal(t, []int{1, 2, 2, 4, 5}, ranks)
}

func TestBuildStandings_Rating(t *testing.T) {
	stats := []data.SeasonStats{
		{PlayerID: "alice", Rating: 1190, Points: 99, Wins: 1, MatchesPlayed: 3},
		{PlayerID: "bob", Rating: 1215.5, Wins: 2, MatchesPlayed: 3},
	}

	standings := BuildStandings(stats, SeasonRating{})
	require.Len(t, standings, 2)

	assert.Equal(t, "bob", standings[0].PlayerID)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, 2, standings[1].Rank)
	assert.InDelta(t, 2.0/3.0, standings[0].WinRate(), tolerance)
}

func TestBuildStandings_Empty(t *testing.T) {
	assert.Empty(t, BuildStandings(nil, SeasonRating{}))
	assert.Zero(t, Standing{}.WinRate())
}
