package app

import (
	"sort"
	"time"

	"trivia-live-service/internal/domain"
)

// buildLeaderboard ranks players by score descending; ties go to the
// earlier joiner, which keeps the ordering stable and deterministic across
// rebuilds. Ranking keys on player id, never display name.
func buildLeaderboard(pin, quizID string, players *roster, now time.Time) domain.Leaderboard {
	ranked := make([]*domain.Player, 0, len(players.players))
	for _, p := range players.players {
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].JoinOrder < ranked[j].JoinOrder
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:    p.PlayerID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Rank:        i + 1,
		})
	}
	return domain.Leaderboard{
		PIN:       pin,
		QuizID:    quizID,
		Entries:   entries,
		UpdatedAt: now,
	}
}
