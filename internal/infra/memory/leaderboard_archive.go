package memory

import (
	"context"
	"sync"

	"trivia-live-service/internal/domain"
)

// LeaderboardArchive keeps final leaderboards in memory, keyed by PIN.
// The Redis implementation replaces it when Redis is configured.
type LeaderboardArchive struct {
	mu     sync.RWMutex
	boards map[string]domain.Leaderboard
}

func NewLeaderboardArchive() *LeaderboardArchive {
	return &LeaderboardArchive{boards: make(map[string]domain.Leaderboard)}
}

func (a *LeaderboardArchive) Store(_ context.Context, lb domain.Leaderboard) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.boards[lb.PIN] = lb
	return nil
}

// Load returns the archived leaderboard for a PIN, if any.
func (a *LeaderboardArchive) Load(_ context.Context, pin string) (domain.Leaderboard, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	lb, ok := a.boards[pin]
	return lb, ok
}
