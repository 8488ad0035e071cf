package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-live-service/internal/domain"
)

// LeaderboardArchive stores final leaderboards in Redis when a room
// finalizes. Entries expire after the configured TTL; no session history
// beyond the final leaderboard is kept.
// Stored as: SET room:{pin}:final {json} EX ttl
type LeaderboardArchive struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardArchive(client *redis.Client, ttl time.Duration) *LeaderboardArchive {
	return &LeaderboardArchive{client: client, ttl: ttl}
}

func (a *LeaderboardArchive) Store(ctx context.Context, lb domain.Leaderboard) error {
	raw, err := json.Marshal(lb)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	if err := a.client.Set(ctx, a.key(lb.PIN), raw, a.ttl).Err(); err != nil {
		return fmt.Errorf("store leaderboard: %w", err)
	}
	return nil
}

// Load fetches an archived leaderboard, if it has not expired.
func (a *LeaderboardArchive) Load(ctx context.Context, pin string) (domain.Leaderboard, error) {
	raw, err := a.client.Get(ctx, a.key(pin)).Bytes()
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("unmarshal leaderboard: %w", err)
	}
	return lb, nil
}

func (a *LeaderboardArchive) key(pin string) string {
	return "room:" + pin + ":final"
}
