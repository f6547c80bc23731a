package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// LeaderboardKey is the sorted set holding user point totals
	LeaderboardKey = "leaderboard:points"

	// LeaderboardCap is the maximum number of users kept in the cache
	LeaderboardCap = 1000

	// LeaderboardTTL is refreshed on every write
	LeaderboardTTL = 24 * time.Hour
)

// ScoreEntry is a user's point total as stored in the cache.
type ScoreEntry struct {
	UserID int64
	Points int64
}

// LeaderboardCache keeps the highest point totals in a Redis sorted set.
// Only Warm creates the set; SetScore keeps an existing set current.
type LeaderboardCache interface {
	// SetScore records a user's current total. It is a no-op while the set
	// is missing, so a cold cache is never seeded with a partial ranking.
	SetScore(ctx context.Context, userID, points int64) error

	// Top returns up to limit entries, highest total first.
	Top(ctx context.Context, limit int) ([]ScoreEntry, error)

	// Warm bulk-loads entries, typically from the database after a miss.
	Warm(ctx context.Context, entries []ScoreEntry) error

	// Size returns the number of cached users (0 when the set is missing).
	Size(ctx context.Context) (int64, error)
}

// setScoreScript: ZADD + ZREMRANGEBYRANK (maintain cap) + EXPIRE (refresh TTL),
// applied only when the key exists.
var setScoreScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[2])
redis.call("ZREMRANGEBYRANK", KEYS[1], 0, -tonumber(ARGV[3]) - 1)
redis.call("EXPIRE", KEYS[1], ARGV[4])
return 1
`)

// RedisLeaderboardCache implements LeaderboardCache using a Redis sorted set.
type RedisLeaderboardCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewLeaderboardCache(client *redis.Client, logger *slog.Logger) LeaderboardCache {
	return &RedisLeaderboardCache{client: client, logger: logger.With(slog.String("component", "leaderboard_cache"))}
}

func (c *RedisLeaderboardCache) SetScore(ctx context.Context, userID, points int64) error {
	applied, err := setScoreScript.Run(ctx, c.client, []string{LeaderboardKey},
		points,
		strconv.FormatInt(userID, 10),
		LeaderboardCap,
		int64(LeaderboardTTL/time.Second),
	).Int()
	if err != nil {
		return fmt.Errorf("set leaderboard score: %w", err)
	}

	if applied == 0 {
		c.logger.Debug("leaderboard cold, score skipped", slog.Int64("user_id", userID))
		return nil
	}
	c.logger.Debug("score set", slog.Int64("user_id", userID), slog.Int64("points", points))
	return nil
}

func (c *RedisLeaderboardCache) Top(ctx context.Context, limit int) ([]ScoreEntry, error) {
	if limit <= 0 {
		return nil, nil
	}

	results, err := c.client.ZRevRangeWithScores(ctx, LeaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	entries := make([]ScoreEntry, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		userID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			c.logger.Warn("skipping malformed leaderboard member", slog.String("member", member))
			continue
		}
		entries = append(entries, ScoreEntry{UserID: userID, Points: int64(z.Score)})
	}
	return entries, nil
}

func (c *RedisLeaderboardCache) Warm(ctx context.Context, entries []ScoreEntry) error {
	if len(entries) == 0 {
		return nil
	}

	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Score: float64(e.Points), Member: strconv.FormatInt(e.UserID, 10)}
	}

	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, LeaderboardKey, members...)
	pipe.ZRemRangeByRank(ctx, LeaderboardKey, 0, int64(-LeaderboardCap-1))
	pipe.Expire(ctx, LeaderboardKey, LeaderboardTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("warm leaderboard: %w", err)
	}

	c.logger.Info("leaderboard warmed", slog.Int("entries", len(entries)))
	return nil
}

func (c *RedisLeaderboardCache) Size(ctx context.Context) (int64, error) {
	n, err := c.client.ZCard(ctx, LeaderboardKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count leaderboard: %w", err)
	}
	return n, nil
}
