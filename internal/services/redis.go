package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"coinflip-relay/internal/config"
	"coinflip-relay/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisService struct {
	client *redis.Client
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	opts := &redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	}
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		parsed, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %v", err)
		}
		if parsed.Password == "" {
			parsed.Password = cfg.RedisPass
		}
		opts = parsed
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{client: client}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

func (s *RedisService) SaveSettlement(ctx context.Context, settlement *models.Settlement) error {
	data, err := json.Marshal(settlement)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %v", err)
	}

	key := fmt.Sprintf(KeySettlement, settlement.ID)
	if err := s.client.Set(ctx, key, data, TTLSettlement).Err(); err != nil {
		return fmt.Errorf("failed to save settlement: %v", err)
	}

	matchKey := fmt.Sprintf(KeyMatchSettlements, settlement.MatchID)
	if err := s.client.ZAdd(ctx, matchKey, redis.Z{
		Score:  float64(settlement.CreatedAt.UnixNano()),
		Member: settlement.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index settlement: %v", err)
	}
	s.client.Expire(ctx, matchKey, TTLSettlement)

	return nil
}

func (s *RedisService) GetSettlements(ctx context.Context, matchID string) ([]*models.Settlement, error) {
	ids, err := s.client.ZRange(ctx, fmt.Sprintf(KeyMatchSettlements, matchID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement ids: %v", err)
	}
	if len(ids) == 0 {
		return []*models.Settlement{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, fmt.Sprintf(KeySettlement, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipeline execution failed: %v", err)
	}

	settlements := make([]*models.Settlement, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			continue
		}

		var settlement models.Settlement
		if err := json.Unmarshal([]byte(data), &settlement); err != nil {
			continue
		}
		settlements = append(settlements, &settlement)
	}

	return settlements, nil
}

func (s *RedisService) AddPlayerMatch(ctx context.Context, player, matchID string) error {
	key := fmt.Sprintf(KeyPlayerMatches, strings.ToLower(player))

	// NX keeps the first-seen time so a match does not jump to the top every
	// time it is touched.
	if err := s.client.ZAddNX(ctx, key, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: matchID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add player match: %v", err)
	}

	s.client.ZRemRangeByRank(ctx, key, 0, -(MaxPlayerMatches + 1))
	s.client.Expire(ctx, key, TTLPlayerMatches)

	return nil
}

func (s *RedisService) PlayerMatches(ctx context.Context, player string, limit int) ([]string, error) {
	if limit <= 0 || limit > MaxPlayerMatches {
		limit = MaxPlayerMatches
	}

	key := fmt.Sprintf(KeyPlayerMatches, strings.ToLower(player))
	ids, err := s.client.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get player matches: %v", err)
	}
	return ids, nil
}

func (s *RedisService) Cursor(ctx context.Context, name string) (*string, error) {
	cursor, err := s.client.Get(ctx, fmt.Sprintf(KeyIndexCursor, name)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %v", err)
	}
	return &cursor, nil
}

func (s *RedisService) SaveCursor(ctx context.Context, name, cursor string) error {
	return s.client.Set(ctx, fmt.Sprintf(KeyIndexCursor, name), cursor, 0).Err()
}

var rateLimitScript = redis.NewScript(`
	local count = redis.call("INCR", KEYS[1])
	if count == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return count
`)

func (s *RedisService) CheckRateLimit(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error) {
	k := fmt.Sprintf(KeyRateLimit, key, action)

	count, err := rateLimitScript.Run(ctx, s.client, []string{k}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	return count <= int64(limit), nil
}

func (s *RedisService) ClearRateLimit(ctx context.Context, key, action string) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyRateLimit, key, action)).Err()
}
