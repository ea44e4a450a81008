package services

import (
	"context"
	"time"

	"coinflip-relay/internal/models"
)

// SettlementStore keeps the relay's record of settle requests it served.
type SettlementStore interface {
	SaveSettlement(ctx context.Context, s *models.Settlement) error
	GetSettlements(ctx context.Context, matchID string) ([]*models.Settlement, error)
}

// MatchIndex maps players to the matches they touched and remembers how far
// the indexer has read.
type MatchIndex interface {
	AddPlayerMatch(ctx context.Context, player, matchID string) error
	PlayerMatches(ctx context.Context, player string, limit int) ([]string, error)
	Cursor(ctx context.Context, name string) (*string, error)
	SaveCursor(ctx context.Context, name, cursor string) error
}

// RateLimiter reports whether key may perform action within the window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key, action string, limit int, window time.Duration) (bool, error)
}
