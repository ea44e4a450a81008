package services

import "time"

const (
	KeyRateLimit        = "ratelimit:%s:%s"
	KeySettlement       = "settlement:%s"
	KeyMatchSettlements = "match:%s:settlements"
	KeyPlayerMatches    = "player:%s:matches"
	KeyIndexCursor      = "index:cursor:%s"

	TTLSettlement    = 30 * 24 * time.Hour // 30 days
	TTLPlayerMatches = 30 * 24 * time.Hour

	MaxPlayerMatches = 100

	DefaultRateLimitSettle = 30 // Max 30 settle requests per minute
	DefaultRateLimitReads  = 120
)
