package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"coinflip-relay/internal/middleware"
	"coinflip-relay/internal/services"
)

type RouterConfig struct {
	Relay     *RelayHandler
	Matches   *MatchHandler
	WebSocket *WebSocketHandler

	// JWT restricts /set_winner to token holders when enabled.
	JWT *services.JWTService
	// Limiter is optional.
	Limiter services.RateLimiter
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.RequestID())

	router.GET("/health", cfg.Relay.Health)

	settle := router.Group("")
	if cfg.JWT != nil && cfg.JWT.Enabled() {
		settle.Use(middleware.AuthMiddleware(cfg.JWT))
	}
	if cfg.Limiter != nil {
		settle.Use(middleware.RateLimitMiddleware(cfg.Limiter))
	}
	settle.POST("/set_winner", cfg.Relay.SetWinner)

	reads := router.Group("")
	if cfg.Limiter != nil {
		reads.Use(middleware.RateLimitMiddleware(cfg.Limiter))
	}
	{
		reads.GET("/settlements/:matchId", cfg.Relay.Settlements)
		reads.GET("/fairness", cfg.Relay.Fairness)
		reads.GET("/flip/:matchId", cfg.Matches.Flip)
		reads.GET("/debug/metrics", cfg.Relay.Metrics)

		if cfg.Matches != nil {
			reads.GET("/matches/:id", cfg.Matches.GetMatch)
			reads.GET("/players/:address/matches", cfg.Matches.GetPlayerMatches)
			reads.GET("/players/:address/balance", cfg.Matches.GetBalance)
		}
		if cfg.WebSocket != nil {
			reads.GET("/ws", cfg.WebSocket.HandleWebSocket)
		}
	}

	return router
}

// WithCORS lets the browser frontend call the relay from any origin.
func WithCORS(h http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	}).Handler(h)
}
