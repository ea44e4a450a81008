package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coinflip-relay/internal/models"
	"coinflip-relay/internal/services"
)

// MatchHandler serves read-only views of on-chain matches.
type MatchHandler struct {
	matches *services.MatchService
	flipper *services.CoinFlipper
}

func NewMatchHandler(matches *services.MatchService, flipper *services.CoinFlipper) *MatchHandler {
	return &MatchHandler{matches: matches, flipper: flipper}
}

func (h *MatchHandler) GetMatch(c *gin.Context) {
	match, err := h.matches.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get match", err)
		return
	}

	c.JSON(http.StatusOK, models.NewMatchView(match, c.Query("viewer")))
}

func (h *MatchHandler) GetPlayerMatches(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	views, err := h.matches.ListPlayerMatches(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		respondError(c, "list matches", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"player":  c.Param("address"),
		"matches": views,
		"count":   len(views),
	})
}

func (h *MatchHandler) GetBalance(c *gin.Context) {
	balance, err := h.matches.GetBalance(c.Request.Context(), c.Param("address"))
	if err != nil {
		respondError(c, "get balance", err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// Flip reveals the outcome of a match once it has been joined.
func (h *MatchHandler) Flip(c *gin.Context) {
	match, err := h.matches.GetMatch(c.Request.Context(), c.Param("matchId"))
	if err != nil {
		respondError(c, "flip", err)
		return
	}

	result, err := h.flipper.Flip(match)
	if err != nil {
		respondError(c, "flip", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
