package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"coinflip-relay/internal/middleware"
	"coinflip-relay/internal/models"
	"coinflip-relay/internal/services"
)

const maxSetWinnerBody = 4 << 10

const setWinnerSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["matchId", "coinResult"],
  "properties": {
    "matchId": {"type": "string", "pattern": "^0x[0-9a-fA-F]{1,64}$"},
    "coinResult": {"type": "boolean"}
  }
}`

var setWinnerSchema = jsonschema.MustCompileString("set_winner.schema.json", setWinnerSchemaJSON)

type RelayHandler struct {
	escrow  *services.EscrowService
	flipper *services.CoinFlipper
	metrics *services.Metrics
}

func NewRelayHandler(escrow *services.EscrowService, flipper *services.CoinFlipper, metrics *services.Metrics) *RelayHandler {
	return &RelayHandler{
		escrow:  escrow,
		flipper: flipper,
		metrics: metrics,
	}
}

func (h *RelayHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *RelayHandler) SetWinner(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSetWinnerBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": models.SetWinnerRequiredMessage})
		return
	}

	req, err := decodeSetWinner(body)
	if err != nil {
		if h.metrics != nil {
			h.metrics.SettleRejected.Inc(1)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": models.SetWinnerRequiredMessage})
		return
	}

	resp, err := h.escrow.SetWinner(c.Request.Context(), req)
	if err != nil {
		respondError(c, "set_winner", err)
		return
	}

	if resp.Signed() {
		log.Printf("[%s] Settled match %s: %s", c.GetString(middleware.RequestIDKey), req.MatchID, resp.Digest)
	}
	c.JSON(http.StatusOK, resp)
}

// decodeSetWinner checks the raw body against the schema before binding, so
// a string "true" or a missing field is refused rather than coerced.
func decodeSetWinner(body []byte) (*models.SetWinnerRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if err := setWinnerSchema.Validate(doc); err != nil {
		return nil, err
	}

	var req models.SetWinnerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *RelayHandler) Settlements(c *gin.Context) {
	settlements, err := h.escrow.Settlements(c.Request.Context(), c.Param("matchId"))
	if err != nil {
		respondError(c, "settlements", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match_id":    c.Param("matchId"),
		"settlements": settlements,
	})
}

// Fairness publishes the commitment to the flip seed.
func (h *RelayHandler) Fairness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server_hash": h.flipper.ServerHash(),
		"algorithm":   "HMAC-SHA256(server_seed, match_id:player2), low bit of first byte",
	})
}

func (h *RelayHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
