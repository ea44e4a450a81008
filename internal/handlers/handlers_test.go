package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflip-relay/internal/config"
	"coinflip-relay/internal/handlers"
	"coinflip-relay/internal/ledgertest"
	"coinflip-relay/internal/models"
	"coinflip-relay/internal/services"
	"coinflip-relay/internal/sui"
)

const (
	testPackage = "0x2e2a6e4df21c483ae876e35cdde3a31e73091f8941e44a79670efbb312ae5eae"
	alice       = "0x00000000000000000000000000000000000000000000000000000000000a11ce"
	bob         = "0x0000000000000000000000000000000000000000000000000000000000000b0b"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testRelay struct {
	ledger  *ledgertest.Ledger
	store   *services.BoltStore
	metrics *services.Metrics
	hub     *handlers.WebSocketHub
	router  *gin.Engine
}

type options struct {
	signed  bool
	jwt     *services.JWTService
	limiter services.RateLimiter
}

func newTestRelay(t *testing.T, opts options) *testRelay {
	t.Helper()

	ledger := ledgertest.New(testPackage)
	store, err := services.NewBoltStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	escrowCfg := services.EscrowConfig{SenderAddress: alice}
	if opts.signed {
		kp, err := sui.NewKeypairFromSeed(bytes.Repeat([]byte{0x0e}, sui.SecretKeySize))
		require.NoError(t, err)
		escrowCfg.Signer = kp
	}

	metrics := services.NewMetrics()
	hub := handlers.NewWebSocketHub(metrics)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	escrow := services.NewEscrowService(ledger, ledger.Contract(), escrowCfg)
	escrow.SetStore(store)
	escrow.SetMetrics(metrics)
	escrow.SetBroadcaster(hub)

	matches := services.NewMatchService(ledger, ledger.Contract())
	matches.SetIndex(store)

	flipper, err := services.NewCoinFlipper("test-seed")
	require.NoError(t, err)

	router := handlers.NewRouter(handlers.RouterConfig{
		Relay:     handlers.NewRelayHandler(escrow, flipper, metrics),
		Matches:   handlers.NewMatchHandler(matches, flipper),
		WebSocket: handlers.NewWebSocketHandler(hub),
		JWT:       opts.jwt,
		Limiter:   opts.limiter,
	})

	return &testRelay{
		ledger:  ledger,
		store:   store,
		metrics: metrics,
		hub:     hub,
		router:  router,
	}
}

func (r *testRelay) joinedMatch(t *testing.T) string {
	t.Helper()
	m, err := models.NewMatch("", alice, 100000000, true)
	require.NoError(t, err)
	require.NoError(t, m.Join(bob, 100000000, false))
	return r.ledger.PutMatch(m)
}

func (r *testRelay) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	relay := newTestRelay(t, options{})

	w := relay.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok": true}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Zero(t, relay.ledger.Calls(ledgertest.MethodMoveCall))
}

func TestSetWinnerRejectsMalformedBodies(t *testing.T) {
	relay := newTestRelay(t, options{signed: true})

	bodies := []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"matchId": "0x1"}`,
		`{"coinResult": true}`,
		`{"matchId": "0x1", "coinResult": "true"}`,
		`{"matchId": "0x1", "coinResult": 1}`,
		`{"matchId": "0x1", "coinResult": null}`,
		`{"matchId": "", "coinResult": false}`,
		`{"matchId": 7, "coinResult": false}`,
		`{"matchId": "match-1", "coinResult": false}`,
	}

	for _, body := range bodies {
		w := relay.do(http.MethodPost, "/set_winner", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error": "matchId and coinResult(boolean) are required"}`, w.Body.String(), body)
	}

	assert.Zero(t, relay.ledger.Calls(ledgertest.MethodMoveCall))
	assert.Zero(t, relay.ledger.Calls(ledgertest.MethodExecute))
	assert.Equal(t, int64(len(bodies)), relay.metrics.SettleRejected.Count())
}

func TestSetWinnerUnsigned(t *testing.T) {
	relay := newTestRelay(t, options{})
	matchID := relay.joinedMatch(t)

	w := relay.do(http.MethodPost, "/set_winner", `{"matchId": "`+matchID+`", "coinResult": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.Equal(t, services.UnsignedNote, out["note"])
	assert.NotEmpty(t, out["transactionBase64"])
	assert.NotContains(t, out, "digest")

	assert.Zero(t, relay.ledger.Calls(ledgertest.MethodExecute))
	assert.Equal(t, models.MatchStateJoined, relay.ledger.Match(matchID).State())
}

func TestSetWinnerSigned(t *testing.T) {
	relay := newTestRelay(t, options{signed: true})
	matchID := relay.joinedMatch(t)

	w := relay.do(http.MethodPost, "/set_winner", `{"matchId": "`+matchID+`", "coinResult": false}`,
		"X-Request-ID", "req-42")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decode(t, w)
	assert.NotEmpty(t, out["digest"])
	assert.NotNil(t, out["effects"])
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	settled := relay.ledger.Match(matchID)
	require.NotNil(t, settled.Result)
	assert.False(t, *settled.Result)

	w = relay.do(http.MethodGet, "/settlements/"+matchID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Settlements []*models.Settlement `json:"settlements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Settlements, 1)
	assert.Equal(t, models.SettlementModeSigned, page.Settlements[0].Mode)
	assert.Equal(t, "req-42", page.Settlements[0].RequestID)
}

func TestSetWinnerFailureIsNotLeaked(t *testing.T) {
	relay := newTestRelay(t, options{signed: true})
	matchID := relay.joinedMatch(t)

	relay.ledger.FailNext(ledgertest.MethodExecute, &sui.RPCError{Code: -32000, Message: "internal node path /var/lib/sui"})

	w := relay.do(http.MethodPost, "/set_winner", `{"matchId": "`+matchID+`", "coinResult": true}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error": "transaction submission failed"}`, w.Body.String())
	assert.Equal(t, 1, relay.ledger.Calls(ledgertest.MethodExecute))
}

func TestSetWinnerRequiresTokenWhenConfigured(t *testing.T) {
	jwtService := services.NewJWTService(&config.Config{JWTSecret: "relay-secret"})
	relay := newTestRelay(t, options{jwt: jwtService})
	matchID := relay.joinedMatch(t)
	body := `{"matchId": "` + matchID + `", "coinResult": true}`

	w := relay.do(http.MethodPost, "/set_winner", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = relay.do(http.MethodPost, "/set_winner", body, "Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, relay.ledger.Calls(ledgertest.MethodMoveCall))

	token, err := jwtService.GenerateToken("frontend", time.Hour)
	require.NoError(t, err)
	w = relay.do(http.MethodPost, "/set_winner", body, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Health and reads stay public.
	assert.Equal(t, http.StatusOK, relay.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, relay.do(http.MethodGet, "/matches/"+matchID, "").Code)
}

type countingLimiter struct {
	mu    sync.Mutex
	limit int
	seen  map[string]int
}

func (l *countingLimiter) CheckRateLimit(_ context.Context, key, action string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key+"|"+action]++
	return l.seen[key+"|"+action] <= l.limit, nil
}

func TestRateLimitedRoutes(t *testing.T) {
	limiter := &countingLimiter{limit: 2, seen: make(map[string]int)}
	relay := newTestRelay(t, options{limiter: limiter})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, relay.do(http.MethodGet, "/fairness", "").Code)
	}
	w := relay.do(http.MethodGet, "/fairness", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Limits are per route and health is never limited.
	assert.Equal(t, http.StatusOK, relay.do(http.MethodGet, "/debug/metrics", "").Code)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, relay.do(http.MethodGet, "/health", "").Code)
	}
}

func TestMatchEndpoints(t *testing.T) {
	relay := newTestRelay(t, options{})
	matchID := relay.joinedMatch(t)
	relay.ledger.Fund(bob, 5900000)

	w := relay.do(http.MethodGet, "/matches/"+matchID+"?viewer="+bob, "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, string(models.MatchStateJoined), out["state"])
	assert.Equal(t, models.RelationshipPlayer2, out["relationship"])
	assert.Equal(t, "0.1", out["bet_amount_sui"])

	w = relay.do(http.MethodGet, "/matches/0x1234", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = relay.do(http.MethodGet, "/matches/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = relay.do(http.MethodGet, "/players/"+bob+"/balance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.0059", decode(t, w)["total_sui"])

	w = relay.do(http.MethodGet, "/players/nobody/matches", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFairnessEndpoints(t *testing.T) {
	relay := newTestRelay(t, options{})
	matchID := relay.joinedMatch(t)

	w := relay.do(http.MethodGet, "/fairness", "")
	require.Equal(t, http.StatusOK, w.Code)
	serverHash := decode(t, w)["server_hash"]

	w = relay.do(http.MethodGet, "/flip/"+matchID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var result services.FlipResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, serverHash, result.ServerHash)
	assert.Equal(t, bob, result.Player2)
	assert.NoError(t, services.VerifyFlip("test-seed", result))

	assert.Equal(t, http.StatusBadRequest, relay.do(http.MethodGet, "/flip/xyz", "").Code)
}

func TestFlipRefusedBeforeJoin(t *testing.T) {
	relay := newTestRelay(t, options{})
	m, err := models.NewMatch("", alice, 100000000, true)
	require.NoError(t, err)
	matchID := relay.ledger.PutMatch(m)

	w := relay.do(http.MethodGet, "/flip/"+matchID, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NotContains(t, w.Body.String(), "outcome")
	assert.NotContains(t, w.Body.String(), "hash")
}

func TestMetricsEndpoint(t *testing.T) {
	relay := newTestRelay(t, options{})
	matchID := relay.joinedMatch(t)
	relay.do(http.MethodPost, "/set_winner", `{"matchId": "`+matchID+`", "coinResult": true}`)

	w := relay.do(http.MethodGet, "/debug/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.EqualValues(t, 1, out["relay.settle.requests"])
	assert.EqualValues(t, 1, out["relay.settle.unsigned"])
}

func TestCORSPreflight(t *testing.T) {
	relay := newTestRelay(t, options{})
	h := handlers.WithCORS(relay.router)

	req := httptest.NewRequest(http.MethodOptions, "/set_winner", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Contains(t, []string{"*", "http://localhost:5173"}, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, relay.ledger.Calls(ledgertest.MethodMoveCall))
}
