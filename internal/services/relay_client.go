package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coinflip-relay/internal/models"
)

// RelayClient calls a running relay's POST /set_winner.
type RelayClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewRelayClient(baseURL, token string) *RelayClient {
	return &RelayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultSubmitTimeout + 5*time.Second},
	}
}

func (c *RelayClient) SetWinner(ctx context.Context, matchID string, outcome bool) (*models.SetWinnerResponse, error) {
	body, err := json.Marshal(models.SetWinnerRequest{MatchID: matchID, CoinResult: &outcome})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/set_winner", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: relay: %v", models.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: relay: %v", models.ErrDependencyUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = resp.Status
		}

		kind := models.ErrSubmissionFailure
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			kind = models.ErrValidation
		case http.StatusConflict:
			kind = models.ErrObjectStateMismatch
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusTooManyRequests:
			kind = models.ErrDependencyUnavailable
		}
		return nil, fmt.Errorf("%w: relay: %s", kind, e.Error)
	}

	var out models.SetWinnerResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: relay: decode response: %v", models.ErrDependencyUnavailable, err)
	}
	return &out, nil
}
