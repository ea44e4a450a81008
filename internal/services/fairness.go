package services

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"coinflip-relay/internal/models"
)

// CoinFlipper derives match outcomes from a secret server seed. Publishing
// ServerHash before play and the seed afterwards lets players check every
// result with VerifyFlip. Outcomes are bound to the joined player, so none
// exists before a match has its second player.
type CoinFlipper struct {
	serverSeed string
}

type FlipResult struct {
	MatchID    string `json:"match_id"`
	Player2    string `json:"player2"`
	Outcome    bool   `json:"outcome"`
	Hash       string `json:"hash"`
	ServerHash string `json:"server_hash"`
}

func NewCoinFlipper(serverSeed string) (*CoinFlipper, error) {
	if serverSeed == "" {
		seed, err := GenerateServerSeed()
		if err != nil {
			return nil, err
		}
		serverSeed = seed
	}
	return &CoinFlipper{serverSeed: serverSeed}, nil
}

func GenerateServerSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate server seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (f *CoinFlipper) ServerHash() string {
	hash := sha256.Sum256([]byte(f.serverSeed))
	return hex.EncodeToString(hash[:])
}

func (f *CoinFlipper) ServerSeed() string {
	return f.serverSeed
}

// Flip returns the outcome for a joined match.
func (f *CoinFlipper) Flip(match *models.Match) (FlipResult, error) {
	if match.Player2 == nil {
		return FlipResult{}, fmt.Errorf("%w: match %s has no second player yet", models.ErrObjectStateMismatch, match.ID)
	}

	outcome, hash := flip(f.serverSeed, match.ID, *match.Player2)
	return FlipResult{
		MatchID:    match.ID,
		Player2:    *match.Player2,
		Outcome:    outcome,
		Hash:       hash,
		ServerHash: f.ServerHash(),
	}, nil
}

// VerifyFlip recomputes a result from the revealed seed.
func VerifyFlip(serverSeed string, result FlipResult) error {
	seedHash := sha256.Sum256([]byte(serverSeed))
	if hex.EncodeToString(seedHash[:]) != result.ServerHash {
		return fmt.Errorf("server seed does not match committed hash")
	}

	outcome, hash := flip(serverSeed, result.MatchID, result.Player2)
	if hash != result.Hash || outcome != result.Outcome {
		return fmt.Errorf("flip for match %s does not verify", result.MatchID)
	}
	return nil
}

// The outcome is the low bit of the first byte of
// HMAC-SHA256(seed, "matchID:player2").
func flip(serverSeed, matchID, player2 string) (bool, string) {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(matchID + ":" + player2))
	sum := h.Sum(nil)
	return sum[0]&1 == 1, hex.EncodeToString(sum)
}
