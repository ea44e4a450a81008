package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SettlementMode string

const (
	SettlementModeSigned   SettlementMode = "signed"
	SettlementModeUnsigned SettlementMode = "unsigned"
)

// Settlement is the relay's own record of a set_winner request it served.
type Settlement struct {
	ID        string         `json:"id"`
	MatchID   string         `json:"match_id"`
	Outcome   bool           `json:"outcome"`
	Mode      SettlementMode `json:"mode"`
	Digest    string         `json:"digest,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func GenerateSettlementID() string {
	return fmt.Sprintf("settle_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func NewSettlement(matchID string, outcome bool, resp *SetWinnerResponse) *Settlement {
	s := &Settlement{
		ID:        GenerateSettlementID(),
		MatchID:   matchID,
		Outcome:   outcome,
		Mode:      SettlementModeUnsigned,
		CreatedAt: time.Now().UTC(),
	}
	if resp.Signed() {
		s.Mode = SettlementModeSigned
		s.Digest = resp.Digest
	}
	return s
}
