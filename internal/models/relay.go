package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const SetWinnerRequiredMessage = "matchId and coinResult(boolean) are required"

var objectIDPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

type SetWinnerRequest struct {
	MatchID    string `json:"matchId"`
	CoinResult *bool  `json:"coinResult"`
}

func (r *SetWinnerRequest) Validate() error {
	if strings.TrimSpace(r.MatchID) == "" || r.CoinResult == nil {
		return fmt.Errorf("%w: %s", ErrValidation, SetWinnerRequiredMessage)
	}
	if !IsObjectID(r.MatchID) {
		return fmt.Errorf("%w: %s", ErrValidation, SetWinnerRequiredMessage)
	}
	return nil
}

// SetWinnerResponse carries either the executed transaction (Digest, Effects)
// or, when the relay holds no key, the unsigned transaction bytes.
type SetWinnerResponse struct {
	Digest            string          `json:"digest,omitempty"`
	Effects           json.RawMessage `json:"effects,omitempty"`
	Note              string          `json:"note,omitempty"`
	TransactionBase64 string          `json:"transactionBase64,omitempty"`
}

func (r *SetWinnerResponse) Signed() bool {
	return r.Digest != ""
}

func IsObjectID(s string) bool {
	return objectIDPattern.MatchString(s)
}
