// Package contract describes the coinflip Move module entry points and the
// layout of the CoinFlipMatch object.
package contract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"coinflip-relay/internal/models"
	"coinflip-relay/internal/sui"
)

const (
	DefaultModule = "coinflip"
	MatchStruct   = "CoinFlipMatch"

	FunctionCreateMatch      = "create_match"
	FunctionAddAnotherPlayer = "add_another_player"
	FunctionSetWinner        = "set_winner"
	FunctionPayWinner        = "pay_winner"
)

var Functions = []string{
	FunctionCreateMatch,
	FunctionAddAnotherPlayer,
	FunctionSetWinner,
	FunctionPayWinner,
}

type Contract struct {
	PackageID string
	Module    string
}

func New(packageID, module string) *Contract {
	if module == "" {
		module = DefaultModule
	}
	return &Contract{PackageID: packageID, Module: module}
}

func (c *Contract) MatchType() string {
	return fmt.Sprintf("%s::%s::%s", c.PackageID, c.Module, MatchStruct)
}

func (c *Contract) call(signer, function string, gasBudget uint64, args ...any) sui.MoveCallRequest {
	return sui.MoveCallRequest{
		Signer:          signer,
		PackageObjectID: c.PackageID,
		Module:          c.Module,
		Function:        function,
		TypeArguments:   []string{},
		Arguments:       args,
		GasBudget:       gasBudget,
	}
}

// CreateMatch: create_match(stakeCoin, betAmountU64, player1ChoiceBool).
func (c *Contract) CreateMatch(signer, stakeCoin string, betAmount uint64, choice bool, gasBudget uint64) sui.MoveCallRequest {
	return c.call(signer, FunctionCreateMatch, gasBudget, stakeCoin, strconv.FormatUint(betAmount, 10), choice)
}

// AddAnotherPlayer: add_another_player(stakeCoin, matchObject, player2ChoiceBool).
func (c *Contract) AddAnotherPlayer(signer, stakeCoin, matchID string, choice bool, gasBudget uint64) sui.MoveCallRequest {
	return c.call(signer, FunctionAddAnotherPlayer, gasBudget, stakeCoin, matchID, choice)
}

// SetWinner: set_winner(matchObject, resultBool).
func (c *Contract) SetWinner(signer, matchID string, result bool, gasBudget uint64) sui.MoveCallRequest {
	return c.call(signer, FunctionSetWinner, gasBudget, matchID, result)
}

// PayWinner: pay_winner(matchObject).
func (c *Contract) PayWinner(signer, matchID string, gasBudget uint64) sui.MoveCallRequest {
	return c.call(signer, FunctionPayWinner, gasBudget, matchID)
}

// IsMatchType reports whether a fully qualified type names a CoinFlipMatch of
// any package.
func IsMatchType(typ string) bool {
	return strings.HasSuffix(typ, "::"+MatchStruct)
}

// MatchFields is the JSON rendering of the CoinFlipMatch struct fields.
// Option values render as null or the inner value.
type MatchFields struct {
	ID            json.RawMessage `json:"id,omitempty"`
	Player1       string          `json:"player1"`
	Player2       *string         `json:"player2"`
	BetAmount     sui.U64         `json:"bet_amount"`
	Player1Choice bool            `json:"player1_choice"`
	Player2Choice *bool           `json:"player2_choice"`
	Result        *bool           `json:"result"`
	IsActive      bool            `json:"is_active"`
}

func FieldsFromMatch(m *models.Match) MatchFields {
	return MatchFields{
		Player1:       m.Player1,
		Player2:       m.Player2,
		BetAmount:     sui.U64(m.BetAmount),
		Player1Choice: m.Player1Choice,
		Player2Choice: m.Player2Choice,
		Result:        m.Result,
		IsActive:      m.IsActive,
	}
}

// DecodeMatch converts a fetched object into a Match, rejecting objects that
// are not CoinFlipMatch instances of this deployment.
func (c *Contract) DecodeMatch(obj *sui.ObjectData) (*models.Match, error) {
	if obj.Deleted {
		return &models.Match{ID: obj.ObjectID, Version: uint64(obj.Version), IsActive: false}, nil
	}
	if obj.Content == nil {
		return nil, fmt.Errorf("%w: match object %s has no content", models.ErrObjectStateMismatch, obj.ObjectID)
	}

	if expected := c.MatchType(); obj.Content.Type != expected {
		return nil, fmt.Errorf("%w: object type mismatch: expected %s, got %s",
			models.ErrObjectStateMismatch, expected, obj.Content.Type)
	}

	var fields MatchFields
	if err := json.Unmarshal(obj.Content.Fields, &fields); err != nil {
		return nil, fmt.Errorf("%w: decode match %s: %v", models.ErrObjectStateMismatch, obj.ObjectID, err)
	}

	return &models.Match{
		ID:            obj.ObjectID,
		Player1:       fields.Player1,
		Player2:       fields.Player2,
		BetAmount:     uint64(fields.BetAmount),
		Player1Choice: fields.Player1Choice,
		Player2Choice: fields.Player2Choice,
		Result:        fields.Result,
		IsActive:      fields.IsActive,
		Version:       uint64(obj.Version),
	}, nil
}
