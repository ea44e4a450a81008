package models

import (
	"fmt"
	"strings"
)

type MatchState string

const (
	MatchStateCreated MatchState = "created"
	MatchStateJoined  MatchState = "joined"
	MatchStateSettled MatchState = "settled"
	MatchStatePaid    MatchState = "paid"
)

// Match mirrors the shared CoinFlipMatch object held on the ledger.
type Match struct {
	ID            string  `json:"id"`
	Player1       string  `json:"player1"`
	Player2       *string `json:"player2"`
	BetAmount     uint64  `json:"bet_amount"`
	Player1Choice bool    `json:"player1_choice"`
	Player2Choice *bool   `json:"player2_choice"`
	Result        *bool   `json:"result"`
	IsActive      bool    `json:"is_active"`
	Version       uint64  `json:"version,omitempty"`
}

func NewMatch(id, player1 string, betAmount uint64, choice bool) (*Match, error) {
	if strings.TrimSpace(player1) == "" {
		return nil, fmt.Errorf("%w: player1 address is required", ErrValidation)
	}
	if betAmount == 0 {
		return nil, fmt.Errorf("%w: bet amount must be positive", ErrValidation)
	}

	return &Match{
		ID:            id,
		Player1:       player1,
		BetAmount:     betAmount,
		Player1Choice: choice,
		IsActive:      true,
	}, nil
}

func (m *Match) State() MatchState {
	switch {
	case !m.IsActive:
		return MatchStatePaid
	case m.Result != nil:
		return MatchStateSettled
	case m.Player2 != nil:
		return MatchStateJoined
	default:
		return MatchStateCreated
	}
}

// CheckJoinable is the local pre-check run against a freshly fetched match
// before a join transaction is built.
func (m *Match) CheckJoinable(stake uint64) error {
	if m.State() != MatchStateCreated {
		return fmt.Errorf("%w: match %s already has a second player", ErrObjectStateMismatch, m.ID)
	}
	if stake != m.BetAmount {
		return fmt.Errorf("%w: bet amount mismatch: match requires %s SUI, stake is %s SUI",
			ErrObjectStateMismatch, FormatMist(m.BetAmount), FormatMist(stake))
	}
	return nil
}

func (m *Match) Join(player string, stake uint64, choice bool) error {
	if strings.TrimSpace(player) == "" {
		return fmt.Errorf("%w: player2 address is required", ErrValidation)
	}
	if err := m.CheckJoinable(stake); err != nil {
		return err
	}

	m.Player2 = &player
	m.Player2Choice = &choice
	return nil
}

func (m *Match) Settle(result bool) error {
	if state := m.State(); state != MatchStateJoined {
		return fmt.Errorf("%w: cannot settle match %s in state %s", ErrObjectStateMismatch, m.ID, state)
	}

	m.Result = &result
	return nil
}

// Pay closes the match and reports who receives the pot. The pot is both
// stakes. Player2 only wins when their call matches the result and player1's
// does not.
func (m *Match) Pay() (string, uint64, error) {
	if state := m.State(); state != MatchStateSettled {
		return "", 0, fmt.Errorf("%w: cannot pay match %s in state %s", ErrObjectStateMismatch, m.ID, state)
	}

	winner := m.Player1
	if m.Player1Choice != *m.Result && m.Player2Choice != nil && *m.Player2Choice == *m.Result {
		winner = *m.Player2
	}

	m.IsActive = false
	return winner, m.Pot(), nil
}

func (m *Match) Pot() uint64 {
	if m.Player2 == nil {
		return m.BetAmount
	}
	return m.BetAmount * 2
}

// Relationship tags the match from the point of view of address.
func (m *Match) Relationship(address string) string {
	switch {
	case address == "":
		return RelationshipOther
	case strings.EqualFold(m.Player1, address):
		return RelationshipPlayer1
	case m.Player2 != nil && strings.EqualFold(*m.Player2, address):
		return RelationshipPlayer2
	default:
		return RelationshipOther
	}
}

func (m *Match) Clone() *Match {
	c := *m
	if m.Player2 != nil {
		p := *m.Player2
		c.Player2 = &p
	}
	if m.Player2Choice != nil {
		v := *m.Player2Choice
		c.Player2Choice = &v
	}
	if m.Result != nil {
		v := *m.Result
		c.Result = &v
	}
	return &c
}
