package models_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflip-relay/internal/models"
)

const (
	alice = "0xa11ce"
	bob   = "0xb0b"
)

func TestMatchLifecycle(t *testing.T) {
	match, err := models.NewMatch("0x1", alice, 100000000, true)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStateCreated, match.State())
	assert.Nil(t, match.Player2)
	assert.True(t, match.IsActive)

	require.NoError(t, match.Join(bob, 100000000, false))
	assert.Equal(t, models.MatchStateJoined, match.State())
	require.NotNil(t, match.Player2)
	assert.Equal(t, bob, *match.Player2)

	require.NoError(t, match.Settle(true))
	assert.Equal(t, models.MatchStateSettled, match.State())
	require.NotNil(t, match.Result)
	assert.True(t, *match.Result)

	winner, pot, err := match.Pay()
	require.NoError(t, err)
	assert.Equal(t, alice, winner)
	assert.Equal(t, uint64(200000000), pot)
	assert.Equal(t, models.MatchStatePaid, match.State())
	assert.False(t, match.IsActive)
}

func TestMatchPayPlayer2Wins(t *testing.T) {
	match, err := models.NewMatch("0x1", alice, 10, true)
	require.NoError(t, err)
	require.NoError(t, match.Join(bob, 10, false))
	require.NoError(t, match.Settle(false))

	winner, _, err := match.Pay()
	require.NoError(t, err)
	assert.Equal(t, bob, winner)
}

func TestMatchTransitionsRejectOutOfOrder(t *testing.T) {
	match, err := models.NewMatch("0x1", alice, 10, true)
	require.NoError(t, err)

	err = match.Settle(true)
	assert.ErrorIs(t, err, models.ErrObjectStateMismatch, "settle before join")

	_, _, err = match.Pay()
	assert.ErrorIs(t, err, models.ErrObjectStateMismatch, "pay before settle")

	require.NoError(t, match.Join(bob, 10, false))
	err = match.Join("0xcarol", 10, true)
	assert.ErrorIs(t, err, models.ErrObjectStateMismatch, "second join")
	assert.Equal(t, bob, *match.Player2)

	require.NoError(t, match.Settle(false))
	err = match.Settle(true)
	assert.ErrorIs(t, err, models.ErrObjectStateMismatch, "second settle")
	assert.False(t, *match.Result)

	_, _, err = match.Pay()
	require.NoError(t, err)
	_, _, err = match.Pay()
	assert.ErrorIs(t, err, models.ErrObjectStateMismatch, "second pay")
	assert.False(t, match.IsActive)
}

func TestCheckJoinable(t *testing.T) {
	match, err := models.NewMatch("0x1", alice, 100000000, true)
	require.NoError(t, err)

	err = match.CheckJoinable(100000001)
	require.ErrorIs(t, err, models.ErrObjectStateMismatch)
	assert.Contains(t, err.Error(), "bet amount mismatch")
	assert.Nil(t, match.Player2)

	require.NoError(t, match.Join(bob, 100000000, false))

	err = match.CheckJoinable(100000000)
	require.ErrorIs(t, err, models.ErrObjectStateMismatch)
	assert.Contains(t, err.Error(), "already has a second player")
}

func TestNewMatchValidation(t *testing.T) {
	_, err := models.NewMatch("0x1", "", 10, true)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = models.NewMatch("0x1", alice, 0, true)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRelationship(t *testing.T) {
	match, err := models.NewMatch("0x1", alice, 10, true)
	require.NoError(t, err)
	require.NoError(t, match.Join(bob, 10, false))

	assert.Equal(t, models.RelationshipPlayer1, match.Relationship(alice))
	assert.Equal(t, models.RelationshipPlayer2, match.Relationship(bob))
	assert.Equal(t, models.RelationshipOther, match.Relationship("0xcarol"))
	assert.Equal(t, models.RelationshipOther, match.Relationship(""))
}

func TestSUIToMistFloors(t *testing.T) {
	mist, err := models.ParseSUI("0.0059")
	require.NoError(t, err)
	assert.Equal(t, uint64(5900000), mist)

	mist, err = models.SUIToMist(decimal.NewFromFloat(0.0059))
	require.NoError(t, err)
	assert.Equal(t, uint64(5900000), mist)

	mist, err = models.ParseSUI("0.0000000019")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), mist)

	mist, err = models.ParseSUI("0.1")
	require.NoError(t, err)
	assert.Equal(t, uint64(100000000), mist)

	_, err = models.ParseSUI("-1")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = models.ParseSUI("abc")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = models.ParseSUI("99999999999999999999")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestFormatMist(t *testing.T) {
	assert.Equal(t, "0.1", models.FormatMist(100000000))
	assert.Equal(t, "0.0059", models.FormatMist(5900000))
	assert.Equal(t, "0", models.FormatMist(0))
}

func TestCheckStake(t *testing.T) {
	assert.NoError(t, models.CheckStake(100000000, 200000000))

	err := models.CheckStake(1000, 1000000000)
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "minimum bet")

	err = models.CheckStake(100000000, 150000000)
	require.ErrorIs(t, err, models.ErrValidation)
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestSetWinnerRequestValidate(t *testing.T) {
	outcome := true

	valid := &models.SetWinnerRequest{MatchID: "0xabc123", CoinResult: &outcome}
	assert.NoError(t, valid.Validate())

	cases := []*models.SetWinnerRequest{
		{MatchID: "", CoinResult: &outcome},
		{MatchID: "0xabc123"},
		{MatchID: "not-an-id", CoinResult: &outcome},
	}
	for _, req := range cases {
		err := req.Validate()
		assert.True(t, errors.Is(err, models.ErrValidation), "request %+v", req)
	}
}

func TestNewSettlement(t *testing.T) {
	s := models.NewSettlement("0x1", true, &models.SetWinnerResponse{Digest: "Dg1"})
	assert.Equal(t, models.SettlementModeSigned, s.Mode)
	assert.Equal(t, "Dg1", s.Digest)
	assert.NotEmpty(t, s.ID)

	s = models.NewSettlement("0x1", false, &models.SetWinnerResponse{TransactionBase64: "AAA="})
	assert.Equal(t, models.SettlementModeUnsigned, s.Mode)
	assert.Empty(t, s.Digest)
}
