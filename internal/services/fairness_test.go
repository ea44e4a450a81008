package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflip-relay/internal/models"
	"coinflip-relay/internal/services"
)

func flipMatch(t *testing.T, id, player2 string) *models.Match {
	t.Helper()
	m, err := models.NewMatch(id, alice, oneSUI, true)
	require.NoError(t, err)
	if player2 != "" {
		require.NoError(t, m.Join(player2, oneSUI, false))
	}
	return m
}

func TestCoinFlipperIsDeterministic(t *testing.T) {
	flipper, err := services.NewCoinFlipper("seed-1")
	require.NoError(t, err)

	first, err := flipper.Flip(flipMatch(t, "0xabc", bob))
	require.NoError(t, err)
	second, err := flipper.Flip(flipMatch(t, "0xabc", bob))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first.Hash, 64)
	assert.Equal(t, bob, first.Player2)

	require.NoError(t, services.VerifyFlip("seed-1", first))
}

func TestCoinFlipperRefusesUnjoinedMatch(t *testing.T) {
	flipper, err := services.NewCoinFlipper("seed-1")
	require.NoError(t, err)

	_, err = flipper.Flip(flipMatch(t, "0xabc", ""))
	assert.ErrorIs(t, err, models.ErrObjectStateMismatch)
}

func TestCoinFlipperBindsJoinedPlayer(t *testing.T) {
	flipper, err := services.NewCoinFlipper("seed-1")
	require.NoError(t, err)

	withBob, err := flipper.Flip(flipMatch(t, "0xabc", bob))
	require.NoError(t, err)
	withOther, err := flipper.Flip(flipMatch(t, "0xabc", "0x0000000000000000000000000000000000000000000000000000000000c0ffee"))
	require.NoError(t, err)
	assert.NotEqual(t, withBob.Hash, withOther.Hash)

	swapped := withBob
	swapped.Player2 = withOther.Player2
	assert.Error(t, services.VerifyFlip("seed-1", swapped))
}

func TestCoinFlipperRejectsTampering(t *testing.T) {
	flipper, err := services.NewCoinFlipper("seed-1")
	require.NoError(t, err)
	result, err := flipper.Flip(flipMatch(t, "0xabc", bob))
	require.NoError(t, err)

	assert.Error(t, services.VerifyFlip("seed-2", result))

	tampered := result
	tampered.Outcome = !tampered.Outcome
	assert.Error(t, services.VerifyFlip("seed-1", tampered))
}

func TestCoinFlipperOutcomesVary(t *testing.T) {
	flipper, err := services.NewCoinFlipper("")
	require.NoError(t, err)
	assert.Len(t, flipper.ServerSeed(), 64)

	heads := 0
	for _, id := range []string{"0x1", "0x2", "0x3", "0x4", "0x5", "0x6", "0x7", "0x8", "0x9", "0xa", "0xb", "0xc", "0xd", "0xe", "0xf", "0x10"} {
		result, err := flipper.Flip(flipMatch(t, id, bob))
		require.NoError(t, err)
		if result.Outcome {
			heads++
		}
	}
	assert.Greater(t, heads, 0)
	assert.Less(t, heads, 16)
}
