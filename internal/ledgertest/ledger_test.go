package ledgertest_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinflip-relay/internal/ledgertest"
	"coinflip-relay/internal/models"
	"coinflip-relay/internal/sui"
)

const testPackage = "0x2e2a6e4df21c483ae876e35cdde3a31e73091f8941e44a79670efbb312ae5eae"

func keypair(t *testing.T, seed byte) *sui.Keypair {
	t.Helper()
	kp, err := sui.NewKeypairFromSeed(bytes.Repeat([]byte{seed}, sui.SecretKeySize))
	require.NoError(t, err)
	return kp
}

func TestExecuteChecksSignerAndAppliesOnce(t *testing.T) {
	ctx := context.Background()
	ledger := ledgertest.New(testPackage)
	escrow, stranger := keypair(t, 1), keypair(t, 2)

	m, err := models.NewMatch("", stranger.Address(), 100000000, true)
	require.NoError(t, err)
	require.NoError(t, m.Join(escrow.Address(), 100000000, false))
	matchID := ledger.PutMatch(m)

	call := ledger.Contract().SetWinner(escrow.Address(), matchID, true, 100000000)
	tx, err := ledger.MoveCall(ctx, call)
	require.NoError(t, err)

	wrongSig, err := stranger.SignTransaction(tx.TxBytes)
	require.NoError(t, err)
	_, err = ledger.ExecuteTransaction(ctx, tx.TxBytes, []string{wrongSig})
	var rpcErr *sui.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, models.MatchStateJoined, ledger.Match(matchID).State())

	sig, err := escrow.SignTransaction(tx.TxBytes)
	require.NoError(t, err)
	resp, err := ledger.ExecuteTransaction(ctx, tx.TxBytes, []string{sig})
	require.NoError(t, err)
	require.NoError(t, sui.CheckExecuted(resp))
	assert.Equal(t, models.MatchStateSettled, ledger.Match(matchID).State())

	again, err := ledger.MoveCall(ctx, call)
	require.NoError(t, err)
	sig, err = escrow.SignTransaction(again.TxBytes)
	require.NoError(t, err)
	resp, err = ledger.ExecuteTransaction(ctx, again.TxBytes, []string{sig})
	require.NoError(t, err)
	var execErr *sui.ExecutionError
	assert.ErrorAs(t, sui.CheckExecuted(resp), &execErr)
}

func TestPaySuiSplitsCoin(t *testing.T) {
	ctx := context.Background()
	ledger := ledgertest.New(testPackage)
	owner := keypair(t, 3)
	coinID := ledger.Fund(owner.Address(), 1_000_000_000)

	tx, err := ledger.PaySui(ctx, sui.PaySuiRequest{
		Signer:     owner.Address(),
		InputCoins: []string{coinID},
		Recipients: []string{owner.Address()},
		Amounts:    []uint64{300_000_000},
		GasBudget:  10_000_000,
	})
	require.NoError(t, err)
	sig, err := owner.SignTransaction(tx.TxBytes)
	require.NoError(t, err)
	resp, err := ledger.ExecuteTransaction(ctx, tx.TxBytes, []string{sig})
	require.NoError(t, err)
	require.NoError(t, sui.CheckExecuted(resp))

	coins, err := ledger.GetCoins(ctx, owner.Address(), sui.SuiCoinType, nil, 10)
	require.NoError(t, err)
	require.Len(t, coins.Data, 2)
	assert.Equal(t, uint64(1_000_000_000), ledger.Balance(owner.Address()))
}

func TestMoveCallRejectsForeignPackage(t *testing.T) {
	ledger := ledgertest.New(testPackage)
	other := ledgertest.New("0x" + string(bytes.Repeat([]byte{'9'}, 64)))

	call := other.Contract().SetWinner(keypair(t, 1).Address(), "0x1", true, 1)
	_, err := ledger.MoveCall(context.Background(), call)
	var rpcErr *sui.RPCError
	assert.ErrorAs(t, err, &rpcErr)
}

func TestQueryTransactionBlocksPaging(t *testing.T) {
	ctx := context.Background()
	ledger := ledgertest.New(testPackage)
	owner := keypair(t, 4)

	for i := 0; i < 3; i++ {
		coinID := ledger.Fund(owner.Address(), 1_000_000)
		tx, err := ledger.PaySui(ctx, sui.PaySuiRequest{
			Signer:     owner.Address(),
			InputCoins: []string{coinID},
			Recipients: []string{owner.Address()},
			Amounts:    []uint64{1},
		})
		require.NoError(t, err)
		sig, err := owner.SignTransaction(tx.TxBytes)
		require.NoError(t, err)
		_, err = ledger.ExecuteTransaction(ctx, tx.TxBytes, []string{sig})
		require.NoError(t, err)
	}

	query := sui.TransactionQuery{Filter: &sui.TransactionFilter{FromAddress: owner.Address()}}
	page, err := ledger.QueryTransactionBlocks(ctx, query, nil, 2, true)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.True(t, page.HasNextPage)

	rest, err := ledger.QueryTransactionBlocks(ctx, query, page.NextCursor, 2, true)
	require.NoError(t, err)
	require.Len(t, rest.Data, 1)
	assert.False(t, rest.HasNextPage)
	assert.Less(t, rest.Data[0].Digest, page.Data[1].Digest)

	other := sui.TransactionQuery{Filter: &sui.TransactionFilter{FromAddress: keypair(t, 5).Address()}}
	none, err := ledger.QueryTransactionBlocks(ctx, other, nil, 10, true)
	require.NoError(t, err)
	assert.Empty(t, none.Data)
}
