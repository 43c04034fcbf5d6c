package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func chain(userID uuid.UUID, deltas ...[2]string) []Transaction {
	coins, bonus := decimal.Zero, decimal.Zero
	txs := make([]Transaction, 0, len(deltas))
	for i, delta := range deltas {
		cd, bd := d(delta[0]), d(delta[1])
		txs = append(txs, Transaction{
			Seq:              int64(i + 1),
			UserID:           userID,
			CoinsDelta:       cd,
			BonusCoinsDelta:  bd,
			CoinsBefore:      coins,
			BonusCoinsBefore: bonus,
			CoinsAfter:       coins.Add(cd),
			BonusCoinsAfter:  bonus.Add(bd),
		})
		coins, bonus = coins.Add(cd), bonus.Add(bd)
	}
	return txs
}

func TestFoldReconstructsBalance(t *testing.T) {
	userID := uuid.New()
	txs := chain(userID, [2]string{"100", "50"}, [2]string{"-30.25", "0"}, [2]string{"0", "-50"})

	b, err := Fold(userID, txs)
	require.NoError(t, err)
	assert.True(t, b.Coins.Equal(d("69.75")), b.Coins.String())
	assert.True(t, b.BonusCoins.IsZero())
}

func TestFoldDetectsBrokenChain(t *testing.T) {
	userID := uuid.New()
	txs := chain(userID, [2]string{"100", "0"}, [2]string{"10", "0"})
	txs[1].CoinsBefore = d("90")

	_, err := Fold(userID, txs)
	assert.ErrorIs(t, err, ErrReplayMismatch)
}

func TestFoldDetectsBadArithmetic(t *testing.T) {
	userID := uuid.New()
	txs := chain(userID, [2]string{"100", "0"})
	txs[0].CoinsAfter = d("101")

	_, err := Fold(userID, txs)
	assert.ErrorIs(t, err, ErrReplayMismatch)
}

func TestFoldEmptyLogIsZero(t *testing.T) {
	b, err := Fold(uuid.New(), nil)
	require.NoError(t, err)
	assert.True(t, b.Total().IsZero())
}
