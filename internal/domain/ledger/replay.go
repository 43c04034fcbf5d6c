package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fold replays transactions in log order starting from a zero balance. It fails on the
// first record whose before values do not match the running balance or whose after
// values are not before plus delta.
func Fold(userID uuid.UUID, txs []Transaction) (Balance, error) {
	b := Balance{UserID: userID, Coins: decimal.Zero, BonusCoins: decimal.Zero}
	for _, t := range txs {
		if !t.CoinsBefore.Equal(b.Coins) || !t.BonusCoinsBefore.Equal(b.BonusCoins) {
			return b, fmt.Errorf("%w: transaction %d does not continue from the previous balance", ErrReplayMismatch, t.Seq)
		}
		if !t.CoinsAfter.Equal(t.CoinsBefore.Add(t.CoinsDelta)) || !t.BonusCoinsAfter.Equal(t.BonusCoinsBefore.Add(t.BonusCoinsDelta)) {
			return b, fmt.Errorf("%w: transaction %d after differs from before plus delta", ErrReplayMismatch, t.Seq)
		}
		if t.CoinsAfter.IsNegative() || t.BonusCoinsAfter.IsNegative() {
			return b, fmt.Errorf("%w: transaction %d leaves a negative balance", ErrReplayMismatch, t.Seq)
		}
		b.Coins = t.CoinsAfter
		b.BonusCoins = t.BonusCoinsAfter
		b.UpdatedAt = t.CreatedAt
	}
	return b, nil
}
