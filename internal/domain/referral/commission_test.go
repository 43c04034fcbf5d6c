package referral

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quizarena/economy-api/internal/domain/ledger"
)

func TestCommission(t *testing.T) {
	six := decimal.NewFromInt(6)
	tests := []struct {
		coins, bonus string
		want         string
	}{
		{"100", "0", "6"},
		{"60", "40", "6"},
		{"0.50", "0", "0.03"},
		{"0.08", "0", "0"},
		{"12.34", "0", "0.74"},
	}
	for _, tt := range tests {
		tx := ledger.Transaction{
			Type:            ledger.TxTypeQuizReward,
			CoinsDelta:      decimal.RequireFromString(tt.coins),
			BonusCoinsDelta: decimal.RequireFromString(tt.bonus),
		}
		got := Commission(tx, six)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "%s+%s: got %s", tt.coins, tt.bonus, got)
	}
}

func TestOnlyQuizRewardsAreEligible(t *testing.T) {
	reward := ledger.Transaction{Type: ledger.TxTypeQuizReward, CoinsDelta: decimal.NewFromInt(10)}
	assert.True(t, eligible(reward))

	for _, typ := range []ledger.TxType{ledger.TxTypeReferralCommission, ledger.TxTypeReferralBonus, ledger.TxTypeVoucherReward, ledger.TxTypeBankInterest} {
		assert.False(t, eligible(ledger.Transaction{Type: typ, CoinsDelta: decimal.NewFromInt(10)}), typ)
	}
	assert.False(t, eligible(ledger.Transaction{Type: ledger.TxTypeQuizReward}))
}
