package referral

import (
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/pkg/money"
)

// Commission returns round(amount * rate / 100) for a quiz reward.
func Commission(t ledger.Transaction, rate decimal.Decimal) decimal.Decimal {
	amount := t.Amount()
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return money.Percent(amount, rate)
}

// eligible reports whether a committed transaction can earn a commission.
func eligible(t ledger.Transaction) bool {
	return t.Type == ledger.TxTypeQuizReward && t.Amount().IsPositive()
}
