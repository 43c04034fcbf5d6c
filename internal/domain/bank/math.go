package bank

import (
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/pkg/money"
)

// split is a coins/bonus-coins pair.
type split struct {
	Coins      decimal.Decimal
	BonusCoins decimal.Decimal
}

func (s split) Total() decimal.Decimal { return s.Coins.Add(s.BonusCoins) }

func (s split) sub(o split) split {
	return split{Coins: s.Coins.Sub(o.Coins), BonusCoins: s.BonusCoins.Sub(o.BonusCoins)}
}

func principal(d *Deposit) split {
	return split{Coins: d.CoinsDeposited, BonusCoins: d.BonusCoinsDeposited}
}

// apportion splits amount in the deposit's coin ratio, remainder to bonus coins.
func apportion(d *Deposit, amount decimal.Decimal) split {
	c, b := money.Split(amount, d.CoinsDeposited, d.BonusCoinsDeposited)
	return split{Coins: c, BonusCoins: b}
}

// earlyTerms returns the penalty and the penalty's share per component. The payout is
// principal minus penalty, apportioned; the penalty parts are what is left over.
func earlyTerms(d *Deposit) (payout, penalty split) {
	fee := money.Percent(d.Total(), d.PenaltyRate)
	payout = apportion(d, d.Total().Sub(fee))
	return payout, principal(d).sub(payout)
}

// maturedTerms returns the full payout and its interest share per component.
func maturedTerms(d *Deposit) (payout, interest split) {
	interest = apportion(d, d.InterestEarned)
	p := principal(d)
	return split{Coins: p.Coins.Add(interest.Coins), BonusCoins: p.BonusCoins.Add(interest.BonusCoins)}, interest
}
