package bank

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func deposit(coins, bonus string) *Deposit {
	dep := &Deposit{
		CoinsDeposited:      d(coins),
		BonusCoinsDeposited: d(bonus),
		InterestRate:        d("4"),
		PenaltyRate:         d("12"),
		DurationDays:        30,
	}
	dep.InterestEarned = d("0.04").Mul(dep.Total()).Round(2)
	return dep
}

func TestEarlyTerms(t *testing.T) {
	tests := []struct {
		name                    string
		coins, bonus            string
		payoutC, payoutB        string
		penaltyC, penaltyB, fee string
	}{
		{"coins only", "1000", "0", "880", "0", "120", "0", "120"},
		{"mixed", "600", "400", "528", "352", "72", "48", "120"},
		{"remainder to bonus", "333.33", "666.67", "293.33", "586.67", "40", "80", "120"},
		{"bonus only", "0", "250", "0", "220", "0", "30", "30"},
		{"rounded fee", "123.45", "0", "108.64", "0", "14.81", "0", "14.81"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep := deposit(tt.coins, tt.bonus)
			payout, penalty := earlyTerms(dep)
			assert.True(t, payout.Coins.Equal(d(tt.payoutC)), "payout coins %s", payout.Coins)
			assert.True(t, payout.BonusCoins.Equal(d(tt.payoutB)), "payout bonus %s", payout.BonusCoins)
			assert.True(t, penalty.Coins.Equal(d(tt.penaltyC)), "penalty coins %s", penalty.Coins)
			assert.True(t, penalty.BonusCoins.Equal(d(tt.penaltyB)), "penalty bonus %s", penalty.BonusCoins)
			assert.True(t, penalty.Total().Equal(d(tt.fee)))
			assert.True(t, payout.Total().Add(penalty.Total()).Equal(dep.Total()))
		})
	}
}

func TestMaturedTerms(t *testing.T) {
	dep := deposit("1000", "0")
	payout, interest := maturedTerms(dep)
	assert.True(t, interest.Total().Equal(d("40")))
	assert.True(t, payout.Total().Equal(d("1040")))
	assert.True(t, payout.BonusCoins.IsZero())

	dep = deposit("333.33", "666.67")
	payout, interest = maturedTerms(dep)
	assert.True(t, interest.Coins.Equal(d("13.33")), interest.Coins.String())
	assert.True(t, interest.BonusCoins.Equal(d("26.67")), interest.BonusCoins.String())
	assert.True(t, payout.Coins.Equal(d("346.66")))
	assert.True(t, payout.BonusCoins.Equal(d("693.34")))
}

func TestQuote(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	dep := deposit("1000", "0")
	dep.Status = StatusActive
	dep.MaturityDate = now.Add(time.Hour)

	q := quote(dep, now)
	assert.False(t, q.Matured)
	assert.True(t, q.CanWithdrawNow)
	assert.True(t, q.EarlyPayout.Equal(d("880")))
	assert.True(t, q.MaturedPayout.Equal(d("1040")))

	q = quote(dep, now.Add(time.Hour))
	assert.True(t, q.Matured)

	dep.Locked = true
	assert.False(t, quote(dep, now).CanWithdrawNow)

	dep.Locked = false
	dep.Status = StatusCancelled
	assert.False(t, quote(dep, now).CanWithdrawNow)
}
