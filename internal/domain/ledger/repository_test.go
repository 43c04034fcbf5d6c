package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/pkg/database/dbtest"
)

func newService(t *testing.T) *ledger.Service {
	db := dbtest.Open(t, "ledger")
	return ledger.NewService(db, ledger.NewRepository(db))
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreditDebitRecordsBeforeAndAfter(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Credit(ctx, ledger.Entry{UserID: userID, Coins: amt("100"), BonusCoins: amt("20"), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)

	tx, err := svc.Debit(ctx, ledger.Entry{UserID: userID, Coins: amt("40.50"), Type: ledger.TxTypePurchase, ReferenceType: "order", ReferenceID: "o-1"})
	require.NoError(t, err)
	assert.True(t, tx.CoinsBefore.Equal(amt("100")))
	assert.True(t, tx.CoinsAfter.Equal(amt("59.50")))
	assert.True(t, tx.CoinsDelta.Equal(amt("-40.50")))

	b, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Coins.Equal(amt("59.50")))
	assert.True(t, b.BonusCoins.Equal(amt("20")))

	res, err := svc.Replay(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.Consistent, res.Problem)
	assert.Equal(t, 2, res.Transactions)
}

func TestDebitInsufficientFundsLeavesNoTrace(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Credit(ctx, ledger.Entry{UserID: userID, Coins: amt("10"), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)

	_, err = svc.Debit(ctx, ledger.Entry{UserID: userID, Coins: amt("10.01"), Type: ledger.TxTypePurchase})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	txs, err := svc.ListTransactions(ctx, userID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.Credit(ctx, ledger.Entry{UserID: userID, Coins: amt("100"), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, ledger.Entry{UserID: userID, Coins: amt("10"), Type: ledger.TxTypePurchase})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, successes)
	b, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Coins.IsZero())

	res, err := svc.Replay(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.Consistent, res.Problem)
}

func TestCreditPublishesAfterCommit(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	var seen []uuid.UUID
	svc.Subscribe(ledger.ListenerFunc(func(ctx context.Context, e ledger.CreditedEvent) error {
		stored, err := svc.GetTransaction(ctx, e.Transaction.ID)
		if err != nil {
			return err
		}
		seen = append(seen, stored.ID)
		return nil
	}))

	tx, err := svc.Credit(ctx, ledger.Entry{UserID: userID, Coins: amt("5"), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tx.ID}, seen)
}

func TestSearchTransactionsFilters(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, err := svc.Credit(ctx, ledger.Entry{UserID: a, Coins: amt("5"), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)
	_, err = svc.Credit(ctx, ledger.Entry{UserID: b, Coins: amt("5"), Type: ledger.TxTypeVoucherReward, ReferenceType: "voucher", ReferenceID: "v1"})
	require.NoError(t, err)

	typ := ledger.TxTypeVoucherReward
	found, err := svc.SearchTransactions(ctx, ledger.SearchFilters{Type: &typ})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, b, found[0].UserID)

	found, err = svc.SearchTransactions(ctx, ledger.SearchFilters{UserID: &a})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ledger.TxTypeQuizReward, found[0].Type)
}

func TestCreditOnceIgnoresRetriedSession(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	var mu sync.Mutex
	published := 0
	svc.Subscribe(ledger.ListenerFunc(func(context.Context, ledger.CreditedEvent) error {
		mu.Lock()
		published++
		mu.Unlock()
		return nil
	}))

	entry := ledger.Entry{UserID: userID, Coins: amt("30"), Type: ledger.TxTypeQuizReward, ReferenceType: "quiz_session", ReferenceID: "s-42"}

	var wg sync.WaitGroup
	results := make([]*ledger.Transaction, 5)
	created := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, ok, err := svc.CreditOnce(ctx, entry)
			assert.NoError(t, err)
			results[i], created[i] = tx, ok
		}(i)
	}
	wg.Wait()

	n := 0
	for i, tx := range results {
		require.NotNil(t, tx)
		assert.Equal(t, results[0].ID, tx.ID)
		if created[i] {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, published)

	b, err := svc.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Coins.Equal(amt("30")), b.Coins.String())

	// another player in the same session is credited separately
	other := entry
	other.UserID = uuid.New()
	_, ok, err := svc.CreditOnce(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreditOnceRequiresReference(t *testing.T) {
	svc := newService(t)

	_, _, err := svc.CreditOnce(context.Background(), ledger.Entry{UserID: uuid.New(), Coins: amt("1"), Type: ledger.TxTypeQuizReward})
	assert.ErrorIs(t, err, ledger.ErrMissingReference)
}
