package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/database"
	"github.com/quizarena/economy-api/internal/pkg/money"
)

// Listener observes committed credits of types that emit Credited events.
type Listener interface {
	OnCredited(ctx context.Context, event CreditedEvent) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event CreditedEvent) error

func (f ListenerFunc) OnCredited(ctx context.Context, event CreditedEvent) error {
	return f(ctx, event)
}

// Service is the single writer of balances and the transaction log.
type Service struct {
	db   *sqlx.DB
	repo *Repository
	now  func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

func NewService(db *sqlx.DB, repo *Repository) *Service {
	return &Service{db: db, repo: repo, now: time.Now}
}

// Subscribe registers a listener for Credited events.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Credit adds the entry amounts to the user's balance in its own transaction.
func (s *Service) Credit(ctx context.Context, e Entry) (*Transaction, error) {
	var t *Transaction
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		t, err = s.apply(ctx, tx, e, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Publish(ctx, *t)
	return t, nil
}

// CreditOnce credits e unless a transaction with the same user, type and reference
// already exists, in which case that transaction is returned and created is false.
// The balance lock serialises concurrent retries.
func (s *Service) CreditOnce(ctx context.Context, e Entry) (t *Transaction, created bool, err error) {
	if err := validateEntry(e); err != nil {
		return nil, false, err
	}
	if e.ReferenceType == "" || e.ReferenceID == "" {
		return nil, false, ErrMissingReference
	}

	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.repo.lockBalance(ctx, tx, e.UserID); err != nil {
			return apperr.Internal("lock balance", err)
		}
		existing, err := s.repo.findByReference(ctx, tx, e.UserID, e.Type, e.ReferenceType, e.ReferenceID)
		if err != nil {
			return apperr.Internal("find transaction", err)
		}
		if existing != nil {
			t = existing
			return nil
		}
		t, err = s.apply(ctx, tx, e, false)
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.Publish(ctx, *t)
	}
	return t, created, nil
}

// Debit subtracts the entry amounts from the user's balance in its own transaction.
func (s *Service) Debit(ctx context.Context, e Entry) (*Transaction, error) {
	var t *Transaction
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		t, err = s.apply(ctx, tx, e, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreditTx credits inside a caller-owned transaction. The caller publishes the returned
// transaction with Publish once its own transaction has committed.
func (s *Service) CreditTx(ctx context.Context, tx *sqlx.Tx, e Entry) (*Transaction, error) {
	return s.apply(ctx, tx, e, false)
}

// DebitTx debits inside a caller-owned transaction.
func (s *Service) DebitTx(ctx context.Context, tx *sqlx.Tx, e Entry) (*Transaction, error) {
	return s.apply(ctx, tx, e, true)
}

// Publish notifies listeners of a committed credit. Transactions of other types are ignored.
// Listener failures are logged; the credit itself already stands.
func (s *Service) Publish(ctx context.Context, t Transaction) {
	if !t.Type.EmitsCredited() || !t.Amount().IsPositive() {
		return
	}

	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	event := CreditedEvent{Transaction: t}
	for _, l := range listeners {
		if err := l.OnCredited(ctx, event); err != nil {
			log.Error().Err(err).
				Str("transaction_id", t.ID.String()).
				Str("user_id", t.UserID.String()).
				Msg("credited listener failed")
		}
	}
}

func validateEntry(e Entry) error {
	if e.UserID == uuid.Nil {
		return ErrInvalidUser
	}
	if !e.Type.Valid() {
		return ErrInvalidType
	}
	if err := money.ValidatePair(e.Coins, e.BonusCoins); err != nil {
		return ErrInvalidAmount
	}
	return nil
}

func (s *Service) apply(ctx context.Context, tx *sqlx.Tx, e Entry, debit bool) (*Transaction, error) {
	if err := validateEntry(e); err != nil {
		return nil, err
	}

	b, err := s.repo.lockBalance(ctx, tx, e.UserID)
	if err != nil {
		return nil, apperr.Internal("lock balance", err)
	}

	coinsDelta, bonusDelta := e.Coins, e.BonusCoins
	if debit {
		coinsDelta, bonusDelta = coinsDelta.Neg(), bonusDelta.Neg()
	}

	newCoins := b.Coins.Add(coinsDelta)
	newBonus := b.BonusCoins.Add(bonusDelta)
	if newCoins.IsNegative() || newBonus.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	now := s.now().UTC()
	if err := s.repo.updateBalance(ctx, tx, e.UserID, newCoins, newBonus, now); err != nil {
		return nil, apperr.Internal("update balance", err)
	}

	t := &Transaction{
		ID:               uuid.New(),
		UserID:           e.UserID,
		Type:             e.Type,
		CoinsDelta:       coinsDelta,
		BonusCoinsDelta:  bonusDelta,
		CoinsBefore:      b.Coins,
		BonusCoinsBefore: b.BonusCoins,
		CoinsAfter:       newCoins,
		BonusCoinsAfter:  newBonus,
		ReferenceType:    optional(e.ReferenceType),
		ReferenceID:      optional(e.ReferenceID),
		Description:      e.Description,
		Metadata:         e.Metadata,
		CreatedAt:        now,
	}
	if err := s.repo.insertTransaction(ctx, tx, t); err != nil {
		return nil, apperr.Internal("insert ledger transaction", err)
	}

	log.Debug().
		Str("user_id", e.UserID.String()).
		Str("type", string(e.Type)).
		Str("coins_delta", coinsDelta.String()).
		Str("bonus_coins_delta", bonusDelta.String()).
		Msg("ledger transaction applied")

	return t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Adjust applies an admin correction. Both deltas must have the same sign.
func (s *Service) Adjust(ctx context.Context, adminID, userID uuid.UUID, coinsDelta, bonusDelta decimal.Decimal, reason string) (*Transaction, error) {
	if reason == "" {
		return nil, apperr.New(apperr.KindValidation, "adjustment reason is required")
	}
	debit := coinsDelta.IsNegative() || bonusDelta.IsNegative()
	if debit && (coinsDelta.IsPositive() || bonusDelta.IsPositive()) {
		return nil, apperr.New(apperr.KindValidation, "coins and bonus coins must be adjusted in the same direction")
	}

	e := Entry{
		UserID:        userID,
		Coins:         coinsDelta.Abs(),
		BonusCoins:    bonusDelta.Abs(),
		Type:          TxTypeAdminAdjustment,
		ReferenceType: "admin",
		ReferenceID:   adminID.String(),
		Description:   reason,
		Metadata:      Metadata{"admin_id": adminID.String()},
	}

	var (
		t   *Transaction
		err error
	)
	if debit {
		t, err = s.Debit(ctx, e)
	} else {
		t, err = s.Credit(ctx, e)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("admin_id", adminID.String()).
		Str("user_id", userID.String()).
		Str("coins_delta", t.CoinsDelta.String()).
		Str("bonus_coins_delta", t.BonusCoinsDelta.String()).
		Msg("ledger adjusted by admin")
	return t, nil
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	b, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("get balance", err)
	}
	return b, nil
}

func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	t, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("get transaction", err)
	}
	return t, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Internal("list transactions", err)
	}
	return txs, nil
}

func (s *Service) SearchTransactions(ctx context.Context, filters SearchFilters) ([]Transaction, error) {
	if filters.Type != nil && *filters.Type != "" && !filters.Type.Valid() {
		return nil, ErrInvalidType
	}
	txs, err := s.repo.SearchTransactions(ctx, filters)
	if err != nil {
		return nil, apperr.Internal("search transactions", err)
	}
	return txs, nil
}

// ReplayResult compares the folded log with the cached balance.
type ReplayResult struct {
	UserID       uuid.UUID `json:"user_id"`
	Computed     Balance   `json:"computed"`
	Cached       Balance   `json:"cached"`
	Transactions int       `json:"transactions"`
	Consistent   bool      `json:"consistent"`
	Problem      string    `json:"problem,omitempty"`
}

// Replay folds the user's log and checks it against the cached balance.
func (s *Service) Replay(ctx context.Context, userID uuid.UUID) (*ReplayResult, error) {
	txs, err := s.repo.History(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("load history", err)
	}
	cached, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	res := &ReplayResult{UserID: userID, Cached: *cached, Transactions: len(txs), Consistent: true}
	computed, err := Fold(userID, txs)
	res.Computed = computed
	if err != nil {
		res.Consistent = false
		res.Problem = err.Error()
		return res, nil
	}
	if !computed.Coins.Equal(cached.Coins) || !computed.BonusCoins.Equal(cached.BonusCoins) {
		res.Consistent = false
		res.Problem = "cached balance differs from log"
	}
	return res, nil
}
