package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/database"
	"github.com/quizarena/economy-api/internal/pkg/money"
)

// Ledger is the part of the ledger deposits move funds through.
type Ledger interface {
	CreditTx(ctx context.Context, tx *sqlx.Tx, e ledger.Entry) (*ledger.Transaction, error)
	DebitTx(ctx context.Context, tx *sqlx.Tx, e ledger.Entry) (*ledger.Transaction, error)
}

// Notifier tells owners about matured deposits.
type Notifier interface {
	NotifyDepositMatured(ctx context.Context, userID, depositID uuid.UUID, payout decimal.Decimal)
}

const sweepBatch = 500

type Service struct {
	db       *sqlx.DB
	repo     *Repository
	ledger   Ledger
	terms    func() Terms
	notifier Notifier
	now      func() time.Time
}

// NewService creates the deposit engine. terms is read once per new deposit.
func NewService(db *sqlx.DB, repo *Repository, ledger Ledger, terms func() Terms, notifier Notifier) *Service {
	return &Service{db: db, repo: repo, ledger: ledger, terms: terms, notifier: notifier, now: time.Now}
}

// CreateDeposit debits the user and opens a deposit at the current terms.
func (s *Service) CreateDeposit(ctx context.Context, userID uuid.UUID, coins, bonusCoins decimal.Decimal) (*Deposit, error) {
	if userID == uuid.Nil {
		return nil, apperr.New(apperr.KindValidation, "user id is required")
	}
	if err := money.ValidatePair(coins, bonusCoins); err != nil {
		return nil, ErrInvalidAmount
	}

	terms := s.terms()
	total := coins.Add(bonusCoins)
	if total.LessThan(terms.MinDeposit) || total.GreaterThan(terms.MaxDeposit) {
		return nil, fmt.Errorf("%w: total must be between %s and %s", ErrOutOfRange, terms.MinDeposit.StringFixed(2), terms.MaxDeposit.StringFixed(2))
	}

	now := s.now().UTC()
	d := &Deposit{
		ID:                  uuid.New(),
		UserID:              userID,
		CoinsDeposited:      coins,
		BonusCoinsDeposited: bonusCoins,
		InterestRate:        terms.InterestRate,
		PenaltyRate:         terms.PenaltyRate,
		DurationDays:        terms.DurationDays,
		DepositDate:         now,
		MaturityDate:        now.AddDate(0, 0, terms.DurationDays),
		Status:              StatusActive,
		InterestEarned:      money.Percent(total, terms.InterestRate),
		PenaltyFee:          decimal.Zero,
		Payout:              decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		lt, err := s.ledger.DebitTx(ctx, tx, ledger.Entry{
			UserID:        userID,
			Coins:         coins,
			BonusCoins:    bonusCoins,
			Type:          ledger.TxTypeBankDeposit,
			ReferenceType: "bank_deposit",
			ReferenceID:   d.ID.String(),
			Description:   fmt.Sprintf("Deposit for %d days at %s%%", d.DurationDays, d.InterestRate.String()),
		})
		if err != nil {
			return err
		}
		if err := s.repo.insertDeposit(ctx, tx, d); err != nil {
			return apperr.Internal("insert deposit", err)
		}
		return s.record(ctx, tx, d, TxDeposit, principal(d), lt, now)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("deposit_id", d.ID.String()).
		Str("total", total.String()).
		Str("interest_earned", d.InterestEarned.String()).
		Time("maturity_date", d.MaturityDate).
		Msg("deposit created")
	return d, nil
}

func (s *Service) record(ctx context.Context, tx *sqlx.Tx, d *Deposit, typ TxType, amt split, lt *ledger.Transaction, now time.Time) error {
	bt := &Transaction{
		ID:         uuid.New(),
		DepositID:  d.ID,
		UserID:     d.UserID,
		Type:       typ,
		Coins:      amt.Coins,
		BonusCoins: amt.BonusCoins,
		CreatedAt:  now,
	}
	if lt != nil {
		bt.LedgerTransactionID = &lt.ID
	}
	if err := s.repo.insertTransaction(ctx, tx, bt); err != nil {
		return apperr.Internal("insert bank transaction", err)
	}
	return nil
}

func (s *Service) entry(d *Deposit, typ ledger.TxType, amt split, desc string) ledger.Entry {
	return ledger.Entry{
		UserID:        d.UserID,
		Coins:         amt.Coins,
		BonusCoins:    amt.BonusCoins,
		Type:          typ,
		ReferenceType: "bank_deposit",
		ReferenceID:   d.ID.String(),
		Description:   desc,
	}
}

// WithdrawEarly closes an active deposit before maturity. The principal goes back in
// full and the penalty is then taken as a separate transaction; no interest is paid.
func (s *Service) WithdrawEarly(ctx context.Context, userID, depositID uuid.UUID) (*Withdrawal, error) {
	var w *Withdrawal
	now := s.now().UTC()

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		d, err := s.lock(ctx, tx, userID, depositID)
		if err != nil {
			return err
		}
		switch {
		case d.Status != StatusActive:
			if d.Status.Terminal() {
				return ErrClosed
			}
			return ErrAlreadyMatured
		case !now.Before(d.MaturityDate):
			return ErrAlreadyMatured
		case d.Locked:
			return ErrLocked
		}

		payout, penalty := earlyTerms(d)
		back := principal(d)

		lt, err := s.ledger.CreditTx(ctx, tx, s.entry(d, ledger.TxTypeBankPrincipalReturn, back, "Deposit principal returned"))
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, d, TxPrincipalReturn, back, lt, now); err != nil {
			return err
		}

		if penalty.Total().IsPositive() {
			pt, err := s.ledger.DebitTx(ctx, tx, s.entry(d, ledger.TxTypeBankPenalty, penalty, "Early withdrawal penalty"))
			if err != nil {
				return err
			}
			if err := s.record(ctx, tx, d, TxPenalty, penalty, pt, now); err != nil {
				return err
			}
		}

		d.Status = StatusCancelled
		d.PenaltyFee = penalty.Total()
		d.Payout = payout.Total()
		d.WithdrawnAt = &now
		d.UpdatedAt = now
		if err := s.repo.close(ctx, tx, d); err != nil {
			return apperr.Internal("close deposit", err)
		}

		w = &Withdrawal{Deposit: *d, Coins: payout.Coins, BonusCoins: payout.BonusCoins, Payout: d.Payout, Penalty: d.PenaltyFee, Interest: decimal.Zero}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("deposit_id", depositID.String()).
		Str("payout", w.Payout.String()).
		Str("penalty", w.Penalty.String()).
		Msg("deposit withdrawn early")
	return w, nil
}

// WithdrawMatured pays principal plus the interest fixed at creation.
func (s *Service) WithdrawMatured(ctx context.Context, userID, depositID uuid.UUID) (*Withdrawal, error) {
	var w *Withdrawal
	now := s.now().UTC()

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		d, err := s.lock(ctx, tx, userID, depositID)
		if err != nil {
			return err
		}
		switch {
		case d.Status.Terminal():
			return ErrClosed
		case now.Before(d.MaturityDate):
			return ErrNotMatured
		case d.Locked:
			return ErrLocked
		}

		payout, interest := maturedTerms(d)
		back := principal(d)

		lt, err := s.ledger.CreditTx(ctx, tx, s.entry(d, ledger.TxTypeBankPrincipalReturn, back, "Deposit principal returned"))
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, d, TxPrincipalReturn, back, lt, now); err != nil {
			return err
		}

		if interest.Total().IsPositive() {
			it, err := s.ledger.CreditTx(ctx, tx, s.entry(d, ledger.TxTypeBankInterest, interest, "Deposit interest"))
			if err != nil {
				return err
			}
			if err := s.record(ctx, tx, d, TxInterest, interest, it, now); err != nil {
				return err
			}
		}

		d.Status = StatusCompleted
		d.Payout = payout.Total()
		d.WithdrawnAt = &now
		d.UpdatedAt = now
		if err := s.repo.close(ctx, tx, d); err != nil {
			return apperr.Internal("close deposit", err)
		}

		w = &Withdrawal{Deposit: *d, Coins: payout.Coins, BonusCoins: payout.BonusCoins, Payout: d.Payout, Penalty: decimal.Zero, Interest: interest.Total()}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("deposit_id", depositID.String()).
		Str("payout", w.Payout.String()).
		Str("interest", w.Interest.String()).
		Msg("matured deposit withdrawn")
	return w, nil
}

func (s *Service) lock(ctx context.Context, tx *sqlx.Tx, userID, depositID uuid.UUID) (*Deposit, error) {
	d, err := s.repo.lockDeposit(ctx, tx, userID, depositID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("lock deposit", err)
	}
	return d, nil
}

// SweepMatured marks every unlocked active deposit past maturity as matured. It is
// safe to run concurrently with withdrawals and with itself.
func (s *Service) SweepMatured(ctx context.Context) ([]Deposit, error) {
	now := s.now().UTC()
	swept := make([]Deposit, 0)
	for {
		batch, err := s.repo.MarkMatured(ctx, now, sweepBatch)
		if err != nil {
			return swept, apperr.Internal("sweep matured deposits", err)
		}
		swept = append(swept, batch...)
		for i := range batch {
			d := &batch[i]
			if s.notifier != nil {
				s.notifier.NotifyDepositMatured(ctx, d.UserID, d.ID, d.Total().Add(d.InterestEarned))
			}
		}
		if len(batch) < sweepBatch {
			break
		}
	}

	if len(swept) > 0 {
		log.Info().Int("count", len(swept)).Msg("deposits matured")
	}
	return swept, nil
}

// SetLocked sets or clears the admin lock on a non-terminal deposit.
func (s *Service) SetLocked(ctx context.Context, adminID, depositID uuid.UUID, locked bool) (*Deposit, error) {
	d, err := s.repo.SetLocked(ctx, depositID, locked, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrClosed) {
			return nil, err
		}
		return nil, apperr.Internal("set deposit lock", err)
	}
	log.Info().Str("admin_id", adminID.String()).Str("deposit_id", depositID.String()).Bool("locked", locked).Msg("deposit lock changed")
	return d, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, status *Status) ([]Deposit, error) {
	ds, err := s.repo.List(ctx, userID, status)
	if err != nil {
		return nil, apperr.Internal("list deposits", err)
	}
	return ds, nil
}

func (s *Service) Get(ctx context.Context, userID, depositID uuid.UUID) (*Deposit, error) {
	d, err := s.repo.Get(ctx, userID, depositID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, apperr.Internal("get deposit", err)
	}
	return d, nil
}

// Quote reports both withdrawal figures without changing anything.
func (s *Service) Quote(ctx context.Context, userID, depositID uuid.UUID) (*Quote, error) {
	d, err := s.Get(ctx, userID, depositID)
	if err != nil {
		return nil, err
	}
	return s.QuoteOf(d), nil
}

// QuoteOf computes the quote of an already loaded deposit.
func (s *Service) QuoteOf(d *Deposit) *Quote {
	return quote(d, s.now().UTC())
}

func quote(d *Deposit, now time.Time) *Quote {
	early, penalty := earlyTerms(d)
	matured, interest := maturedTerms(d)
	isMatured := !now.Before(d.MaturityDate)
	return &Quote{
		DepositID:       d.ID,
		Status:          d.Status,
		Locked:          d.Locked,
		Matured:         isMatured,
		CanWithdrawNow:  !d.Status.Terminal() && !d.Locked,
		EarlyPenalty:    penalty.Total(),
		EarlyPayout:     early.Total(),
		MaturedInterest: interest.Total(),
		MaturedPayout:   matured.Total(),
		MaturityDate:    d.MaturityDate,
	}
}

// Transactions returns the sub-ledger entries of a deposit owned by userID.
func (s *Service) Transactions(ctx context.Context, userID, depositID uuid.UUID) ([]Transaction, error) {
	if _, err := s.Get(ctx, userID, depositID); err != nil {
		return nil, err
	}
	txs, err := s.repo.Transactions(ctx, depositID)
	if err != nil {
		return nil, apperr.Internal("list bank transactions", err)
	}
	return txs, nil
}
