package referral

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/database"
)

// Ledger is the part of the ledger commissions and bonuses are paid through.
type Ledger interface {
	CreditTx(ctx context.Context, tx *sqlx.Tx, e ledger.Entry) (*ledger.Transaction, error)
}

// Notifier tells both parties about a paid registration bonus.
type Notifier interface {
	NotifyReferralBonus(ctx context.Context, userID, otherUserID uuid.UUID, amount decimal.Decimal)
}

const backfillBatch = 200

type Service struct {
	db       *sqlx.DB
	repo     *Repository
	ledger   Ledger
	counter  QuizCounter
	terms    func() Terms
	notifier Notifier
	now      func() time.Time
}

func NewService(db *sqlx.DB, repo *Repository, ledger Ledger, counter QuizCounter, terms func() Terms, notifier Notifier) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		ledger:   ledger,
		counter:  counter,
		terms:    terms,
		notifier: notifier,
		now:      time.Now,
	}
}

// Register binds referredID to referrerID at the current commission rate.
func (s *Service) Register(ctx context.Context, referredID, referrerID uuid.UUID) (*Link, error) {
	if referredID == uuid.Nil || referrerID == uuid.Nil {
		return nil, apperr.New(apperr.KindValidation, "both user ids are required")
	}
	if referredID == referrerID {
		return nil, ErrSelfReferral
	}

	now := s.now().UTC()
	l := &Link{
		ReferredUserID: referredID,
		ReferrerUserID: referrerID,
		CommissionRate: s.terms().CommissionRate,
		CreatedAt:      now,
	}

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.repo.insertLink(ctx, tx, l); err != nil {
			if errors.Is(err, ErrAlreadyReferred) {
				return err
			}
			return apperr.Internal("insert referral link", err)
		}
		if err := s.repo.incrementReferrals(ctx, tx, referrerID, now); err != nil {
			return apperr.Internal("update referrer stats", err)
		}
		if err := s.repo.ensureStats(ctx, tx, referredID); err != nil {
			return apperr.Internal("create referred stats", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("referred_user_id", referredID.String()).
		Str("referrer_user_id", referrerID.String()).
		Str("commission_rate", l.CommissionRate.String()).
		Msg("referral registered")
	return l, nil
}

// OnCredited pays the referrer's commission for a committed quiz reward. Calling it
// again for the same transaction is a no-op.
func (s *Service) OnCredited(ctx context.Context, event ledger.CreditedEvent) error {
	_, err := s.payCommission(ctx, event.Transaction)
	return err
}

func (s *Service) payCommission(ctx context.Context, t ledger.Transaction) (*Earning, error) {
	if !eligible(t) {
		return nil, nil
	}

	link, err := s.repo.GetLink(ctx, t.UserID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("get referral link", err)
	}

	now := s.now().UTC()
	e := &Earning{
		ID:                  uuid.New(),
		ReferrerID:          link.ReferrerUserID,
		ReferredID:          link.ReferredUserID,
		SourceTransactionID: t.ID,
		CoinsEarned:         t.Amount(),
		CommissionEarned:    Commission(t, link.CommissionRate),
		Rate:                link.CommissionRate,
		CreatedAt:           now,
	}

	paid := false
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		claimed, err := s.repo.claimEarning(ctx, tx, e)
		if err != nil {
			return apperr.Internal("insert referral earning", err)
		}
		if !claimed || !e.CommissionEarned.IsPositive() {
			return nil
		}

		lt, err := s.ledger.CreditTx(ctx, tx, ledger.Entry{
			UserID:        e.ReferrerID,
			BonusCoins:    e.CommissionEarned,
			Type:          ledger.TxTypeReferralCommission,
			ReferenceType: "ledger_transaction",
			ReferenceID:   t.ID.String(),
			Description:   "Referral commission",
			Metadata:      ledger.Metadata{"referred_user_id": e.ReferredID.String(), "rate": e.Rate.String()},
		})
		if err != nil {
			return err
		}
		if err := s.repo.setEarningTransaction(ctx, tx, e.ID, lt.ID); err != nil {
			return apperr.Internal("link referral earning", err)
		}
		if err := s.repo.addCommission(ctx, tx, e.ReferrerID, e.CommissionEarned, now); err != nil {
			return apperr.Internal("update referrer stats", err)
		}
		e.LedgerTransactionID = &lt.ID
		paid = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, nil
	}

	log.Info().
		Str("referrer_id", e.ReferrerID.String()).
		Str("referred_id", e.ReferredID.String()).
		Str("source_transaction_id", t.ID.String()).
		Str("commission", e.CommissionEarned.String()).
		Msg("referral commission paid")
	return e, nil
}

// OnQuizCompleted pays the one-time registration bonus to both parties once the
// referred user reaches the completed-quiz threshold.
func (s *Service) OnQuizCompleted(ctx context.Context, userID uuid.UUID) (*BonusResult, error) {
	terms := s.terms()
	res := &BonusResult{Threshold: terms.QuizThreshold, Amount: decimal.Zero}

	link, err := s.repo.GetLink(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return nil, apperr.Internal("get referral link", err)
	}
	res.ReferrerUserID = &link.ReferrerUserID

	completed, err := s.counter.CompletedQuizzes(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("count completed quizzes", err)
	}
	res.CompletedQuiz = completed
	if completed < terms.QuizThreshold || !terms.BonusAmount.IsPositive() {
		return res, nil
	}

	now := s.now().UTC()
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		won, err := s.repo.claimBonus(ctx, tx, userID, now)
		if err != nil {
			return apperr.Internal("claim registration bonus", err)
		}
		if !won {
			return nil
		}

		// Balances are locked in id order so two bonuses crossing the same pair cannot deadlock.
		first, second := link.ReferredUserID, link.ReferrerUserID
		if bytes.Compare(first[:], second[:]) > 0 {
			first, second = second, first
		}
		for _, id := range []uuid.UUID{first, second} {
			other := link.ReferrerUserID
			if id == link.ReferrerUserID {
				other = link.ReferredUserID
			}
			if _, err := s.ledger.CreditTx(ctx, tx, ledger.Entry{
				UserID:        id,
				BonusCoins:    terms.BonusAmount,
				Type:          ledger.TxTypeReferralBonus,
				ReferenceType: "referral",
				ReferenceID:   link.ReferredUserID.String(),
				Description:   "Referral registration bonus",
				Metadata:      ledger.Metadata{"other_user_id": other.String()},
			}); err != nil {
				return err
			}
		}
		res.Paid = true
		res.Amount = terms.BonusAmount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Paid {
		log.Info().
			Str("referred_user_id", link.ReferredUserID.String()).
			Str("referrer_user_id", link.ReferrerUserID.String()).
			Str("amount", res.Amount.String()).
			Int("completed_quizzes", completed).
			Msg("referral registration bonus paid")
		if s.notifier != nil {
			s.notifier.NotifyReferralBonus(ctx, link.ReferredUserID, link.ReferrerUserID, res.Amount)
			s.notifier.NotifyReferralBonus(ctx, link.ReferrerUserID, link.ReferredUserID, res.Amount)
		}
	}
	return res, nil
}

// BackfillCommissions pays commissions for quiz rewards since the given time that have
// no earning row, covering a crash between the ledger commit and the listener.
func (s *Service) BackfillCommissions(ctx context.Context, since time.Time) (int, error) {
	paid := 0
	for {
		txs, err := s.repo.UnpaidRewards(ctx, since, backfillBatch)
		if err != nil {
			return paid, apperr.Internal("list unpaid rewards", err)
		}
		for _, t := range txs {
			e, err := s.payCommission(ctx, t)
			if err != nil {
				return paid, err
			}
			if e != nil {
				paid++
			}
		}
		if len(txs) < backfillBatch {
			break
		}
	}

	if paid > 0 {
		log.Info().Int("count", paid).Time("since", since).Msg("referral commissions backfilled")
	}
	return paid, nil
}

// StatsView is a user's referral summary.
type StatsView struct {
	Stats
	ReferredBy *uuid.UUID `json:"referred_by,omitempty"`
	Referred   []Link     `json:"referred"`
}

func (s *Service) Stats(ctx context.Context, userID uuid.UUID) (*StatsView, error) {
	st, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("get referral stats", err)
	}
	view := &StatsView{Stats: *st}

	link, err := s.repo.GetLink(ctx, userID)
	switch {
	case err == nil:
		view.ReferredBy = &link.ReferrerUserID
	case !errors.Is(err, ErrNotFound):
		return nil, apperr.Internal("get referral link", err)
	}

	view.Referred, err = s.repo.ListReferred(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("list referred users", err)
	}
	return view, nil
}

func (s *Service) Earnings(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Earning, error) {
	earnings, err := s.repo.ListEarnings(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.Internal("list referral earnings", err)
	}
	return earnings, nil
}
