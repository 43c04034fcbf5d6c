package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quizarena/economy-api/internal/pkg/database"
	"github.com/quizarena/economy-api/internal/pkg/storage"
)

type Service struct {
	db      *sqlx.DB
	repo    *Repository
	archive storage.Archive
	now     func() time.Time
}

// NewService creates the reconciler. archive may be nil when reports are not archived.
func NewService(db *sqlx.DB, repo *Repository, archive storage.Archive) *Service {
	return &Service{db: db, repo: repo, archive: archive, now: time.Now}
}

// Run compares every cache with its log. It only reads.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	report := &Report{GeneratedAt: s.now().UTC()}

	checks := []func(context.Context) (Check, error){
		s.checkBalances,
		s.checkChains,
		s.checkVouchers,
		s.checkDeposits,
		s.checkReferralStats,
	}
	for _, run := range checks {
		c, err := run(ctx)
		if err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", c.Name, err)
		}
		report.Checks = append(report.Checks, c)
	}

	ev := log.Info()
	if !report.OK() {
		ev = log.Warn()
	}
	ev.Int("failed_checks", report.Failed()).Msg("reconcile finished")
	return report, nil
}

// Repair rebuilds the repairable caches and returns a fresh report.
func (s *Service) Repair(ctx context.Context) (*RepairResult, *Report, error) {
	var res *RepairResult
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		res, err = s.repo.repair(ctx, tx, s.now().UTC())
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("repair caches: %w", err)
	}

	log.Info().
		Int64("balances", res.Balances).
		Int64("vouchers", res.Vouchers).
		Int64("referral_stats", res.ReferralStats).
		Msg("caches repaired")

	report, err := s.Run(ctx)
	if err != nil {
		return res, nil, err
	}
	report.Repaired = true
	return res, report, nil
}

// Archive stores the text and JSON renderings of report and returns the text key.
func (s *Service) Archive(ctx context.Context, report *Report) (string, error) {
	if s.archive == nil {
		return "", fmt.Errorf("no report archive configured")
	}

	base := "reconcile/" + report.GeneratedAt.UTC().Format("2006/01/02/20060102T150405Z")
	var text, js bytes.Buffer
	if err := report.WriteText(&text); err != nil {
		return "", err
	}
	if err := report.WriteJSON(&js); err != nil {
		return "", err
	}

	if err := s.archive.Put(ctx, base+".txt", &text, "text/plain; charset=utf-8"); err != nil {
		return "", err
	}
	if err := s.archive.Put(ctx, base+".json", &js, "application/json"); err != nil {
		return "", err
	}

	log.Info().Str("key", base+".txt").Str("url", s.archive.URL(base+".txt")).Msg("reconcile report archived")
	return base + ".txt", nil
}

func amountMismatch(key, field string, expected, actual decimal.Decimal) (Mismatch, bool) {
	if expected.Equal(actual) {
		return Mismatch{}, false
	}
	return Mismatch{Key: key, Field: field, Expected: expected.StringFixed(2), Actual: actual.StringFixed(2)}, true
}

func (s *Service) checkBalances(ctx context.Context) (Check, error) {
	c := Check{Name: CheckBalances}
	rows, err := s.repo.balances(ctx)
	if err != nil {
		return c, err
	}
	c.Checked = len(rows)
	for _, r := range rows {
		if m, ok := amountMismatch("user "+r.UserID, "coins", r.LogCoins, r.CacheCoins); ok {
			c.Mismatches = append(c.Mismatches, m)
		}
		if m, ok := amountMismatch("user "+r.UserID, "bonus_coins", r.LogBonus, r.CacheBonus); ok {
			c.Mismatches = append(c.Mismatches, m)
		}
	}
	return c, nil
}

func (s *Service) checkChains(ctx context.Context) (Check, error) {
	c := Check{Name: CheckLedgerChains}
	total, rows, err := s.repo.brokenChains(ctx)
	if err != nil {
		return c, err
	}
	c.Checked = total
	for _, r := range rows {
		if m, ok := amountMismatch("transaction "+r.ID, "coins_before", r.PrevCoins, r.CoinsBefore); ok {
			c.Mismatches = append(c.Mismatches, m)
		}
		if m, ok := amountMismatch("transaction "+r.ID, "bonus_coins_before", r.PrevBonus, r.BonusBefore); ok {
			c.Mismatches = append(c.Mismatches, m)
		}
	}
	return c, nil
}

func (s *Service) checkVouchers(ctx context.Context) (Check, error) {
	c := Check{Name: CheckVoucherCounters}
	rows, err := s.repo.voucherCounters(ctx)
	if err != nil {
		return c, err
	}
	c.Checked = len(rows)
	for _, r := range rows {
		if r.Log != r.Cached {
			c.Mismatches = append(c.Mismatches, Mismatch{
				Key:      "voucher " + r.Key,
				Field:    "current_redemptions",
				Expected: strconv.Itoa(r.Log),
				Actual:   strconv.Itoa(r.Cached),
			})
		}
	}
	return c, nil
}

func (s *Service) checkDeposits(ctx context.Context) (Check, error) {
	c := Check{Name: CheckDeposits}
	rows, err := s.repo.deposits(ctx)
	if err != nil {
		return c, err
	}
	c.Checked = len(rows)
	for _, r := range rows {
		if m, ok := amountMismatch("user "+r.UserID, "open_deposits", r.SubLedger, r.Open); ok {
			c.Mismatches = append(c.Mismatches, m)
		}
	}
	return c, nil
}

func (s *Service) checkReferralStats(ctx context.Context) (Check, error) {
	c := Check{Name: CheckReferralStats}
	rows, err := s.repo.referralStats(ctx)
	if err != nil {
		return c, err
	}
	c.Checked = len(rows)
	for _, r := range rows {
		key := "user " + r.UserID
		if r.LogReferrals != r.CachedReferrals {
			c.Mismatches = append(c.Mismatches, Mismatch{Key: key, Field: "total_referrals", Expected: strconv.Itoa(r.LogReferrals), Actual: strconv.Itoa(r.CachedReferrals)})
		}
		if m, ok := amountMismatch(key, "total_commission_earned", r.LogEarned, r.CachedEarned); ok {
			c.Mismatches = append(c.Mismatches, m)
		}
		if r.LogBonusPaid != r.CachedBonusPaid {
			c.Mismatches = append(c.Mismatches, Mismatch{Key: key, Field: "registration_bonus_paid", Expected: strconv.FormatBool(r.LogBonusPaid), Actual: strconv.FormatBool(r.CachedBonusPaid)})
		}
	}
	return c, nil
}
