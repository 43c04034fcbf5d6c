package config

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Economy is the snapshot of tunable economy parameters.
type Economy struct {
	InterestRate            decimal.Decimal
	DepositDurationDays     int
	PenaltyRate             decimal.Decimal
	MinDeposit              decimal.Decimal
	MaxDeposit              decimal.Decimal
	CommissionRate          decimal.Decimal
	RegistrationBonusAmount decimal.Decimal
	CompletedQuizThreshold  int
}

func economyFromEnv() Economy {
	return Economy{
		InterestRate:            parseDecimal(getEnv("INTEREST_RATE", "4"), decimal.NewFromInt(4)),
		DepositDurationDays:     parseInt(getEnv("DEPOSIT_DURATION_DAYS", "30"), 30),
		PenaltyRate:             parseDecimal(getEnv("PENALTY_RATE", "12"), decimal.NewFromInt(12)),
		MinDeposit:              parseDecimal(getEnv("MIN_DEPOSIT", "100"), decimal.NewFromInt(100)),
		MaxDeposit:              parseDecimal(getEnv("MAX_DEPOSIT", "1000000"), decimal.NewFromInt(1000000)),
		CommissionRate:          parseDecimal(getEnv("COMMISSION_RATE", "6"), decimal.NewFromInt(6)),
		RegistrationBonusAmount: parseDecimal(getEnv("REGISTRATION_BONUS_AMOUNT", "50"), decimal.NewFromInt(50)),
		CompletedQuizThreshold:  parseInt(getEnv("COMPLETED_QUIZ_THRESHOLD", "10"), 10),
	}
}

func parseDecimal(s string, defaultValue decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return defaultValue
	}
	return d
}

// Validate rejects snapshots the engines cannot work with.
func (e Economy) Validate() error {
	var errs []error
	for name, rate := range map[string]decimal.Decimal{
		"interest_rate":   e.InterestRate,
		"penalty_rate":    e.PenaltyRate,
		"commission_rate": e.CommissionRate,
	} {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 100", name))
		}
	}
	if e.DepositDurationDays <= 0 {
		errs = append(errs, errors.New("deposit_duration_days must be positive"))
	}
	if !e.MinDeposit.IsPositive() || e.MaxDeposit.LessThan(e.MinDeposit) {
		errs = append(errs, errors.New("min_deposit must be positive and not above max_deposit"))
	}
	if e.RegistrationBonusAmount.IsNegative() {
		errs = append(errs, errors.New("registration_bonus_amount must not be negative"))
	}
	if e.CompletedQuizThreshold <= 0 {
		errs = append(errs, errors.New("completed_quiz_threshold must be positive"))
	}
	return errors.Join(errs...)
}

// economyFile is the YAML overlay. Amounts are strings so they stay exact.
type economyFile struct {
	InterestRate            *string `yaml:"interest_rate"`
	DepositDurationDays     *int    `yaml:"deposit_duration_days"`
	PenaltyRate             *string `yaml:"penalty_rate"`
	MinDeposit              *string `yaml:"min_deposit"`
	MaxDeposit              *string `yaml:"max_deposit"`
	CommissionRate          *string `yaml:"commission_rate"`
	RegistrationBonusAmount *string `yaml:"registration_bonus_amount"`
	CompletedQuizThreshold  *int    `yaml:"completed_quiz_threshold"`
}

// Overlay applies the YAML file at path on top of base. Missing keys keep base values.
func Overlay(base Economy, path string) (Economy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read economy file: %w", err)
	}

	var f economyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return base, fmt.Errorf("parse economy file: %w", err)
	}

	out := base
	for _, field := range []struct {
		name string
		src  *string
		dst  *decimal.Decimal
	}{
		{"interest_rate", f.InterestRate, &out.InterestRate},
		{"penalty_rate", f.PenaltyRate, &out.PenaltyRate},
		{"min_deposit", f.MinDeposit, &out.MinDeposit},
		{"max_deposit", f.MaxDeposit, &out.MaxDeposit},
		{"commission_rate", f.CommissionRate, &out.CommissionRate},
		{"registration_bonus_amount", f.RegistrationBonusAmount, &out.RegistrationBonusAmount},
	} {
		if field.src == nil {
			continue
		}
		d, err := decimal.NewFromString(*field.src)
		if err != nil {
			return base, fmt.Errorf("economy file: %s: %w", field.name, err)
		}
		*field.dst = d
	}
	if f.DepositDurationDays != nil {
		out.DepositDurationDays = *f.DepositDurationDays
	}
	if f.CompletedQuizThreshold != nil {
		out.CompletedQuizThreshold = *f.CompletedQuizThreshold
	}

	if err := out.Validate(); err != nil {
		return base, err
	}
	return out, nil
}

// EconomyStore holds the live economy snapshot. Readers copy what they need at decision time.
type EconomyStore struct {
	base Economy
	path string
	cur  atomic.Pointer[Economy]
}

// NewEconomyStore validates base, applies the overlay file when path is set, and stores the result.
func NewEconomyStore(base Economy, path string) (*EconomyStore, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	s := &EconomyStore{base: base, path: path}
	s.cur.Store(&base)
	if path != "" {
		if _, err := s.Reload(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load returns the current snapshot.
func (s *EconomyStore) Load() Economy {
	return *s.cur.Load()
}

// Reload re-reads the overlay file. On error the current snapshot is kept.
func (s *EconomyStore) Reload() (Economy, error) {
	if s.path == "" {
		return s.Load(), nil
	}
	next, err := Overlay(s.base, s.path)
	if err != nil {
		return s.Load(), err
	}
	s.cur.Store(&next)
	return next, nil
}
