package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEconomyDefaults(t *testing.T) {
	e := economyFromEnv()
	assert.True(t, e.InterestRate.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, 30, e.DepositDurationDays)
	assert.True(t, e.PenaltyRate.Equal(decimal.NewFromInt(12)))
	assert.True(t, e.CommissionRate.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 10, e.CompletedQuizThreshold)
	assert.NoError(t, e.Validate())
}

func TestEconomyEnvOverride(t *testing.T) {
	t.Setenv("INTEREST_RATE", "5.5")
	t.Setenv("COMPLETED_QUIZ_THRESHOLD", "3")
	e := economyFromEnv()
	assert.True(t, e.InterestRate.Equal(decimal.RequireFromString("5.5")))
	assert.Equal(t, 3, e.CompletedQuizThreshold)
}

func TestOverlay(t *testing.T) {
	path := writeFile(t, "interest_rate: \"7.25\"\ndeposit_duration_days: 60\n")
	e, err := Overlay(economyFromEnv(), path)
	require.NoError(t, err)
	assert.True(t, e.InterestRate.Equal(decimal.RequireFromString("7.25")))
	assert.Equal(t, 60, e.DepositDurationDays)
	assert.True(t, e.PenaltyRate.Equal(decimal.NewFromInt(12)))
}

func TestOverlayRejectsInvalid(t *testing.T) {
	base := economyFromEnv()
	path := writeFile(t, "min_deposit: \"500\"\nmax_deposit: \"100\"\n")
	e, err := Overlay(base, path)
	assert.Error(t, err)
	assert.True(t, e.MinDeposit.Equal(base.MinDeposit))

	path = writeFile(t, "commission_rate: \"abc\"\n")
	_, err = Overlay(base, path)
	assert.Error(t, err)
}

func TestEconomyStoreReloadKeepsSnapshotOnError(t *testing.T) {
	path := writeFile(t, "commission_rate: \"8\"\n")
	s, err := NewEconomyStore(economyFromEnv(), path)
	require.NoError(t, err)
	assert.True(t, s.Load().CommissionRate.Equal(decimal.NewFromInt(8)))

	require.NoError(t, os.WriteFile(path, []byte("commission_rate: \"9\"\n"), 0o644))
	next, err := s.Reload()
	require.NoError(t, err)
	assert.True(t, next.CommissionRate.Equal(decimal.NewFromInt(9)))

	require.NoError(t, os.WriteFile(path, []byte("deposit_duration_days: 0\n"), 0o644))
	_, err = s.Reload()
	assert.Error(t, err)
	assert.True(t, s.Load().CommissionRate.Equal(decimal.NewFromInt(9)))
	assert.Equal(t, 30, s.Load().DepositDurationDays)
}
