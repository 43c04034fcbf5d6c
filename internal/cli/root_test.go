package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/economy-api/internal/app"
	"github.com/quizarena/economy-api/internal/config"
	"github.com/quizarena/economy-api/internal/pkg/jwt"
)

var errNoDB = errors.New("no database in tests")

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{open: func(context.Context, *config.Config) (*app.App, error) {
		return nil, errNoDB
	}}
	cmd := newRoot(opts)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "economy", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestTokenIsSignedWithConfiguredSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	userID := uuid.New()

	out, err := run(t, "token", "--user", userID.String(), "--role", jwt.RoleAdmin, "--ttl", "1m")
	require.NoError(t, err)

	claims, err := jwt.NewService("cli-secret", time.Minute).ValidateAccessToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, jwt.RoleAdmin, claims.Role)
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	_, err := run(t, "token", "--role", "root")
	require.Error(t, err)
}

func TestEconomyCheckAppliesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interest_rate: \"5.5\"\ncommission_rate: \"7\"\n"), 0o644))

	out, err := run(t, "--format", "json", "economy", "check", path)
	require.NoError(t, err)

	var v economyView
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "5.5", v.InterestRate)
	assert.Equal(t, "7", v.CommissionRate)
	assert.Equal(t, "12", v.PenaltyRate)
}

func TestEconomyCheckRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("penalty_rate: \"150\"\n"), 0o644))

	_, err := run(t, "economy", "check", path)
	require.Error(t, err)
}

func TestCommandsNeedingTheDatabaseReportConnectionErrors(t *testing.T) {
	for _, args := range [][]string{
		{"migrate"},
		{"reconcile"},
		{"jobs", "run", "maturity_sweep"},
		{"unblock", uuid.NewString(), "10.0.0.1"},
	} {
		_, err := run(t, args...)
		assert.ErrorIs(t, err, errNoDB, args)
	}
}

func TestVoucherParams(t *testing.T) {
	admin := uuid.New()
	opts := &voucherOptions{
		Coins:          "50",
		BonusCoins:     "2.5",
		Powerups:       []string{"hint=2", "skip=1"},
		MaxRedemptions: 100,
		MaxPerUser:     1,
		ValidFor:       time.Hour,
		Admin:          admin.String(),
	}

	p, err := opts.params()
	require.NoError(t, err)
	assert.True(t, p.RewardCoins.Equal(decimal.NewFromInt(50)))
	assert.True(t, p.RewardBonusCoins.Equal(decimal.RequireFromString("2.5")))
	require.Len(t, p.Powerups, 2)
	assert.Equal(t, "hint", p.Powerups[0].ID)
	assert.Equal(t, 2, p.Powerups[0].Qty)
	assert.Equal(t, admin, p.CreatedBy)
	require.NotNil(t, p.ValidUntil)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *p.ValidUntil, time.Minute)

	opts.Powerups = []string{"hint"}
	_, err = opts.params()
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitDrift, ExitCode(&ExitError{Code: ExitDrift, Err: errors.New("drift")}))
	assert.Equal(t, ExitCommandError, ExitCode(errors.New("boom")))
}
