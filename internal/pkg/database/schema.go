package database

import (
	"context"
	_ "embed"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

// Tables lists every table owned by the economy core, children first.
var Tables = []string{
	"referral_earnings",
	"referral_stats",
	"referral_links",
	"bank_transactions",
	"bank_deposits",
	"voucher_fraud_logs",
	"voucher_rate_limits",
	"voucher_redemptions",
	"vouchers",
	"user_powerups",
	"powerups",
	"ledger_transactions",
	"user_balances",
	"quiz_sessions",
}

// ApplySchema creates missing tables and indexes.
func ApplySchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}
