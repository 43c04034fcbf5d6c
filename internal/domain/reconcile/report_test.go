package reconcile

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	return &Report{
		GeneratedAt: time.Date(2026, 3, 1, 4, 30, 0, 0, time.UTC),
		Checks: []Check{
			{Name: CheckBalances, Checked: 3},
			{Name: CheckLedgerChains, Checked: 42},
			{Name: CheckVoucherCounters, Checked: 2, Mismatches: []Mismatch{
				{Key: "voucher 7d3c1f0e-5a7b-4c55-9d0e-2f1a6b8c9d01", Field: "current_redemptions", Expected: "4", Actual: "5"},
			}},
			{Name: CheckDeposits, Checked: 1},
			{Name: CheckReferralStats, Checked: 2, Mismatches: []Mismatch{
				{Key: "user 0b9e4d2a-1c3f-4e5d-8a7b-6c5d4e3f2a10", Field: "total_commission_earned", Expected: "12.00", Actual: "6.00"},
			}},
		},
	}
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteTextFailingReport(t *testing.T) {
	r := sampleReport()
	assert.False(t, r.OK())
	assert.Equal(t, 2, r.Failed())

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	golden(t).Assert(t, "report_failing", buf.Bytes())
}

func TestWriteTextCleanReport(t *testing.T) {
	r := &Report{
		GeneratedAt: time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC),
		Repaired:    true,
		Checks: []Check{
			{Name: CheckBalances, Checked: 3},
			{Name: CheckVoucherCounters, Checked: 2},
		},
	}
	assert.True(t, r.OK())

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	golden(t).Assert(t, "report_clean", buf.Bytes())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteJSON(&buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Checks, 5)
	assert.Equal(t, "current_redemptions", decoded.Checks[2].Mismatches[0].Field)
}
