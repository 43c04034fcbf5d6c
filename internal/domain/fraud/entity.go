package fraud

import (
	"time"

	"github.com/google/uuid"
)

// State tracks failed voucher attempts for one (user, source address) pair.
// A row exists only between the first failure and the next success or admin clear.
type State struct {
	UserID             uuid.UUID  `db:"user_id" json:"user_id"`
	SourceAddress      string     `db:"source_address" json:"source_address"`
	FailedAttempts     int        `db:"failed_attempts" json:"failed_attempts"`
	LastAttemptAt      time.Time  `db:"last_attempt_at" json:"last_attempt_at"`
	BlockedUntil       *time.Time `db:"blocked_until" json:"blocked_until,omitempty"`
	PermanentlyBlocked bool       `db:"permanently_blocked" json:"permanently_blocked"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// LogEntry records one failed redemption attempt.
type LogEntry struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	AttemptedCode    string    `db:"attempted_code" json:"attempted_code"`
	Reason           string    `db:"reason" json:"reason"`
	SourceAddress    string    `db:"source_address" json:"source_address"`
	UserAgent        string    `db:"user_agent" json:"user_agent"`
	AttemptsInWindow int       `db:"attempts_in_window" json:"attempts_in_window"`
	Suspicious       bool      `db:"suspicious" json:"suspicious"`
	AdminNotified    bool      `db:"admin_notified" json:"admin_notified"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// Attempt describes a failed redemption to record.
type Attempt struct {
	UserID        uuid.UUID
	SourceAddress string
	UserAgent     string
	Code          string
	Reason        string
}

// Outcome is what recording a failure changed.
type Outcome struct {
	Entry     LogEntry
	State     State
	Escalated bool // this failure moved the pair into Blocked
}

// LogFilters narrows fraud log listings.
type LogFilters struct {
	UserID         *uuid.UUID
	SourceAddress  string
	SuspiciousOnly bool
	Since          *time.Time
	Limit          int
	Offset         int
}
