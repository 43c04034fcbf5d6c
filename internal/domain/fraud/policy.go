package fraud

import "time"

// Policy holds the rate limiter and fraud detector thresholds.
type Policy struct {
	MaxAttempts         int
	BlockDuration       time.Duration
	Window              time.Duration
	SuspiciousThreshold int
	RejectThreshold     int
	PermanentOnBlock    bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         5,
		BlockDuration:       60 * time.Minute,
		Window:              time.Hour,
		SuspiciousThreshold: 3,
		RejectThreshold:     10,
	}
}

// Decision is the result of checking a state before an attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Permanent  bool
	// Reset is set when a temporary block has elapsed and the counter must start over.
	Reset bool
}

// Evaluate decides whether an attempt may proceed. A nil state is Normal.
func (p Policy) Evaluate(st *State, now time.Time) Decision {
	if st == nil {
		return Decision{Allowed: true}
	}
	if st.PermanentlyBlocked {
		return Decision{Permanent: true}
	}
	if st.BlockedUntil != nil {
		if now.Before(*st.BlockedUntil) {
			return Decision{RetryAfter: st.BlockedUntil.Sub(now)}
		}
		return Decision{Allowed: true, Reset: true}
	}
	return Decision{Allowed: true}
}

// Fail returns the state after one more failure and whether it crossed into Blocked.
func (p Policy) Fail(st State, now time.Time) (State, bool) {
	if st.BlockedUntil != nil && !st.PermanentlyBlocked && !now.Before(*st.BlockedUntil) {
		st.FailedAttempts = 0
		st.BlockedUntil = nil
	}

	st.FailedAttempts++
	st.LastAttemptAt = now
	st.UpdatedAt = now

	escalated := false
	if st.FailedAttempts >= p.MaxAttempts && st.BlockedUntil == nil && !st.PermanentlyBlocked {
		until := now.Add(p.BlockDuration)
		st.BlockedUntil = &until
		st.PermanentlyBlocked = p.PermanentOnBlock
		escalated = true
	}
	return st, escalated
}

// Suspicious reports whether count failures in the window mark an entry suspicious.
func (p Policy) Suspicious(count int) bool {
	return count >= p.SuspiciousThreshold
}

// Reject reports whether count failures in the window reject further attempts outright.
func (p Policy) Reject(count int) bool {
	return p.RejectThreshold > 0 && count >= p.RejectThreshold
}

// shouldNotify sends one admin alert per escalation: the first suspicious entry in a
// window, and again whenever a failure blocks an address.
func shouldNotify(suspicious, alreadyNotified, escalated bool) bool {
	return suspicious && (!alreadyNotified || escalated)
}
