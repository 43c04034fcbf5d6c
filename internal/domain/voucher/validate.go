package voucher

import "time"

// eligibility runs the voucher-level checks of the redemption pipeline in order and
// returns the first failing reason, or "" when the user may redeem.
func eligibility(v *Voucher, userRedemptions int, now time.Time) Reason {
	switch {
	case !v.Active:
		return ReasonVoucherInactive
	case now.Before(v.ValidFrom):
		return ReasonNotYetValid
	case v.ValidUntil != nil && now.After(*v.ValidUntil):
		return ReasonExpired
	case v.CurrentRedemptions >= v.MaxRedemptions:
		return ReasonMaxRedemptionsReached
	case userRedemptions >= v.MaxPerUser:
		return ReasonAlreadyRedeemedByUser
	}
	return ""
}
