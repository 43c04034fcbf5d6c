package notification

import (
	"time"

	"github.com/google/uuid"
)

// Type represents notification type
type Type string

const (
	TypeFraudAlert      Type = "fraud_alert"      // Admins: suspicious voucher activity
	TypeDepositMatured  Type = "deposit_matured"  // Player: deposit can be withdrawn
	TypeVoucherRedeemed Type = "voucher_redeemed" // Player: rewards granted
	TypeReferralBonus   Type = "referral_bonus"   // Both: registration bonus paid
)

// AudienceAdmins addresses a notification to the admin team rather than a player.
const AudienceAdmins = "admins"

// Notification is the payload handed to the delivery service.
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	Type      Type           `json:"type"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Audience  string         `json:"audience,omitempty"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
