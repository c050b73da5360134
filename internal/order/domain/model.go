package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	// StatusPendingAcceptance is a freshly placed order waiting for a pro.
	StatusPendingAcceptance Status = "pending_acceptance"
	// StatusAccepted means the pro accepted and the order awaits payment
	// authorization. This is the only status a preauth can be created in.
	StatusAccepted Status = "accepted"
	// StatusScheduled is reached once the payment is authorized.
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type PricingMode string

const (
	PricingModeHourly PricingMode = "hourly"
	PricingModeFixed  PricingMode = "fixed"
)

// Order is the booking as the payment core sees it. The full order
// lifecycle lives in the marketplace backend; this service only reads the
// pricing snapshot and advances accepted -> scheduled on authorization.
type Order struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	ClientUserID snowflake.ID  `json:"client_user_id" gorm:"not null;index"`
	ProProfileID *snowflake.ID `json:"pro_profile_id,omitempty"`

	Status      Status      `json:"status" gorm:"type:text;not null"`
	Category    string      `json:"category" gorm:"type:text;not null"`
	PricingMode PricingMode `json:"pricing_mode" gorm:"type:text;not null"`
	Currency    string      `json:"currency" gorm:"type:text;not null"`

	// Hourly pricing snapshot, minor units per hour.
	HourlyRateSnapshotAmount *int64   `json:"hourly_rate_snapshot_amount,omitempty"`
	EstimatedHours           *float64 `json:"estimated_hours,omitempty"`

	// Fixed pricing: the pro's quote and when the client accepted it.
	QuotedAmount    *int64     `json:"quoted_amount,omitempty"`
	QuoteAcceptedAt *time.Time `json:"quote_accepted_at,omitempty"`

	// TotalAmount is the finalized total, set at completion time. When
	// present it wins over every other pricing source.
	TotalAmount *int64 `json:"total_amount,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }
