package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Provider string

const (
	ProviderStripe      Provider = "stripe"
	ProviderMercadoPago Provider = "mercadopago"
)

type PaymentType string

const PaymentTypePreauth PaymentType = "preauth"

type PaymentStatus string

const (
	StatusCreated        PaymentStatus = "created"
	StatusRequiresAction PaymentStatus = "requires_action"
	StatusAuthorized     PaymentStatus = "authorized"
	StatusCaptured       PaymentStatus = "captured"
	StatusFailed         PaymentStatus = "failed"
	StatusCancelled      PaymentStatus = "cancelled"
	StatusRefunded       PaymentStatus = "refunded"
)

// Payment is one authorization/capture attempt tied to exactly one order.
// Rows are created in StatusCreated, mutated only through
// Repository.UpdateStatusAndAmounts, and never deleted: they are the
// financial record and outlive account deletion elsewhere in the system.
type Payment struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrderID      snowflake.ID  `json:"order_id" gorm:"not null;index"`
	ClientUserID snowflake.ID  `json:"client_user_id" gorm:"not null;index"`
	ProProfileID *snowflake.ID `json:"pro_profile_id,omitempty"`

	Provider Provider      `json:"provider" gorm:"type:text;not null"`
	Type     PaymentType   `json:"type" gorm:"type:text;not null"`
	Status   PaymentStatus `json:"status" gorm:"type:text;not null"`

	Currency         string `json:"currency" gorm:"type:text;not null"`
	AmountEstimated  int64  `json:"amount_estimated" gorm:"not null"`
	AmountAuthorized *int64 `json:"amount_authorized,omitempty"`
	AmountCaptured   *int64 `json:"amount_captured,omitempty"`

	ProviderReference *string `json:"provider_reference,omitempty" gorm:"type:text"`
	CheckoutURL       *string `json:"checkout_url,omitempty" gorm:"type:text"`

	// IdempotencyKey is unique per creation attempt (order id plus the
	// creation timestamp) so a retried provider call can never double
	// charge the payer.
	IdempotencyKey string `json:"idempotency_key" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) IsNegotiable() bool {
	return p.Status == StatusCreated || p.Status == StatusRequiresAction
}

// PaymentEvent is the append-only log of every webhook or reconciliation
// event observed for a payment. Duplicate deliveries are stored twice on
// purpose; idempotency lives in the status-transition layer, not here.
type PaymentEvent struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	PaymentID snowflake.ID   `json:"payment_id" gorm:"not null;index"`
	Provider  Provider       `json:"provider" gorm:"type:text;not null"`
	EventType string         `json:"event_type" gorm:"type:text;not null"`
	Raw       datatypes.JSON `json:"raw" gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
}

func (PaymentEvent) TableName() string { return "payment_events" }

// WebhookEvent is the normalized signal an adapter extracts from a raw
// webhook delivery. It identifies which payment to re-poll; the payload
// body is never trusted as status source of truth.
type WebhookEvent struct {
	Provider          Provider
	ProviderReference string
	Type              string
	RawPayload        []byte
}
