package domain

import (
	"context"
	"time"

	"github.com/UrrutyLabs/encuentraya-payments/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// StatusPatch is the only way a payment row changes after creation.
// Pointer fields overwrite the stored value only when non-nil, so a
// provider that omits an amount never erases what an earlier
// reconciliation recorded.
type StatusPatch struct {
	Status            PaymentStatus
	ProviderReference *string
	CheckoutURL       *string
	AmountAuthorized  *int64
	AmountCaptured    *int64
	UpdatedAt         time.Time
}

type ListFilter struct {
	Provider     string
	Status       string
	ClientUserID snowflake.ID
	Limit        int
	Cursor       *pagination.Cursor
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Payment, error)
	FindByProviderReference(ctx context.Context, db *gorm.DB, provider Provider, reference string) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)
	UpdateStatusAndAmounts(ctx context.Context, db *gorm.DB, id snowflake.ID, patch StatusPatch) error
	FindPendingByClientUserID(ctx context.Context, db *gorm.DB, clientUserID snowflake.ID) ([]*Payment, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *PaymentEvent) error
	ListEventsByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*PaymentEvent, error)
}
