package domain

import (
	"context"
	"errors"

	"github.com/UrrutyLabs/encuentraya-payments/internal/actor"
	"github.com/UrrutyLabs/encuentraya-payments/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type CreatePreauthResponse struct {
	PaymentID   snowflake.ID  `json:"payment_id"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
	Status      PaymentStatus `json:"status"`
}

type CaptureResponse struct {
	PaymentID      snowflake.ID `json:"payment_id"`
	AmountCaptured int64        `json:"amount_captured"`
}

type ListPaymentsRequest struct {
	pagination.Pagination
	Provider     string
	Status       string
	ClientUserID snowflake.ID
}

type ListPaymentsResponse struct {
	pagination.PageInfo
	Payments []*Payment `json:"payments"`
}

// PaymentDetail joins a payment with its full event history, oldest
// first.
type PaymentDetail struct {
	Payment *Payment        `json:"payment"`
	Events  []*PaymentEvent `json:"events"`
}

// PaymentService is the lifecycle orchestrator: it owns every status
// transition a payment can take and is the only writer of payment rows.
type PaymentService interface {
	CreatePreauthForOrder(ctx context.Context, act actor.Actor, orderID snowflake.ID) (*CreatePreauthResponse, error)
	HandleProviderWebhook(ctx context.Context, event *WebhookEvent) error
	CapturePayment(ctx context.Context, act actor.Actor, paymentID snowflake.ID, amount *int64) (*CaptureResponse, error)
	SyncPaymentStatus(ctx context.Context, act actor.Actor, paymentID snowflake.ID) error
	RefundPayment(ctx context.Context, act actor.Actor, paymentID snowflake.ID, amount *int64) error
	AdminListPayments(ctx context.Context, act actor.Actor, req ListPaymentsRequest) (ListPaymentsResponse, error)
	AdminGetPayment(ctx context.Context, act actor.Actor, paymentID snowflake.ID) (*PaymentDetail, error)
}
