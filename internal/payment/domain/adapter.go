package domain

import (
	"context"
	"net/http"

	"github.com/UrrutyLabs/encuentraya-payments/internal/money"
)

// AdapterConfig carries everything a factory needs to build an adapter.
// HTTPClient is the application's long-lived outbound client, injected so
// adapters never hold their own lazily-built singletons.
type AdapterConfig struct {
	Provider   string
	Config     map[string]any
	HTTPClient *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

type CreatePreauthInput struct {
	IdempotencyKey string
	Amount         money.Money
	Description    string
	Category       string
	PayerEmail     string
	PayerName      string
}

type CreatePreauthResult struct {
	ProviderReference string
	CheckoutURL       string
	Status            PaymentStatus
	AmountAuthorized  *int64
}

// ProviderStatus is the authoritative live state fetched from the
// processor. Amounts are in internal minor units; nil means the provider
// did not report that figure and the stored value must be retained.
type ProviderStatus struct {
	Status           PaymentStatus
	AmountAuthorized *int64
	AmountCaptured   *int64
}

type CaptureResult struct {
	AmountCaptured int64
}

// PaymentAdapter translates the internal payment lifecycle to one
// external processor's API. Each adapter owns an exhaustive mapping from
// the processor's native status vocabulary to PaymentStatus; anything
// unmapped degrades to a still-pending status, never to success. All
// amounts cross this boundary in internal minor units.
type PaymentAdapter interface {
	CreatePreauth(ctx context.Context, in CreatePreauthInput) (*CreatePreauthResult, error)
	FetchStatus(ctx context.Context, providerReference string) (*ProviderStatus, error)
	Capture(ctx context.Context, providerReference string, amount *int64) (*CaptureResult, error)

	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookEvent, error)
}

// RefundAdapter is implemented by adapters whose processor supports
// refunding a captured payment. Resolved by type assertion; adapters
// without it yield ErrRefundUnsupported.
type RefundAdapter interface {
	Refund(ctx context.Context, providerReference string, amount *int64) error
}

// Service is the webhook ingestion surface exposed to the HTTP layer.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
