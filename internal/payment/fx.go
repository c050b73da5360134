package payment

import (
	"net/http"
	"time"

	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/adapters"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/adapters/mercadopago"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/adapters/stripe"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/repository"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/service"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/webhook"
	"go.uber.org/fx"
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		stripe.NewFactory(),
		mercadopago.NewFactory(),
	)
}

// newHTTPClient is the single outbound client shared by every adapter.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

var Module = fx.Module("payment",
	fx.Provide(newRegistry),
	fx.Provide(newHTTPClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
)
