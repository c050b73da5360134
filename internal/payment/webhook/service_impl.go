package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/UrrutyLabs/encuentraya-payments/internal/config"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/adapters"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Registry   *adapters.Registry
	Payments   domain.PaymentService
	HTTPClient *http.Client `optional:"true"`
}

// Service is the webhook front door: it authenticates and normalizes a
// raw provider delivery, then hands the signal to the payment service.
type Service struct {
	log        *zap.Logger
	cfg        config.Config
	registry   *adapters.Registry
	payments   domain.PaymentService
	httpClient *http.Client
}

func NewService(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		cfg:        p.Config,
		registry:   p.Registry,
		payments:   p.Payments,
		httpClient: p.HTTPClient,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || !s.registry.ProviderExists(provider) {
		return domain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return domain.ErrInvalidPayload
	}

	adapter, err := s.registry.NewAdapter(provider, domain.AdapterConfig{
		Provider:   provider,
		Config:     s.cfg.PaymentProviderConfigs()[provider],
		HTTPClient: s.httpClient,
	})
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature verification failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			s.log.Debug("webhook event type ignored",
				zap.String("provider", provider),
			)
			return nil
		}
		return err
	}

	return s.payments.HandleProviderWebhook(ctx, event)
}
