package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/UrrutyLabs/encuentraya-payments/internal/actor"
	auditdomain "github.com/UrrutyLabs/encuentraya-payments/internal/audit/domain"
	"github.com/UrrutyLabs/encuentraya-payments/internal/clock"
	"github.com/UrrutyLabs/encuentraya-payments/internal/config"
	"github.com/UrrutyLabs/encuentraya-payments/internal/money"
	"github.com/UrrutyLabs/encuentraya-payments/internal/observability/metrics"
	orderdomain "github.com/UrrutyLabs/encuentraya-payments/internal/order/domain"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/adapters"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
	profiledomain "github.com/UrrutyLabs/encuentraya-payments/internal/profile/domain"
	"github.com/UrrutyLabs/encuentraya-payments/internal/ratelimit"
	"github.com/UrrutyLabs/encuentraya-payments/pkg/db"
	"github.com/UrrutyLabs/encuentraya-payments/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const reconcileLockTTL = 30 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Clock      clock.Clock
	Repo       domain.Repository
	OrderRepo  orderdomain.Repository
	Profile    profiledomain.Service
	Audit      auditdomain.Service
	Registry   *adapters.Registry
	Metrics    *metrics.Metrics
	HTTPClient *http.Client      `optional:"true"`
	Locker     *ratelimit.Locker `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.Config
	clock      clock.Clock
	repo       domain.Repository
	orderRepo  orderdomain.Repository
	profile    profiledomain.Service
	audit      auditdomain.Service
	registry   *adapters.Registry
	metrics    *metrics.Metrics
	httpClient *http.Client
	locker     *ratelimit.Locker
}

func NewService(p Params) domain.PaymentService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		cfg:        p.Config,
		clock:      p.Clock,
		repo:       p.Repo,
		orderRepo:  p.OrderRepo,
		profile:    p.Profile,
		audit:      p.Audit,
		registry:   p.Registry,
		metrics:    p.Metrics,
		httpClient: p.HTTPClient,
		locker:     p.Locker,
	}
}

func (s *Service) CreatePreauthForOrder(ctx context.Context, act actor.Actor, orderID snowflake.ID) (*domain.CreatePreauthResponse, error) {
	if !act.IsClient() {
		return nil, domain.ErrClientRoleRequired
	}

	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.ClientUserID != act.UserID {
		return nil, domain.ErrNotOrderOwner
	}
	if order.Status != orderdomain.StatusAccepted {
		return nil, fmt.Errorf("%w: order status is %s, requires %s",
			domain.ErrOrderNotPayable, order.Status, orderdomain.StatusAccepted)
	}

	existing, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.IsNegotiable() {
			return preauthResponse(existing), nil
		}
		return nil, domain.ErrPaymentAlreadyExists
	}

	amount, err := orderAmount(order)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:              s.genID.Generate(),
		OrderID:         order.ID,
		ClientUserID:    order.ClientUserID,
		ProProfileID:    order.ProProfileID,
		Provider:        domain.Provider(s.cfg.DefaultProvider),
		Type:            domain.PaymentTypePreauth,
		Status:          domain.StatusCreated,
		Currency:        order.Currency,
		AmountEstimated: amount,
		IdempotencyKey:  fmt.Sprintf("%s:%d", order.ID, now.UnixNano()),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, s.db, payment); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrPaymentAlreadyExists
		}
		return nil, err
	}

	input := domain.CreatePreauthInput{
		IdempotencyKey: payment.IdempotencyKey,
		Amount:         money.New(amount, order.Currency),
		Description:    fmt.Sprintf("Order %s (%s)", order.ID, order.Category),
		Category:       order.Category,
	}
	if profile, err := s.profile.GetProfile(ctx, order.ClientUserID); err != nil {
		s.log.Warn("payer profile lookup failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	} else if profile != nil {
		input.PayerEmail = profile.Email
		input.PayerName = profile.FullName
	}

	result, err := s.createWithProvider(ctx, payment, input)
	if err != nil {
		failedAt := s.clock.Now()
		if markErr := s.repo.UpdateStatusAndAmounts(ctx, s.db, payment.ID, domain.StatusPatch{
			Status:    domain.StatusFailed,
			UpdatedAt: failedAt,
		}); markErr != nil {
			s.log.Error("failed to mark payment failed after provider error",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(markErr),
			)
		}
		return nil, err
	}

	patch := domain.StatusPatch{
		Status:    result.Status,
		UpdatedAt: s.clock.Now(),
	}
	if result.ProviderReference != "" {
		reference := result.ProviderReference
		patch.ProviderReference = &reference
	}
	if result.CheckoutURL != "" {
		checkoutURL := result.CheckoutURL
		patch.CheckoutURL = &checkoutURL
	}
	patch.AmountAuthorized = result.AmountAuthorized

	if err := s.repo.UpdateStatusAndAmounts(ctx, s.db, payment.ID, patch); err != nil {
		// The provider-side preauth exists but the row does not reflect
		// it. No compensating void is issued here; the reference is
		// logged so operators can reconcile.
		s.log.Error("preauth persisted at provider but status update failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider", string(payment.Provider)),
			zap.String("provider_reference", result.ProviderReference),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordPreauthCreated(ctx, string(payment.Provider))
	s.log.Info("preauthorization created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("provider", string(payment.Provider)),
		zap.Int64("amount_estimated", amount),
	)

	return &domain.CreatePreauthResponse{
		PaymentID:   payment.ID,
		CheckoutURL: result.CheckoutURL,
		Status:      result.Status,
	}, nil
}

func (s *Service) createWithProvider(ctx context.Context, payment *domain.Payment, input domain.CreatePreauthInput) (*domain.CreatePreauthResult, error) {
	adapter, err := s.adapterFor(string(payment.Provider))
	if err != nil {
		return nil, err
	}
	return adapter.CreatePreauth(ctx, input)
}

func (s *Service) HandleProviderWebhook(ctx context.Context, event *domain.WebhookEvent) error {
	payment, err := s.repo.FindByProviderReference(ctx, s.db, event.Provider, event.ProviderReference)
	if err != nil {
		return err
	}
	if payment == nil {
		s.log.Info("webhook for unknown payment ignored",
			zap.String("provider", string(event.Provider)),
			zap.String("provider_reference", event.ProviderReference),
			zap.String("event_type", event.Type),
		)
		return nil
	}

	// Append before anything else: duplicate deliveries produce
	// duplicate rows on purpose, the transition validator downstream is
	// what makes re-application safe.
	if err := s.repo.InsertEvent(ctx, s.db, &domain.PaymentEvent{
		ID:        s.genID.Generate(),
		PaymentID: payment.ID,
		Provider:  event.Provider,
		EventType: event.Type,
		Raw:       datatypes.JSON(event.RawPayload),
		CreatedAt: s.clock.Now(),
	}); err != nil {
		return err
	}
	s.metrics.RecordPaymentEvent(ctx, string(event.Provider), event.Type)

	release := s.tryReconcileLock(ctx, payment.ID)
	defer release()

	adapter, err := s.adapterFor(string(payment.Provider))
	if err != nil {
		return err
	}
	status, err := adapter.FetchStatus(ctx, event.ProviderReference)
	if err != nil {
		return err
	}

	return s.applyProviderStatus(ctx, payment, status, false)
}

func (s *Service) CapturePayment(ctx context.Context, act actor.Actor, paymentID snowflake.ID, amount *int64) (*domain.CaptureResponse, error) {
	if !act.IsAdmin() {
		return nil, domain.ErrAdminRoleRequired
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusAuthorized {
		return nil, fmt.Errorf("%w: status is %s, requires %s",
			domain.ErrPaymentNotAuthorized, payment.Status, domain.StatusAuthorized)
	}
	if payment.ProviderReference == nil || strings.TrimSpace(*payment.ProviderReference) == "" {
		return nil, domain.ErrMissingProviderReference
	}
	if amount == nil {
		if payment.AmountAuthorized == nil {
			return nil, domain.ErrNoAuthorizedAmount
		}
		amount = payment.AmountAuthorized
	}

	adapter, err := s.adapterFor(string(payment.Provider))
	if err != nil {
		return nil, err
	}
	result, err := adapter.Capture(ctx, *payment.ProviderReference, amount)
	if err != nil {
		return nil, err
	}

	captured := result.AmountCaptured
	if err := s.repo.UpdateStatusAndAmounts(ctx, s.db, payment.ID, domain.StatusPatch{
		Status:         domain.StatusCaptured,
		AmountCaptured: &captured,
		UpdatedAt:      s.clock.Now(),
	}); err != nil {
		s.log.Error("capture succeeded at provider but status update failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider_reference", *payment.ProviderReference),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordCapture(ctx, string(payment.Provider))
	s.log.Info("payment captured",
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("amount_captured", captured),
	)

	return &domain.CaptureResponse{PaymentID: payment.ID, AmountCaptured: captured}, nil
}

func (s *Service) SyncPaymentStatus(ctx context.Context, act actor.Actor, paymentID snowflake.ID) error {
	if !act.IsAdmin() {
		return domain.ErrAdminRoleRequired
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrPaymentNotFound
	}
	if payment.ProviderReference == nil || strings.TrimSpace(*payment.ProviderReference) == "" {
		return domain.ErrMissingProviderReference
	}

	release := s.tryReconcileLock(ctx, payment.ID)
	defer release()

	adapter, err := s.adapterFor(string(payment.Provider))
	if err != nil {
		return err
	}
	status, err := adapter.FetchStatus(ctx, *payment.ProviderReference)
	if err != nil {
		return err
	}

	statusBefore := payment.Status
	if err := s.applyProviderStatus(ctx, payment, status, true); err != nil {
		return err
	}

	actorID := act.UserID.String()
	targetID := payment.ID.String()
	if err := s.audit.AuditLog(ctx, "admin", &actorID, "payment.sync", "payment", &targetID, map[string]any{
		"status_before":      string(statusBefore),
		"status_after":       string(status.Status),
		"order_id":           payment.OrderID.String(),
		"provider":           string(payment.Provider),
		"provider_reference": *payment.ProviderReference,
	}); err != nil {
		s.log.Warn("audit log for manual sync failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Service) RefundPayment(ctx context.Context, act actor.Actor, paymentID snowflake.ID, amount *int64) error {
	if !act.IsAdmin() {
		return domain.ErrAdminRoleRequired
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrPaymentNotFound
	}
	if payment.Status != domain.StatusCaptured {
		return fmt.Errorf("%w: status is %s, requires %s",
			domain.ErrPaymentNotCaptured, payment.Status, domain.StatusCaptured)
	}
	if payment.ProviderReference == nil || strings.TrimSpace(*payment.ProviderReference) == "" {
		return domain.ErrMissingProviderReference
	}

	adapter, err := s.adapterFor(string(payment.Provider))
	if err != nil {
		return err
	}
	refunder, ok := adapter.(domain.RefundAdapter)
	if !ok {
		return domain.ErrRefundUnsupported
	}
	if err := refunder.Refund(ctx, *payment.ProviderReference, amount); err != nil {
		return err
	}

	if err := s.repo.UpdateStatusAndAmounts(ctx, s.db, payment.ID, domain.StatusPatch{
		Status:    domain.StatusRefunded,
		UpdatedAt: s.clock.Now(),
	}); err != nil {
		s.log.Error("refund succeeded at provider but status update failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider_reference", *payment.ProviderReference),
			zap.Error(err),
		)
		return err
	}

	s.metrics.RecordRefund(ctx, string(payment.Provider))

	actorID := act.UserID.String()
	targetID := payment.ID.String()
	if err := s.audit.AuditLog(ctx, "admin", &actorID, "payment.refund", "payment", &targetID, map[string]any{
		"status_before":      string(domain.StatusCaptured),
		"status_after":       string(domain.StatusRefunded),
		"order_id":           payment.OrderID.String(),
		"provider":           string(payment.Provider),
		"provider_reference": *payment.ProviderReference,
	}); err != nil {
		s.log.Warn("audit log for refund failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Service) AdminListPayments(ctx context.Context, act actor.Actor, req domain.ListPaymentsRequest) (domain.ListPaymentsResponse, error) {
	if !act.IsAdmin() {
		return domain.ListPaymentsResponse{}, domain.ErrAdminRoleRequired
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	var cursor *pagination.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListPaymentsResponse{}, domain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	payments, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Provider:     req.Provider,
		Status:       req.Status,
		ClientUserID: req.ClientUserID,
		Limit:        limit,
		Cursor:       cursor,
	})
	if err != nil {
		return domain.ListPaymentsResponse{}, err
	}

	resp := domain.ListPaymentsResponse{}
	if len(payments) > limit {
		payments = payments[:limit]
		resp.HasMore = true
		last := payments[len(payments)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err == nil {
			resp.NextPageToken = token
		}
	}
	resp.Payments = payments
	return resp, nil
}

func (s *Service) AdminGetPayment(ctx context.Context, act actor.Actor, paymentID snowflake.ID) (*domain.PaymentDetail, error) {
	if !act.IsAdmin() {
		return nil, domain.ErrAdminRoleRequired
	}

	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}

	events, err := s.repo.ListEventsByPaymentID(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentDetail{Payment: payment, Events: events}, nil
}

// applyProviderStatus is the shared reconciliation tail of the webhook
// and manual-sync paths. raiseOnInvalid distinguishes them: webhooks
// ignore an invalid transition silently (ratchet semantics), manual sync
// surfaces it to the operator.
func (s *Service) applyProviderStatus(ctx context.Context, payment *domain.Payment, status *domain.ProviderStatus, raiseOnInvalid bool) error {
	next := status.Status
	if !domain.IsValidStatusTransition(payment.Status, next) {
		if raiseOnInvalid {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, payment.Status, next)
		}
		s.log.Warn("ignoring invalid status transition",
			zap.String("payment_id", payment.ID.String()),
			zap.String("current", string(payment.Status)),
			zap.String("next", string(next)),
		)
		return nil
	}

	statusChanged := next != payment.Status
	amountsChanged := amountDiffers(status.AmountAuthorized, payment.AmountAuthorized) ||
		amountDiffers(status.AmountCaptured, payment.AmountCaptured)
	if !statusChanged && !amountsChanged {
		return nil
	}

	if err := s.repo.UpdateStatusAndAmounts(ctx, s.db, payment.ID, domain.StatusPatch{
		Status:           next,
		AmountAuthorized: status.AmountAuthorized,
		AmountCaptured:   status.AmountCaptured,
		UpdatedAt:        s.clock.Now(),
	}); err != nil {
		return err
	}

	s.log.Info("payment status reconciled",
		zap.String("payment_id", payment.ID.String()),
		zap.String("from", string(payment.Status)),
		zap.String("to", string(next)),
	)

	if statusChanged && next == domain.StatusAuthorized {
		if err := s.advanceOrderOnAuthorization(ctx, payment.OrderID); err != nil {
			return err
		}
	}
	return nil
}

// advanceOrderOnAuthorization is the single place a payment event
// mutates an order: accepted moves to scheduled once the money is held.
// Failed or cancelled payments leave the order alone so the client can
// retry.
func (s *Service) advanceOrderOnAuthorization(ctx context.Context, orderID snowflake.ID) error {
	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if order == nil || order.Status != orderdomain.StatusAccepted {
		return nil
	}
	if err := s.orderRepo.UpdateStatus(ctx, s.db, order.ID, orderdomain.StatusScheduled, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("order scheduled after authorization",
		zap.String("order_id", order.ID.String()),
	)
	return nil
}

// tryReconcileLock takes the best-effort per-payment lock. Correctness
// never depends on it; the transition validator stays the backstop, so
// any failure to acquire just proceeds.
func (s *Service) tryReconcileLock(ctx context.Context, paymentID snowflake.ID) func() {
	if s.locker == nil {
		return func() {}
	}
	key := ratelimit.PaymentLockKey(paymentID)
	token, ok, err := s.locker.TryLock(ctx, key, reconcileLockTTL)
	if err != nil || !ok {
		return func() {}
	}
	return func() {
		if err := s.locker.Release(ctx, key, token); err != nil {
			s.log.Warn("reconcile lock release failed",
				zap.String("payment_id", paymentID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) adapterFor(provider string) (domain.PaymentAdapter, error) {
	return s.registry.NewAdapter(provider, domain.AdapterConfig{
		Provider:   provider,
		Config:     s.cfg.PaymentProviderConfigs()[strings.ToLower(strings.TrimSpace(provider))],
		HTTPClient: s.httpClient,
	})
}

func preauthResponse(payment *domain.Payment) *domain.CreatePreauthResponse {
	resp := &domain.CreatePreauthResponse{
		PaymentID: payment.ID,
		Status:    payment.Status,
	}
	if payment.CheckoutURL != nil {
		resp.CheckoutURL = *payment.CheckoutURL
	}
	return resp
}

// orderAmount resolves the estimated charge in priority order: the
// finalized total wins, then an accepted fixed-price quote, then the
// hourly snapshot times the estimate.
func orderAmount(order *orderdomain.Order) (int64, error) {
	if order.TotalAmount != nil {
		return *order.TotalAmount, nil
	}
	if order.PricingMode == orderdomain.PricingModeFixed {
		if order.QuotedAmount == nil || order.QuoteAcceptedAt == nil {
			return 0, domain.ErrQuoteNotAccepted
		}
		return *order.QuotedAmount, nil
	}
	if order.HourlyRateSnapshotAmount == nil || order.EstimatedHours == nil {
		return 0, domain.ErrMissingHourlyPricing
	}
	return money.HourlyAmount(*order.HourlyRateSnapshotAmount, *order.EstimatedHours), nil
}

func amountDiffers(incoming *int64, stored *int64) bool {
	if incoming == nil {
		return false
	}
	return stored == nil || *stored != *incoming
}
