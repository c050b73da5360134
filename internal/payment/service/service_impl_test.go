package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/UrrutyLabs/encuentraya-payments/internal/actor"
	auditrepository "github.com/UrrutyLabs/encuentraya-payments/internal/audit/repository"
	auditservice "github.com/UrrutyLabs/encuentraya-payments/internal/audit/service"
	"github.com/UrrutyLabs/encuentraya-payments/internal/clock"
	"github.com/UrrutyLabs/encuentraya-payments/internal/config"
	orderdomain "github.com/UrrutyLabs/encuentraya-payments/internal/order/domain"
	orderrepository "github.com/UrrutyLabs/encuentraya-payments/internal/order/repository"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/adapters"
	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
	paymentrepository "github.com/UrrutyLabs/encuentraya-payments/internal/payment/repository"
	profiledomain "github.com/UrrutyLabs/encuentraya-payments/internal/profile/domain"
	"github.com/UrrutyLabs/encuentraya-payments/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSchema = `
CREATE TABLE payments (
	id INTEGER PRIMARY KEY,
	order_id INTEGER NOT NULL,
	client_user_id INTEGER NOT NULL,
	pro_profile_id INTEGER,
	provider TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount_estimated INTEGER NOT NULL,
	amount_authorized INTEGER,
	amount_captured INTEGER,
	provider_reference TEXT,
	checkout_url TEXT,
	idempotency_key TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE payment_events (
	id INTEGER PRIMARY KEY,
	payment_id INTEGER NOT NULL,
	provider TEXT NOT NULL,
	event_type TEXT NOT NULL,
	raw TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	client_user_id INTEGER NOT NULL,
	pro_profile_id INTEGER,
	status TEXT NOT NULL,
	category TEXT NOT NULL,
	pricing_mode TEXT NOT NULL,
	currency TEXT NOT NULL,
	hourly_rate_snapshot_amount INTEGER,
	estimated_hours REAL,
	quoted_amount INTEGER,
	quote_accepted_at DATETIME,
	total_amount INTEGER,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY,
	actor_type TEXT NOT NULL,
	actor_id TEXT,
	action TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT,
	metadata TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
`

type fakeAdapter struct {
	createCalls  int
	fetchCalls   int
	captureCalls int
	refundCalls  int

	createResult *domain.CreatePreauthResult
	createErr    error
	fetchResult  *domain.ProviderStatus
	fetchErr     error
	captureFn    func(amount *int64) (*domain.CaptureResult, error)
	refundErr    error
}

func (a *fakeAdapter) CreatePreauth(ctx context.Context, in domain.CreatePreauthInput) (*domain.CreatePreauthResult, error) {
	a.createCalls++
	if a.createErr != nil {
		return nil, a.createErr
	}
	return a.createResult, nil
}

func (a *fakeAdapter) FetchStatus(ctx context.Context, providerReference string) (*domain.ProviderStatus, error) {
	a.fetchCalls++
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.fetchResult, nil
}

func (a *fakeAdapter) Capture(ctx context.Context, providerReference string, amount *int64) (*domain.CaptureResult, error) {
	a.captureCalls++
	if a.captureFn != nil {
		return a.captureFn(amount)
	}
	requested := int64(0)
	if amount != nil {
		requested = *amount
	}
	return &domain.CaptureResult{AmountCaptured: requested}, nil
}

func (a *fakeAdapter) Refund(ctx context.Context, providerReference string, amount *int64) error {
	a.refundCalls++
	return a.refundErr
}

func (a *fakeAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return nil
}

func (a *fakeAdapter) Parse(ctx context.Context, payload []byte) (*domain.WebhookEvent, error) {
	return nil, domain.ErrEventIgnored
}

type fakeFactory struct {
	adapter *fakeAdapter
}

func (f *fakeFactory) Provider() string { return "fakepay" }

func (f *fakeFactory) NewAdapter(cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	return f.adapter, nil
}

type profileStub struct {
	profile *profiledomain.ClientProfile
	err     error
}

func (p *profileStub) GetProfile(ctx context.Context, userID snowflake.ID) (*profiledomain.ClientProfile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	adapter *fakeAdapter
	repo    domain.Repository
	svc     domain.PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec(testSchema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	adapter := &fakeAdapter{
		createResult: &domain.CreatePreauthResult{
			ProviderReference: "ref_1",
			CheckoutURL:       "https://checkout.example/ref_1",
			Status:            domain.StatusRequiresAction,
		},
	}

	repo := paymentrepository.Provide()
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Config: config.Config{DefaultProvider: "fakepay"},
		Clock:  fakeClock,
		Repo:   repo,
		OrderRepo: orderrepository.Provide(),
		Profile: &profileStub{profile: &profiledomain.ClientProfile{
			Email:    "client@example.com",
			FullName: "Cliente Ejemplo",
		}},
		Audit:    auditSvc,
		Registry: adapters.NewRegistry(&fakeFactory{adapter: adapter}),
	})

	return &fixture{
		db:      db,
		node:    node,
		clock:   fakeClock,
		adapter: adapter,
		repo:    repo,
		svc:     svc,
	}
}

func (f *fixture) insertOrder(t *testing.T, order *orderdomain.Order) *orderdomain.Order {
	t.Helper()
	if order.ID == 0 {
		order.ID = f.node.Generate()
	}
	now := f.clock.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	err := f.db.Exec(
		`INSERT INTO orders (
			id, client_user_id, pro_profile_id, status, category, pricing_mode, currency,
			hourly_rate_snapshot_amount, estimated_hours, quoted_amount, quote_accepted_at,
			total_amount, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.ClientUserID, order.ProProfileID, order.Status, order.Category,
		order.PricingMode, order.Currency, order.HourlyRateSnapshotAmount, order.EstimatedHours,
		order.QuotedAmount, order.QuoteAcceptedAt, order.TotalAmount, order.CreatedAt, order.UpdatedAt,
	).Error
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return order
}

func (f *fixture) insertPayment(t *testing.T, payment *domain.Payment) *domain.Payment {
	t.Helper()
	if payment.ID == 0 {
		payment.ID = f.node.Generate()
	}
	if payment.Provider == "" {
		payment.Provider = "fakepay"
	}
	if payment.Type == "" {
		payment.Type = domain.PaymentTypePreauth
	}
	if payment.Currency == "" {
		payment.Currency = "UYU"
	}
	if payment.IdempotencyKey == "" {
		payment.IdempotencyKey = payment.OrderID.String() + ":test"
	}
	payment.CreatedAt = f.clock.Now()
	payment.UpdatedAt = f.clock.Now()
	if err := f.repo.Create(context.Background(), f.db, payment); err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	return payment
}

func (f *fixture) reloadPayment(t *testing.T, id snowflake.ID) *domain.Payment {
	t.Helper()
	payment, err := f.repo.FindByID(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment == nil {
		t.Fatalf("payment %s not found", id)
	}
	return payment
}

func (f *fixture) orderStatus(t *testing.T, id snowflake.ID) orderdomain.Status {
	t.Helper()
	var status string
	if err := f.db.Raw(`SELECT status FROM orders WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("read order status: %v", err)
	}
	return orderdomain.Status(status)
}

func (f *fixture) eventCount(t *testing.T, paymentID snowflake.ID) int {
	t.Helper()
	var count int
	if err := f.db.Raw(`SELECT COUNT(*) FROM payment_events WHERE payment_id = ?`, paymentID).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}

func pageToken(token string) pagination.Pagination {
	return pagination.Pagination{PageToken: token}
}

func clientActor(order *orderdomain.Order) actor.Actor {
	return actor.Actor{UserID: order.ClientUserID, Role: actor.RoleClient}
}

func adminActor(node *snowflake.Node) actor.Actor {
	return actor.Actor{UserID: node.Generate(), Role: actor.RoleAdmin}
}

func hourlyOrder(f *fixture, t *testing.T) *orderdomain.Order {
	rate := int64(10000)
	hours := 2.0
	return f.insertOrder(t, &orderdomain.Order{
		ClientUserID:             f.node.Generate(),
		Status:                   orderdomain.StatusAccepted,
		Category:                 "plumbing",
		PricingMode:              orderdomain.PricingModeHourly,
		Currency:                 "UYU",
		HourlyRateSnapshotAmount: &rate,
		EstimatedHours:           &hours,
	})
}

func TestCreatePreauthHourlyAmount(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)

	resp, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if err != nil {
		t.Fatalf("CreatePreauthForOrder: %v", err)
	}
	if f.adapter.createCalls != 1 {
		t.Fatalf("expected 1 provider call, got %d", f.adapter.createCalls)
	}
	if resp.CheckoutURL != "https://checkout.example/ref_1" {
		t.Fatalf("unexpected checkout url %q", resp.CheckoutURL)
	}

	payment := f.reloadPayment(t, resp.PaymentID)
	if payment.AmountEstimated != 20000 {
		t.Fatalf("expected amount 20000 (100.00 x 2h), got %d", payment.AmountEstimated)
	}
	if payment.Status != domain.StatusRequiresAction {
		t.Fatalf("expected requires_action, got %s", payment.Status)
	}
	if payment.ProviderReference == nil || *payment.ProviderReference != "ref_1" {
		t.Fatalf("expected provider reference ref_1, got %v", payment.ProviderReference)
	}
}

func TestCreatePreauthHourlyRoundsHalfUp(t *testing.T) {
	f := newFixture(t)
	rate := int64(333)
	hours := 1.5
	order := f.insertOrder(t, &orderdomain.Order{
		ClientUserID:             f.node.Generate(),
		Status:                   orderdomain.StatusAccepted,
		Category:                 "cleaning",
		PricingMode:              orderdomain.PricingModeHourly,
		Currency:                 "UYU",
		HourlyRateSnapshotAmount: &rate,
		EstimatedHours:           &hours,
	})

	resp, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if err != nil {
		t.Fatalf("CreatePreauthForOrder: %v", err)
	}
	if got := f.reloadPayment(t, resp.PaymentID).AmountEstimated; got != 500 {
		t.Fatalf("expected 499.5 rounded to 500, got %d", got)
	}
}

func TestCreatePreauthPrefersFinalizedTotal(t *testing.T) {
	f := newFixture(t)
	quoted := int64(55000)
	total := int64(40260)
	accepted := f.clock.Now()
	order := f.insertOrder(t, &orderdomain.Order{
		ClientUserID:    f.node.Generate(),
		Status:          orderdomain.StatusAccepted,
		Category:        "electrical",
		PricingMode:     orderdomain.PricingModeFixed,
		Currency:        "UYU",
		QuotedAmount:    &quoted,
		QuoteAcceptedAt: &accepted,
		TotalAmount:     &total,
	})

	resp, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if err != nil {
		t.Fatalf("CreatePreauthForOrder: %v", err)
	}
	if got := f.reloadPayment(t, resp.PaymentID).AmountEstimated; got != 40260 {
		t.Fatalf("expected finalized total 40260 to win over quote, got %d", got)
	}
}

func TestCreatePreauthFixedRequiresAcceptedQuote(t *testing.T) {
	f := newFixture(t)
	quoted := int64(55000)
	order := f.insertOrder(t, &orderdomain.Order{
		ClientUserID: f.node.Generate(),
		Status:       orderdomain.StatusAccepted,
		Category:     "electrical",
		PricingMode:  orderdomain.PricingModeFixed,
		Currency:     "UYU",
		QuotedAmount: &quoted,
	})

	_, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if !errors.Is(err, domain.ErrQuoteNotAccepted) {
		t.Fatalf("expected ErrQuoteNotAccepted, got %v", err)
	}
	if f.adapter.createCalls != 0 {
		t.Fatalf("provider must not be called, got %d calls", f.adapter.createCalls)
	}
	if existing, _ := f.repo.FindByOrderID(context.Background(), f.db, order.ID); existing != nil {
		t.Fatal("no payment row must be persisted")
	}
}

func TestCreatePreauthIdempotentReEntry(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)

	first, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if err != nil {
		t.Fatalf("first CreatePreauthForOrder: %v", err)
	}
	second, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if err != nil {
		t.Fatalf("second CreatePreauthForOrder: %v", err)
	}

	if first.PaymentID != second.PaymentID {
		t.Fatalf("expected same payment, got %s and %s", first.PaymentID, second.PaymentID)
	}
	if second.CheckoutURL != first.CheckoutURL {
		t.Fatalf("expected same checkout url, got %q", second.CheckoutURL)
	}
	if f.adapter.createCalls != 1 {
		t.Fatalf("provider must be called exactly once, got %d", f.adapter.createCalls)
	}
}

func TestCreatePreauthRejectsSettledPayment(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	f.insertPayment(t, &domain.Payment{
		OrderID:      order.ID,
		ClientUserID: order.ClientUserID,
		Status:       domain.StatusCaptured,
	})

	_, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if !errors.Is(err, domain.ErrPaymentAlreadyExists) {
		t.Fatalf("expected ErrPaymentAlreadyExists, got %v", err)
	}
}

func TestCreatePreauthProviderFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	providerErr := errors.New("card network down")
	f.adapter.createErr = providerErr

	_, err := f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), order.ID)
	if !errors.Is(err, providerErr) {
		t.Fatalf("provider error must be re-raised, got %v", err)
	}

	payment, err := f.repo.FindByOrderID(context.Background(), f.db, order.ID)
	if err != nil || payment == nil {
		t.Fatalf("failed payment row must exist: %v", err)
	}
	if payment.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", payment.Status)
	}
}

func TestCreatePreauthGates(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)

	_, err := f.svc.CreatePreauthForOrder(context.Background(),
		actor.Actor{UserID: order.ClientUserID, Role: actor.RolePro}, order.ID)
	if !errors.Is(err, domain.ErrClientRoleRequired) {
		t.Fatalf("expected ErrClientRoleRequired, got %v", err)
	}

	_, err = f.svc.CreatePreauthForOrder(context.Background(),
		actor.Actor{UserID: f.node.Generate(), Role: actor.RoleClient}, order.ID)
	if !errors.Is(err, domain.ErrNotOrderOwner) {
		t.Fatalf("expected ErrNotOrderOwner, got %v", err)
	}

	_, err = f.svc.CreatePreauthForOrder(context.Background(), clientActor(order), f.node.Generate())
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	inProgress := f.insertOrder(t, &orderdomain.Order{
		ClientUserID: f.node.Generate(),
		Status:       orderdomain.StatusInProgress,
		Category:     "plumbing",
		PricingMode:  orderdomain.PricingModeHourly,
		Currency:     "UYU",
	})
	_, err = f.svc.CreatePreauthForOrder(context.Background(), clientActor(inProgress), inProgress.ID)
	if !errors.Is(err, domain.ErrOrderNotPayable) {
		t.Fatalf("expected ErrOrderNotPayable, got %v", err)
	}
}

func authorizedWebhookFixture(t *testing.T) (*fixture, *orderdomain.Order, *domain.Payment) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	reference := "ref_1"
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusRequiresAction,
		AmountEstimated:   20000,
		ProviderReference: &reference,
	})
	return f, order, payment
}

func TestWebhookAuthorizesAndSchedulesOrder(t *testing.T) {
	f, order, payment := authorizedWebhookFixture(t)
	authorized := int64(20000)
	f.adapter.fetchResult = &domain.ProviderStatus{
		Status:           domain.StatusAuthorized,
		AmountAuthorized: &authorized,
	}

	err := f.svc.HandleProviderWebhook(context.Background(), &domain.WebhookEvent{
		Provider:          "fakepay",
		ProviderReference: "ref_1",
		Type:              "payment.authorized",
		RawPayload:        []byte(`{"id":"ref_1"}`),
	})
	if err != nil {
		t.Fatalf("HandleProviderWebhook: %v", err)
	}

	if f.adapter.fetchCalls != 1 {
		t.Fatalf("expected status re-poll, got %d fetch calls", f.adapter.fetchCalls)
	}
	reloaded := f.reloadPayment(t, payment.ID)
	if reloaded.Status != domain.StatusAuthorized {
		t.Fatalf("expected authorized, got %s", reloaded.Status)
	}
	if reloaded.AmountAuthorized == nil || *reloaded.AmountAuthorized != 20000 {
		t.Fatalf("expected authorized amount 20000, got %v", reloaded.AmountAuthorized)
	}
	if got := f.orderStatus(t, order.ID); got != orderdomain.StatusScheduled {
		t.Fatalf("expected order scheduled, got %s", got)
	}
	if f.eventCount(t, payment.ID) != 1 {
		t.Fatalf("expected 1 event row, got %d", f.eventCount(t, payment.ID))
	}
}

func TestWebhookUnknownReferenceIsSwallowed(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleProviderWebhook(context.Background(), &domain.WebhookEvent{
		Provider:          "fakepay",
		ProviderReference: "ref_unknown",
		Type:              "payment.authorized",
		RawPayload:        []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("unknown reference must be swallowed, got %v", err)
	}
	if f.adapter.fetchCalls != 0 {
		t.Fatalf("no re-poll expected, got %d", f.adapter.fetchCalls)
	}
}

func TestWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	f, order, payment := authorizedWebhookFixture(t)
	authorized := int64(20000)
	f.adapter.fetchResult = &domain.ProviderStatus{
		Status:           domain.StatusAuthorized,
		AmountAuthorized: &authorized,
	}
	event := &domain.WebhookEvent{
		Provider:          "fakepay",
		ProviderReference: "ref_1",
		Type:              "payment.authorized",
		RawPayload:        []byte(`{"id":"ref_1"}`),
	}

	for i := 0; i < 2; i++ {
		if err := f.svc.HandleProviderWebhook(context.Background(), event); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if f.eventCount(t, payment.ID) != 2 {
		t.Fatalf("duplicate deliveries must both be stored, got %d rows", f.eventCount(t, payment.ID))
	}
	if got := f.reloadPayment(t, payment.ID).Status; got != domain.StatusAuthorized {
		t.Fatalf("expected authorized after re-delivery, got %s", got)
	}
	if got := f.orderStatus(t, order.ID); got != orderdomain.StatusScheduled {
		t.Fatalf("expected order scheduled, got %s", got)
	}
}

func TestWebhookIgnoresBackwardTransition(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	reference := "ref_1"
	captured := int64(20000)
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusCaptured,
		AmountEstimated:   20000,
		AmountCaptured:    &captured,
		ProviderReference: &reference,
	})
	authorized := int64(20000)
	f.adapter.fetchResult = &domain.ProviderStatus{
		Status:           domain.StatusAuthorized,
		AmountAuthorized: &authorized,
	}

	err := f.svc.HandleProviderWebhook(context.Background(), &domain.WebhookEvent{
		Provider:          "fakepay",
		ProviderReference: "ref_1",
		Type:              "payment.authorized",
		RawPayload:        []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("backward transition must be ignored silently, got %v", err)
	}
	if got := f.reloadPayment(t, payment.ID).Status; got != domain.StatusCaptured {
		t.Fatalf("status must stay captured, got %s", got)
	}
}

func TestWebhookFailureLeavesOrderUntouched(t *testing.T) {
	f, order, payment := authorizedWebhookFixture(t)
	f.adapter.fetchResult = &domain.ProviderStatus{Status: domain.StatusFailed}

	err := f.svc.HandleProviderWebhook(context.Background(), &domain.WebhookEvent{
		Provider:          "fakepay",
		ProviderReference: "ref_1",
		Type:              "payment.failed",
		RawPayload:        []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("HandleProviderWebhook: %v", err)
	}

	if got := f.reloadPayment(t, payment.ID).Status; got != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if got := f.orderStatus(t, order.ID); got != orderdomain.StatusAccepted {
		t.Fatalf("failed payment must not touch the order, got %s", got)
	}
}

func TestWebhookPartialCaptureUpdatesAmounts(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	reference := "ref_1"
	authorized := int64(20000)
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusCaptured,
		AmountEstimated:   20000,
		AmountAuthorized:  &authorized,
		ProviderReference: &reference,
	})
	capturedNow := int64(10000)
	f.adapter.fetchResult = &domain.ProviderStatus{
		Status:           domain.StatusCaptured,
		AmountAuthorized: &authorized,
		AmountCaptured:   &capturedNow,
	}

	err := f.svc.HandleProviderWebhook(context.Background(), &domain.WebhookEvent{
		Provider:          "fakepay",
		ProviderReference: "ref_1",
		Type:              "payment.updated",
		RawPayload:        []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("HandleProviderWebhook: %v", err)
	}

	reloaded := f.reloadPayment(t, payment.ID)
	if reloaded.AmountCaptured == nil || *reloaded.AmountCaptured != 10000 {
		t.Fatalf("same-status amount update must persist, got %v", reloaded.AmountCaptured)
	}
}

func TestCaptureFullAmountByDefault(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	reference := "ref_1"
	authorized := int64(20000)
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusAuthorized,
		AmountEstimated:   20000,
		AmountAuthorized:  &authorized,
		ProviderReference: &reference,
	})

	resp, err := f.svc.CapturePayment(context.Background(), adminActor(f.node), payment.ID, nil)
	if err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if resp.AmountCaptured != 20000 {
		t.Fatalf("expected full capture 20000, got %d", resp.AmountCaptured)
	}
	if got := f.reloadPayment(t, payment.ID).Status; got != domain.StatusCaptured {
		t.Fatalf("expected captured, got %s", got)
	}
}

func TestCapturePartialAmount(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	reference := "ref_1"
	authorized := int64(20000)
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusAuthorized,
		AmountEstimated:   20000,
		AmountAuthorized:  &authorized,
		ProviderReference: &reference,
	})

	partial := int64(10000)
	resp, err := f.svc.CapturePayment(context.Background(), adminActor(f.node), payment.ID, &partial)
	if err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if resp.AmountCaptured != 10000 {
		t.Fatalf("expected partial capture 10000, got %d", resp.AmountCaptured)
	}

	reloaded := f.reloadPayment(t, payment.ID)
	if reloaded.AmountCaptured == nil || *reloaded.AmountCaptured != 10000 {
		t.Fatalf("expected stored capture 10000, got %v", reloaded.AmountCaptured)
	}
}

func TestCaptureGates(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	admin := adminActor(f.node)

	_, err := f.svc.CapturePayment(context.Background(), clientActor(order), f.node.Generate(), nil)
	if !errors.Is(err, domain.ErrAdminRoleRequired) {
		t.Fatalf("expected ErrAdminRoleRequired, got %v", err)
	}

	_, err = f.svc.CapturePayment(context.Background(), admin, f.node.Generate(), nil)
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}

	created := f.insertPayment(t, &domain.Payment{
		OrderID:         order.ID,
		ClientUserID:    order.ClientUserID,
		Status:          domain.StatusCreated,
		AmountEstimated: 20000,
	})
	_, err = f.svc.CapturePayment(context.Background(), admin, created.ID, nil)
	if !errors.Is(err, domain.ErrPaymentNotAuthorized) {
		t.Fatalf("expected ErrPaymentNotAuthorized, got %v", err)
	}

	other := hourlyOrder(f, t)
	noRef := f.insertPayment(t, &domain.Payment{
		OrderID:         other.ID,
		ClientUserID:    other.ClientUserID,
		Status:          domain.StatusAuthorized,
		AmountEstimated: 20000,
	})
	_, err = f.svc.CapturePayment(context.Background(), admin, noRef.ID, nil)
	if !errors.Is(err, domain.ErrMissingProviderReference) {
		t.Fatalf("expected ErrMissingProviderReference, got %v", err)
	}

	third := hourlyOrder(f, t)
	reference := "ref_x"
	noAmount := f.insertPayment(t, &domain.Payment{
		OrderID:           third.ID,
		ClientUserID:      third.ClientUserID,
		Status:            domain.StatusAuthorized,
		AmountEstimated:   20000,
		ProviderReference: &reference,
	})
	_, err = f.svc.CapturePayment(context.Background(), admin, noAmount.ID, nil)
	if !errors.Is(err, domain.ErrNoAuthorizedAmount) {
		t.Fatalf("expected ErrNoAuthorizedAmount, got %v", err)
	}
}

func TestSyncPersistsAndAudits(t *testing.T) {
	f, order, payment := authorizedWebhookFixture(t)
	authorized := int64(20000)
	f.adapter.fetchResult = &domain.ProviderStatus{
		Status:           domain.StatusAuthorized,
		AmountAuthorized: &authorized,
	}

	if err := f.svc.SyncPaymentStatus(context.Background(), adminActor(f.node), payment.ID); err != nil {
		t.Fatalf("SyncPaymentStatus: %v", err)
	}

	if got := f.reloadPayment(t, payment.ID).Status; got != domain.StatusAuthorized {
		t.Fatalf("expected authorized, got %s", got)
	}
	if got := f.orderStatus(t, order.ID); got != orderdomain.StatusScheduled {
		t.Fatalf("sync must apply the same order coupling, got %s", got)
	}

	var auditRows int
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM audit_logs WHERE action = ? AND target_id = ?`,
		"payment.sync", payment.ID.String(),
	).Scan(&auditRows).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if auditRows != 1 {
		t.Fatalf("expected 1 audit row, got %d", auditRows)
	}
}

func TestSyncRaisesOnInvalidTransition(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	reference := "ref_1"
	captured := int64(20000)
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusCaptured,
		AmountEstimated:   20000,
		AmountCaptured:    &captured,
		ProviderReference: &reference,
	})
	authorized := int64(20000)
	f.adapter.fetchResult = &domain.ProviderStatus{
		Status:           domain.StatusAuthorized,
		AmountAuthorized: &authorized,
	}

	err := f.svc.SyncPaymentStatus(context.Background(), adminActor(f.node), payment.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("manual sync must surface invalid transitions, got %v", err)
	}
	if got := f.reloadPayment(t, payment.ID).Status; got != domain.StatusCaptured {
		t.Fatalf("status must stay captured, got %s", got)
	}
}

func TestRefundFromCapturedOnly(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	admin := adminActor(f.node)
	reference := "ref_1"
	captured := int64(20000)
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusCaptured,
		AmountEstimated:   20000,
		AmountCaptured:    &captured,
		ProviderReference: &reference,
	})

	if err := f.svc.RefundPayment(context.Background(), admin, payment.ID, nil); err != nil {
		t.Fatalf("RefundPayment: %v", err)
	}
	if f.adapter.refundCalls != 1 {
		t.Fatalf("expected 1 refund call, got %d", f.adapter.refundCalls)
	}
	if got := f.reloadPayment(t, payment.ID).Status; got != domain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", got)
	}

	other := hourlyOrder(f, t)
	notCaptured := f.insertPayment(t, &domain.Payment{
		OrderID:           other.ID,
		ClientUserID:      other.ClientUserID,
		Status:            domain.StatusAuthorized,
		AmountEstimated:   20000,
		ProviderReference: &reference,
	})
	if err := f.svc.RefundPayment(context.Background(), admin, notCaptured.ID, nil); !errors.Is(err, domain.ErrPaymentNotCaptured) {
		t.Fatalf("expected ErrPaymentNotCaptured, got %v", err)
	}
}

func TestAdminListPaymentsPaginates(t *testing.T) {
	f := newFixture(t)
	admin := adminActor(f.node)
	for i := 0; i < 3; i++ {
		order := hourlyOrder(f, t)
		f.insertPayment(t, &domain.Payment{
			OrderID:         order.ID,
			ClientUserID:    order.ClientUserID,
			Status:          domain.StatusCreated,
			AmountEstimated: 1000,
		})
		f.clock.Advance(time.Second)
	}

	req := domain.ListPaymentsRequest{}
	req.PageSize = 2
	page, err := f.svc.AdminListPayments(context.Background(), admin, req)
	if err != nil {
		t.Fatalf("AdminListPayments: %v", err)
	}
	if len(page.Payments) != 2 || !page.HasMore || page.NextPageToken == "" {
		t.Fatalf("expected first page of 2 with more, got %d/%v", len(page.Payments), page.HasMore)
	}

	req.PageToken = page.NextPageToken
	rest, err := f.svc.AdminListPayments(context.Background(), admin, req)
	if err != nil {
		t.Fatalf("AdminListPayments page 2: %v", err)
	}
	if len(rest.Payments) != 1 || rest.HasMore {
		t.Fatalf("expected final page of 1, got %d/%v", len(rest.Payments), rest.HasMore)
	}

	if _, err := f.svc.AdminListPayments(context.Background(), adminActor(f.node), domain.ListPaymentsRequest{
		Pagination: pageToken("not-base64!"),
	}); !errors.Is(err, domain.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestAdminGetPaymentIncludesEventHistory(t *testing.T) {
	f := newFixture(t)
	order := hourlyOrder(f, t)
	reference := "ref_1"
	payment := f.insertPayment(t, &domain.Payment{
		OrderID:           order.ID,
		ClientUserID:      order.ClientUserID,
		Status:            domain.StatusRequiresAction,
		AmountEstimated:   20000,
		ProviderReference: &reference,
	})
	authorized := int64(20000)
	f.adapter.fetchResult = &domain.ProviderStatus{Status: domain.StatusAuthorized, AmountAuthorized: &authorized}
	for _, eventType := range []string{"payment.created", "payment.authorized"} {
		if err := f.svc.HandleProviderWebhook(context.Background(), &domain.WebhookEvent{
			Provider:          "fakepay",
			ProviderReference: "ref_1",
			Type:              eventType,
			RawPayload:        []byte(`{}`),
		}); err != nil {
			t.Fatalf("webhook %s: %v", eventType, err)
		}
		f.clock.Advance(time.Second)
	}

	detail, err := f.svc.AdminGetPayment(context.Background(), adminActor(f.node), payment.ID)
	if err != nil {
		t.Fatalf("AdminGetPayment: %v", err)
	}
	if len(detail.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(detail.Events))
	}
	if detail.Events[0].EventType != "payment.created" {
		t.Fatalf("events must be oldest first, got %s", detail.Events[0].EventType)
	}

	if _, err := f.svc.AdminGetPayment(context.Background(), clientActor(order), payment.ID); !errors.Is(err, domain.ErrAdminRoleRequired) {
		t.Fatalf("expected ErrAdminRoleRequired, got %v", err)
	}
}
