package repository

import (
	"context"
	"strings"

	"github.com/UrrutyLabs/encuentraya-payments/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, order_id, client_user_id, pro_profile_id, provider, type, status,
	currency, amount_estimated, amount_authorized, amount_captured,
	provider_reference, checkout_url, idempotency_key, created_at, updated_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, order_id, client_user_id, pro_profile_id, provider, type, status,
			currency, amount_estimated, amount_authorized, amount_captured,
			provider_reference, checkout_url, idempotency_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrderID,
		payment.ClientUserID,
		payment.ProProfileID,
		payment.Provider,
		payment.Type,
		payment.Status,
		payment.Currency,
		payment.AmountEstimated,
		payment.AmountAuthorized,
		payment.AmountCaptured,
		payment.ProviderReference,
		payment.CheckoutURL,
		payment.IdempotencyKey,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE order_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByProviderReference(ctx context.Context, db *gorm.DB, provider domain.Provider, reference string) (*domain.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE provider = ? AND provider_reference = ?
		 LIMIT 1`,
		provider,
		reference,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	stmt := db.WithContext(ctx).Model(&domain.Payment{})

	if provider := strings.TrimSpace(filter.Provider); provider != "" {
		stmt = stmt.Where("provider = ?", provider)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if filter.ClientUserID != 0 {
		stmt = stmt.Where("client_user_id = ?", filter.ClientUserID)
	}
	if filter.Cursor != nil {
		if createdAt, ok := filter.Cursor.CreatedAtTime(); ok {
			stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
				createdAt,
				createdAt,
				filter.Cursor.ID,
			)
		}
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// UpdateStatusAndAmounts is the single mutation path for payment rows.
// COALESCE keeps stored references and amounts when the patch omits them,
// which is how "only overwrite what the provider furnished" is enforced.
func (r *repo) UpdateStatusAndAmounts(ctx context.Context, db *gorm.DB, id snowflake.ID, patch domain.StatusPatch) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?,
			 provider_reference = COALESCE(?, provider_reference),
			 checkout_url = COALESCE(?, checkout_url),
			 amount_authorized = COALESCE(?, amount_authorized),
			 amount_captured = COALESCE(?, amount_captured),
			 updated_at = ?
		 WHERE id = ?`,
		patch.Status,
		patch.ProviderReference,
		patch.CheckoutURL,
		patch.AmountAuthorized,
		patch.AmountCaptured,
		patch.UpdatedAt,
		id,
	).Error
}

func (r *repo) FindPendingByClientUserID(ctx context.Context, db *gorm.DB, clientUserID snowflake.ID) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE client_user_id = ? AND status IN (?, ?, ?)
		 ORDER BY created_at DESC`,
		clientUserID,
		domain.StatusCreated,
		domain.StatusRequiresAction,
		domain.StatusAuthorized,
	).Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.PaymentEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, payment_id, provider, event_type, raw, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.PaymentID,
		event.Provider,
		event.EventType,
		event.Raw,
		event.CreatedAt,
	).Error
}

func (r *repo) ListEventsByPaymentID(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*domain.PaymentEvent, error) {
	var events []*domain.PaymentEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, provider, event_type, raw, created_at
		 FROM payment_events
		 WHERE payment_id = ?
		 ORDER BY created_at ASC, id ASC`,
		paymentID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
