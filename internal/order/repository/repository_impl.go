package repository

import (
	"context"
	"time"

	"github.com/UrrutyLabs/encuentraya-payments/internal/order/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, client_user_id, pro_profile_id, status, category, pricing_mode,
			currency, hourly_rate_snapshot_amount, estimated_hours,
			quoted_amount, quote_accepted_at, total_amount, created_at, updated_at
		 FROM orders
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

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, updated_at = ?
		 WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}
