package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("order_not_found")

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) error
}
