package service

import (
	"context"
	"strings"

	"github.com/UrrutyLabs/encuentraya-payments/internal/profile/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("profile.service"),
	}
}

func (s *Service) GetProfile(ctx context.Context, userID snowflake.ID) (*domain.ClientProfile, error) {
	var row struct {
		UserID   snowflake.ID `gorm:"column:user_id"`
		Email    string       `gorm:"column:email"`
		FullName string       `gorm:"column:full_name"`
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT user_id, email, full_name
		 FROM client_profiles
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.UserID == 0 {
		return nil, domain.ErrProfileNotFound
	}
	return &domain.ClientProfile{
		UserID:   row.UserID,
		Email:    strings.TrimSpace(row.Email),
		FullName: strings.TrimSpace(row.FullName),
	}, nil
}
