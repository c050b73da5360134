package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var ErrProfileNotFound = errors.New("profile_not_found")

// ClientProfile is the payer metadata passed to processors to improve
// approval rates. Lookups are best-effort; callers swallow failures.
type ClientProfile struct {
	UserID   snowflake.ID `json:"user_id"`
	Email    string       `json:"email"`
	FullName string       `json:"full_name"`
}

type Service interface {
	GetProfile(ctx context.Context, userID snowflake.ID) (*ClientProfile, error)
}
