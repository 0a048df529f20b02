package repository

import (
	"context"
	"errors"

	"referral-hunt/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePhone is returned when a user with the same phone number already exists.
	ErrDuplicatePhone = errors.New("phone number already registered")
	// ErrDuplicateReferralCode is returned when the referral code is already taken.
	ErrDuplicateReferralCode = errors.New("referral code already taken")
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByPhone(ctx context.Context, phoneNumber string) (*domain.User, error)
	GetByReferralCode(ctx context.Context, code string) (*domain.User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
}
