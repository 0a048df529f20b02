package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"referral-hunt/internal/domain"
	"referral-hunt/internal/repository"
)

const uniqueViolation = "23505"

type userRow struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	PhoneNumber  string         `db:"phone_number"`
	ReferralCode string         `db:"referral_code"`
	ReferredBy   sql.NullString `db:"referred_by"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r userRow) toDomain() *domain.User {
	user := &domain.User{
		ID:           r.ID,
		Name:         r.Name,
		PhoneNumber:  r.PhoneNumber,
		ReferralCode: r.ReferralCode,
		CreatedAt:    r.CreatedAt.UTC(),
	}
	if r.ReferredBy.Valid {
		v := r.ReferredBy.String
		user.ReferredBy = &v
	}
	return user
}

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

// Init brings the schema up to date.
func (r *UserRepository) Init(ctx context.Context) error {
	return Migrate(ctx, r.db.DB)
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	var referredBy any
	if user.ReferredBy != nil && *user.ReferredBy != "" {
		referredBy = *user.ReferredBy
	}

	err := r.db.QueryRowxContext(ctx, `
INSERT INTO users (name, phone_number, referral_code, referred_by)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`,
		user.Name,
		user.PhoneNumber,
		user.ReferralCode,
		referredBy,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			switch pgErr.ConstraintName {
			case "users_phone_number_key":
				return 0, fmt.Errorf("db error: %w", repository.ErrDuplicatePhone)
			case "users_referral_code_key":
				return 0, fmt.Errorf("db error: %w", repository.ErrDuplicateReferralCode)
			}
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user.ID, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	return r.getOne(ctx, `
SELECT id, name, phone_number, referral_code, referred_by, created_at
FROM users
WHERE phone_number = $1`, phoneNumber)
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	return r.getOne(ctx, `
SELECT id, name, phone_number, referral_code, referred_by, created_at
FROM users
WHERE referral_code = $1`, code)
}

func (r *UserRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE referral_code = $1)`, code); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return row.toDomain(), nil
}
