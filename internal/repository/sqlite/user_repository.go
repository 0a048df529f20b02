package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"referral-hunt/internal/domain"
	"referral-hunt/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL DEFAULT '',
	phone_number TEXT NOT NULL UNIQUE,
	referral_code TEXT NOT NULL UNIQUE,
	referred_by TEXT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by);
`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (int64, error) {
	user.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (name, phone_number, referral_code, referred_by, created_at)
VALUES (?, ?, ?, ?, ?)`,
		user.Name,
		user.PhoneNumber,
		user.ReferralCode,
		nullString(user.ReferredBy),
		user.CreatedAt,
	)
	if err != nil {
		return 0, classifyInsertError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("user last insert id: %w", err)
	}
	user.ID = id
	return id, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phoneNumber string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, phone_number, referral_code, referred_by, created_at
FROM users
WHERE phone_number = ?`,
		phoneNumber,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, phone_number, referral_code, referred_by, created_at
FROM users
WHERE referral_code = ?`,
		code,
	)
	return scanUser(row)
}

func (r *UserRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE referral_code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check referral code: %w", err)
	}
	return exists == 1, nil
}

func classifyInsertError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") {
		switch {
		case strings.Contains(msg, "users.phone_number"):
			return fmt.Errorf("insert user: %w", repository.ErrDuplicatePhone)
		case strings.Contains(msg, "users.referral_code"):
			return fmt.Errorf("insert user: %w", repository.ErrDuplicateReferralCode)
		}
	}
	return fmt.Errorf("insert user: %w", err)
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user       domain.User
		referredBy sql.NullString
		createdAt  time.Time
	)
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.PhoneNumber,
		&user.ReferralCode,
		&referredBy,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if referredBy.Valid {
		v := referredBy.String
		user.ReferredBy = &v
	}
	user.CreatedAt = createdAt.UTC()
	return &user, nil
}

func nullString(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
