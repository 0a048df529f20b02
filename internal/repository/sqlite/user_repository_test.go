package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referral-hunt/internal/domain"
	"referral-hunt/internal/repository"
)

func newTestRepo(t *testing.T) repository.UserRepository {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))
	return repo
}

func strPtr(s string) *string { return &s }

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	referrer := &domain.User{Name: "Ann", PhoneNumber: "+1555", ReferralCode: "AbC123"}
	id, err := repo.Create(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, id, referrer.ID)
	assert.False(t, referrer.CreatedAt.IsZero())

	referred := &domain.User{Name: "Bob", PhoneNumber: "+1666", ReferralCode: "XyZ789", ReferredBy: strPtr("AbC123")}
	_, err = repo.Create(ctx, referred)
	require.NoError(t, err)

	got, err := repo.GetByPhone(ctx, "+1666")
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Name)
	assert.Equal(t, "XyZ789", got.ReferralCode)
	require.NotNil(t, got.ReferredBy)
	assert.Equal(t, "AbC123", *got.ReferredBy)

	got, err = repo.GetByReferralCode(ctx, "AbC123")
	require.NoError(t, err)
	assert.Equal(t, "+1555", got.PhoneNumber)
	assert.Nil(t, got.ReferredBy)
	assert.False(t, got.WasReferred())
}

func TestUserRepository_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByPhone(context.Background(), "+1000")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.GetByReferralCode(context.Background(), "nope00")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUserRepository_ReferralCodeExists(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Create(ctx, &domain.User{Name: "Ann", PhoneNumber: "+1555", ReferralCode: "AbC123"})
	require.NoError(t, err)

	ok, err := repo.ReferralCodeExists(ctx, "AbC123")
	require.NoError(t, err)
	assert.True(t, ok)

	// codes are case sensitive
	ok, err = repo.ReferralCodeExists(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserRepository_UniqueConstraints(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Create(ctx, &domain.User{Name: "Ann", PhoneNumber: "+1555", ReferralCode: "AbC123"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &domain.User{Name: "Ann again", PhoneNumber: "+1555", ReferralCode: "Other1"})
	assert.ErrorIs(t, err, repository.ErrDuplicatePhone)

	_, err = repo.Create(ctx, &domain.User{Name: "Bob", PhoneNumber: "+1666", ReferralCode: "AbC123"})
	assert.ErrorIs(t, err, repository.ErrDuplicateReferralCode)
}

func TestUserRepository_EmptyReferredByStoredAsNull(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Create(ctx, &domain.User{Name: "Ann", PhoneNumber: "+1555", ReferralCode: "AbC123", ReferredBy: strPtr("")})
	require.NoError(t, err)

	got, err := repo.GetByPhone(ctx, "+1555")
	require.NoError(t, err)
	assert.Nil(t, got.ReferredBy)
}
