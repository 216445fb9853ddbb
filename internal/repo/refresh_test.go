package repo

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/commandlinecommandos/campus-marketplace/internal/config"
	"github.com/commandlinecommandos/campus-marketplace/internal/models"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return &GormRepo{DB: db}
}

func storeToken(t *testing.T, r *GormRepo, token string, userID uuid.UUID, expiresAt time.Time) {
	t.Helper()
	err := r.StoreRefresh(context.Background(), token, uuid.NewString(), userID, "test-device", time.Now(), expiresAt)
	require.NoError(t, err)
}

func TestStoreRefresh_DuplicateToken(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	userID := uuid.New()

	storeToken(t, r, "token-1", userID, time.Now().Add(time.Hour))

	err := r.StoreRefresh(ctx, "token-1", uuid.NewString(), userID, "other-device", time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

func TestStoreRefresh_UniqueIndexBackstop(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	jti := uuid.NewString()

	// A different token string sails past the hash count check but still
	// collides on a unique index at insert time; the driver error must come
	// back as the duplicate sentinel, not leak raw.
	err := r.StoreRefresh(ctx, "token-1", jti, uuid.New(), "d1", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	err = r.StoreRefresh(ctx, "token-2", jti, uuid.New(), "d2", time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

func TestFindActiveRefresh(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	userID := uuid.New()
	exp := time.Now().Add(time.Hour)

	storeToken(t, r, "token-1", userID, exp)

	record, err := r.FindActiveRefresh(ctx, "token-1")
	require.NoError(t, err)
	assert.Equal(t, userID, record.UserID)
	assert.Equal(t, "test-device", record.DeviceInfo)
	assert.Equal(t, exp.Unix(), record.ExpiresAt)
	assert.False(t, record.Revoked)

	_, err = r.FindActiveRefresh(ctx, "never-stored")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestFindActiveRefresh_ExpiredRecordStaysVisible(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	// The ledger does not auto-delete on expiry; read paths check expiry
	// themselves.
	storeToken(t, r, "token-1", uuid.New(), time.Now().Add(-time.Hour))

	record, err := r.FindActiveRefresh(ctx, "token-1")
	require.NoError(t, err)
	assert.Less(t, record.ExpiresAt, time.Now().Unix())
}

func TestRevokeRefresh_Idempotent(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	storeToken(t, r, "token-1", uuid.New(), time.Now().Add(time.Hour))

	require.NoError(t, r.RevokeRefresh(ctx, "token-1"))
	_, err := r.FindActiveRefresh(ctx, "token-1")
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Second revoke and revoking a token that never existed both succeed.
	assert.NoError(t, r.RevokeRefresh(ctx, "token-1"))
	assert.NoError(t, r.RevokeRefresh(ctx, "never-stored"))

	_, err = r.FindActiveRefresh(ctx, "token-1")
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRevokeAllRefresh(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	storeToken(t, r, "alice-1", alice, time.Now().Add(time.Hour))
	storeToken(t, r, "alice-2", alice, time.Now().Add(time.Hour))
	storeToken(t, r, "bob-1", bob, time.Now().Add(time.Hour))

	revoked, err := r.RevokeAllRefresh(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	_, err = r.FindActiveRefresh(ctx, "alice-1")
	assert.ErrorIs(t, err, ErrTokenRevoked)
	_, err = r.FindActiveRefresh(ctx, "alice-2")
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = r.FindActiveRefresh(ctx, "bob-1")
	assert.NoError(t, err)

	// Nothing left to revoke for alice.
	revoked, err = r.RevokeAllRefresh(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, revoked)
}

func TestDeleteRefresh(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	storeToken(t, r, "token-1", uuid.New(), time.Now().Add(time.Hour))
	require.NoError(t, r.DeleteRefresh(ctx, "token-1"))

	_, err := r.FindActiveRefresh(ctx, "token-1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestPruneExpiredRefresh(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	storeToken(t, r, "expired-1", uuid.New(), now.Add(-2*time.Hour))
	storeToken(t, r, "expired-2", uuid.New(), now.Add(-time.Minute))
	storeToken(t, r, "live-1", uuid.New(), now.Add(time.Hour))

	pruned, err := r.PruneExpiredRefresh(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	_, err = r.FindActiveRefresh(ctx, "expired-1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = r.FindActiveRefresh(ctx, "live-1")
	assert.NoError(t, err)
}

func TestCreateUser_Conflicts(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	first := &models.User{Username: "alice", Email: "alice@sjsu.edu", PasswordHash: "x", Active: true}
	require.NoError(t, r.CreateUser(ctx, first, []string{models.RoleBuyer, models.RoleSeller}))

	sameName := &models.User{Username: "alice", Email: "other@sjsu.edu", PasswordHash: "x", Active: true}
	assert.ErrorIs(t, r.CreateUser(ctx, sameName, nil), ErrUserAlreadyExist)

	sameEmail := &models.User{Username: "alice2", Email: "alice@sjsu.edu", PasswordHash: "x", Active: true}
	assert.ErrorIs(t, r.CreateUser(ctx, sameEmail, nil), ErrEmailAlreadyExist)

	stored, err := r.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{models.RoleBuyer, models.RoleSeller}, stored.RoleNames())
}
