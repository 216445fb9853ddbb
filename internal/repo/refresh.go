package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/commandlinecommandos/campus-marketplace/internal/models"
)

var (
	ErrDuplicateToken = errors.New("refresh token already stored")
	ErrTokenNotFound  = errors.New("refresh token not found")
	ErrTokenRevoked   = errors.New("refresh token revoked")
)

// StoreRefresh persists a new ACTIVE ledger record for the token.
func (r *GormRepo) StoreRefresh(ctx context.Context, token, jti string, userID uuid.UUID, deviceInfo string, issuedAt, expiresAt time.Time) error {
	record := models.RefreshToken{
		TokenHash:  sha256Hex(token),
		JTI:        jti,
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IssuedAt:   issuedAt.Unix(),
		ExpiresAt:  expiresAt.Unix(),
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.RefreshToken{}).Where("token_hash = ?", record.TokenHash).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateToken
		}
		if err := tx.Create(&record).Error; err != nil {
			// Backstop for the window between the count and the insert: a
			// concurrent store of the same token loses on the unique index.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateToken
			}
			return err
		}
		return nil
	})
}

// FindActiveRefresh returns the ledger record for a non-revoked token. The
// record's own expiry is the caller's to check: the ledger never deletes on
// read, so an expired-but-unpruned record stays visible and auditable.
func (r *GormRepo) FindActiveRefresh(ctx context.Context, token string) (*models.RefreshToken, error) {
	var record models.RefreshToken
	err := r.DB.WithContext(ctx).Where("token_hash = ?", sha256Hex(token)).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if record.Revoked {
		return nil, ErrTokenRevoked
	}
	return &record, nil
}

// RevokeRefresh flips revoked to true. Revoking an unknown or already-revoked
// token is not an error; the target state is a single terminal flag, so
// concurrent revokes of the same token cannot conflict.
func (r *GormRepo) RevokeRefresh(ctx context.Context, token string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", sha256Hex(token)).
		Update("revoked", true).Error
}

// RevokeAllRefresh revokes every active token for the user in one statement.
// Used for "log out everywhere" and forced de-authorization.
func (r *GormRepo) RevokeAllRefresh(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	return result.RowsAffected, result.Error
}

// DeleteRefresh removes a single record; the refresh path uses it to lazily
// clean up tokens found expired.
func (r *GormRepo) DeleteRefresh(ctx context.Context, token string) error {
	return r.DB.WithContext(ctx).
		Where("token_hash = ?", sha256Hex(token)).
		Delete(&models.RefreshToken{}).Error
}

// PruneExpiredRefresh is housekeeping, not correctness: every read path
// checks expiry explicitly, pruning just keeps the table small.
func (r *GormRepo) PruneExpiredRefresh(ctx context.Context, now time.Time) (int64, error) {
	result := r.DB.WithContext(ctx).
		Where("expires_at < ?", now.Unix()).
		Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}
