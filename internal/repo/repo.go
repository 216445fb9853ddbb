package repo

import (
	"crypto/sha256"
	"encoding/hex"

	"gorm.io/gorm"
)

// GormRepo is the durable side of the core: the identity store reads and the
// refresh token ledger.
type GormRepo struct {
	DB *gorm.DB
}

// sha256Hex digests a refresh token string for storage; the raw token never
// reaches the database.
func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
