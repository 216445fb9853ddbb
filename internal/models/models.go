package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleBuyer  = "BUYER"
	RoleSeller = "SELLER"
	RoleAdmin  = "ADMIN"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"   json:"id"`
	Username     string    `gorm:"uniqueIndex;not null"   json:"username"`
	Email        string    `gorm:"uniqueIndex;not null"   json:"email"`
	PasswordHash string    `gorm:"not null"               json:"-"`
	Active       bool      `gorm:"not null;default:true"  json:"active"`
	Roles        []Role    `gorm:"many2many:user_roles"   json:"roles"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RoleNames flattens the role rows into the tag set carried in token claims.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

type Role struct {
	ID   uint   `gorm:"primaryKey"          json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// RefreshToken is the ledger record for one issued refresh token. The raw
// token string never hits the database, only its sha256 hex digest. Revoked
// flips false -> true exactly once and never back.
type RefreshToken struct {
	ID         uint      `gorm:"primaryKey"           json:"id"`
	TokenHash  string    `gorm:"uniqueIndex;not null" json:"-"`
	JTI        string    `gorm:"uniqueIndex;not null" json:"jti"`
	UserID     uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	DeviceInfo string    `json:"device_info"`
	IssuedAt   int64     `gorm:"not null"             json:"issued_at"`
	ExpiresAt  int64     `gorm:"not null"             json:"expires_at"`
	Revoked    bool      `gorm:"not null;default:false" json:"revoked"`
}
