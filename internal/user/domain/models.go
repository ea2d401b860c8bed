package domain

import (
	"strings"
	"time"

	"github.com/smallbiznis/orgsync/internal/identity"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusActive  Status = "ACTIVE"
	StatusDeleted Status = "DELETED"
)

func ParseStatus(raw string) (Status, error) {
	switch value := Status(strings.ToUpper(strings.TrimSpace(raw))); value {
	case StatusPending, StatusActive, StatusDeleted:
		return value, nil
	default:
		return "", ErrInvalidStatus
	}
}

// User is a directory entry. Deletion is a status change.
type User struct {
	ID             string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email          string        `gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email" json:"email"`
	FullName       string        `gorm:"type:text;not null" json:"full_name"`
	NormalizedName string        `gorm:"type:text;not null;index:ix_users_normalized_name" json:"normalized_name"`
	Role           identity.Role `gorm:"type:varchar(16);not null" json:"role"`
	Status         Status        `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
	CreatedBy      string        `gorm:"type:varchar(36);not null" json:"created_by"`
	UpdatedBy      string        `gorm:"type:varchar(36);not null" json:"updated_by"`
}

func (User) TableName() string { return "users" }
