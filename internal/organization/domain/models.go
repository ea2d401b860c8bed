// Package domain contains persistence models for the organization service.
package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusDeleted  Status = "DELETED"
)

func ParseStatus(raw string) (Status, error) {
	switch value := Status(strings.ToUpper(strings.TrimSpace(raw))); value {
	case StatusActive, StatusInactive, StatusDeleted:
		return value, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Organization is a registered company. Deletion is a status change.
type Organization struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string    `gorm:"type:text;not null" json:"name"`
	NormalizedName string    `gorm:"type:text;not null;index:ix_organizations_normalized_name" json:"normalized_name"`
	Slug           string    `gorm:"type:varchar(160);not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	RegistryNumber string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_organizations_registry_number" json:"registry_number"`
	ContactEmail   string    `gorm:"type:varchar(320)" json:"contact_email,omitempty"`
	CompanySize    int       `gorm:"not null;default:0" json:"company_size"`
	YearFounded    int       `gorm:"not null;default:0;index:ix_organizations_year_founded" json:"year_founded"`
	Status         Status    `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
	CreatedBy      string    `gorm:"type:varchar(36);not null" json:"created_by"`
	UpdatedBy      string    `gorm:"type:varchar(36);not null" json:"updated_by"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }
