// Package membershipsync keeps the user and organization membership
// projections in step with invitation and deletion events.
package membershipsync

import "time"

// UserOrganization is the user-side membership projection.
type UserOrganization struct {
	UserID         string    `gorm:"type:varchar(36);primaryKey"`
	OrganizationID string    `gorm:"type:varchar(36);primaryKey;index:ix_user_organizations_org"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (UserOrganization) TableName() string { return "user_organizations" }

// OrganizationMember is the organization-side membership projection.
type OrganizationMember struct {
	OrganizationID string    `gorm:"type:varchar(36);primaryKey"`
	UserID         string    `gorm:"type:varchar(36);primaryKey;index:ix_organization_members_user"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (OrganizationMember) TableName() string { return "organization_members" }
