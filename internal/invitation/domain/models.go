// Package domain holds the invitation model, its lifecycle states and the
// contracts implemented by the repository and service packages.
package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

// ParseStatus defaults an empty filter to PENDING.
func ParseStatus(raw string) (Status, error) {
	value := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch value {
	case "":
		return StatusPending, nil
	case StatusPending, StatusAccepted, StatusRejected, StatusExpired:
		return value, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Invitation is one row of invitation history. Rejected and expired rows are
// kept; re-inviting inserts a new row.
type Invitation struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string    `gorm:"type:varchar(36);not null;index:ix_invitations_user_status,priority:1;uniqueIndex:ux_invitations_pending,priority:1,where:status = 'PENDING'" json:"user_id"`
	OrganizationID string    `gorm:"type:varchar(36);not null;index:ix_invitations_org_status,priority:1;uniqueIndex:ux_invitations_pending,priority:2,where:status = 'PENDING'" json:"organization_id"`
	Message        string    `gorm:"type:text;not null;default:''" json:"invitation_message"`
	Status         Status    `gorm:"type:varchar(16);not null;index:ix_invitations_user_status,priority:2;index:ix_invitations_org_status,priority:2;index:ix_invitations_status_created,priority:1" json:"status"`
	Version        int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time `gorm:"not null;index:ix_invitations_status_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
	CreatedBy      string    `gorm:"type:varchar(36);not null" json:"created_by"`
	UpdatedBy      string    `gorm:"type:varchar(36);not null" json:"updated_by"`
}

func (Invitation) TableName() string { return "invitations" }

// ExpiredAt reports whether a pending invitation has outlived window at now.
func (i Invitation) ExpiredAt(now time.Time, window time.Duration) bool {
	return i.Status == StatusPending && i.CreatedAt.Add(window).Before(now)
}
