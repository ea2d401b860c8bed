package migration

import (
	"time"

	invitationdomain "github.com/smallbiznis/orgsync/internal/invitation/domain"
	"github.com/smallbiznis/orgsync/pkg/db"
	"gorm.io/gorm"
)

// mysqlInvitation is the invitations table as mysql builds it. MySQL has no
// partial indexes, so the one-pending-invitation rule is enforced through a
// stored column that is NULL outside PENDING. NULLs never collide in a
// unique index.
type mysqlInvitation struct {
	ID             string                  `gorm:"type:varchar(36);primaryKey"`
	UserID         string                  `gorm:"type:varchar(36);not null;index:ix_invitations_user_status,priority:1"`
	OrganizationID string                  `gorm:"type:varchar(36);not null;index:ix_invitations_org_status,priority:1"`
	Message        string                  `gorm:"type:text;not null"`
	Status         invitationdomain.Status `gorm:"type:varchar(16);not null;index:ix_invitations_user_status,priority:2;index:ix_invitations_org_status,priority:2;index:ix_invitations_status_created,priority:1"`
	Version        int64                   `gorm:"not null;default:1"`
	CreatedAt      time.Time               `gorm:"not null;index:ix_invitations_status_created,priority:2"`
	UpdatedAt      time.Time               `gorm:"not null"`
	CreatedBy      string                  `gorm:"type:varchar(36);not null"`
	UpdatedBy      string                  `gorm:"type:varchar(36);not null"`
	PendingKey     *string                 `gorm:"->;type:varchar(73) GENERATED ALWAYS AS (CASE WHEN status = 'PENDING' THEN CONCAT(user_id, '/', organization_id) END) STORED;uniqueIndex:ux_invitations_pending"`
}

func (mysqlInvitation) TableName() string { return "invitations" }

// modelsFor swaps in dialect-specific table definitions.
func modelsFor(conn *gorm.DB) []any {
	models := Models()
	if conn == nil || conn.Dialector == nil || conn.Dialector.Name() != db.DialectMySQL {
		return models
	}
	for i, model := range models {
		if _, ok := model.(*invitationdomain.Invitation); ok {
			models[i] = &mysqlInvitation{}
		}
	}
	return models
}
