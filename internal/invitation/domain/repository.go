package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invitation *Invitation) error
	// FindByID returns nil when the row does not exist.
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Invitation, error)
	ExistsPending(ctx context.Context, db *gorm.DB, userID, organizationID string) (bool, error)
	FindLatest(ctx context.Context, db *gorm.DB, userID, organizationID string) (*Invitation, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, status Status) ([]Invitation, error)
	ListByOrganization(ctx context.Context, db *gorm.DB, organizationID string, status Status) ([]Invitation, error)
	ListPendingCreatedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Invitation, error)
	// CompareAndSetStatus moves a PENDING row at version to status. It reports
	// false when the row changed underneath the caller.
	CompareAndSetStatus(ctx context.Context, db *gorm.DB, id string, version int64, status Status, actorID string, now time.Time) (bool, error)
}
