package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// SearchFilter narrows Search. Zero values match everything.
type SearchFilter struct {
	NormalizedName string
	YearFounded    int
	MinSize        int
	MaxSize        int
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	FindByID(ctx context.Context, id string) (*Organization, error)
	FindByRegistryNumber(ctx context.Context, registryNumber string) (*Organization, error)
	Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]Organization, int64, error)
	UpdateStatus(ctx context.Context, id string, status Status, actorID string, now time.Time) error
}
