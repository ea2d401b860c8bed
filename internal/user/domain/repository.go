package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	ExistsByEmail(ctx context.Context, db *gorm.DB, email string) (bool, error)
	Search(ctx context.Context, db *gorm.DB, normalizedName string, limit, offset int) ([]User, int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id string, status Status, actorID string, now time.Time) error
}
