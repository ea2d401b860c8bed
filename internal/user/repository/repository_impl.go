package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/orgsync/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Create(user).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, "email = ?", email)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, predicate string, arg string) (*domain.User, error) {
	var users []domain.User
	if err := db.WithContext(ctx).Where(predicate, arg).Limit(1).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (r *repo) ExistsByEmail(ctx context.Context, db *gorm.DB, email string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Search(ctx context.Context, db *gorm.DB, normalizedName string, limit, offset int) ([]domain.User, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.User{}).Where("status <> ?", domain.StatusDeleted)
	if normalizedName != "" {
		stmt = stmt.Where("normalized_name LIKE ?", "%"+normalizedName+"%")
	}

	stmt = stmt.Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	users := []domain.User{}
	err := stmt.Order("normalized_name ASC").Order("id ASC").Limit(limit).Offset(offset).Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id string, status domain.Status, actorID string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_by": actorID,
			"updated_at": now,
		}).Error
}
