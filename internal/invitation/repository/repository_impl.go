package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/orgsync/internal/invitation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invitation *domain.Invitation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invitations (id, user_id, organization_id, message, status, version, created_at, updated_at, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invitation.ID,
		invitation.UserID,
		invitation.OrganizationID,
		invitation.Message,
		invitation.Status,
		invitation.Version,
		invitation.CreatedAt,
		invitation.UpdatedAt,
		invitation.CreatedBy,
		invitation.UpdatedBy,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, organization_id, message, status, version, created_at, updated_at, created_by, updated_by
		 FROM invitations WHERE id = ?`,
		id,
	).Scan(&invitation).Error
	if err != nil {
		return nil, err
	}
	if invitation.ID == "" {
		return nil, nil
	}
	return &invitation, nil
}

func (r *repo) ExistsPending(ctx context.Context, db *gorm.DB, userID, organizationID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invitations
		 WHERE user_id = ? AND organization_id = ? AND status = ?`,
		userID,
		organizationID,
		domain.StatusPending,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, userID, organizationID string) (*domain.Invitation, error) {
	var invitation domain.Invitation
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, organization_id, message, status, version, created_at, updated_at, created_by, updated_by
		 FROM invitations
		 WHERE user_id = ? AND organization_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
		organizationID,
	).Scan(&invitation).Error
	if err != nil {
		return nil, err
	}
	if invitation.ID == "" {
		return nil, nil
	}
	return &invitation, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, status domain.Status) ([]domain.Invitation, error) {
	return r.list(ctx, db, "user_id = ?", userID, status)
}

func (r *repo) ListByOrganization(ctx context.Context, db *gorm.DB, organizationID string, status domain.Status) ([]domain.Invitation, error) {
	return r.list(ctx, db, "organization_id = ?", organizationID, status)
}

func (r *repo) list(ctx context.Context, db *gorm.DB, predicate string, key string, status domain.Status) ([]domain.Invitation, error) {
	items := []domain.Invitation{}
	err := db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where(predicate, key).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListPendingCreatedBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Invitation, error) {
	var items []domain.Invitation
	stmt := db.WithContext(ctx).
		Model(&domain.Invitation{}).
		Where("status = ? AND created_at <= ?", domain.StatusPending, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CompareAndSetStatus(ctx context.Context, db *gorm.DB, id string, version int64, status domain.Status, actorID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invitations
		 SET status = ?, version = version + 1, updated_by = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND version = ?`,
		status,
		actorID,
		now,
		id,
		domain.StatusPending,
		version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
