package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/orgsync/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, normalized_name, slug, registry_number, contact_email,
		 company_size, year_founded, status, created_at, updated_at, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.NormalizedName,
		org.Slug,
		org.RegistryNumber,
		org.ContactEmail,
		org.CompanySize,
		org.YearFounded,
		org.Status,
		org.CreatedAt,
		org.UpdatedAt,
		org.CreatedBy,
		org.UpdatedBy,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*domain.Organization, error) {
	return r.findOne(ctx, `SELECT * FROM organizations WHERE id = ? LIMIT 1`, id)
}

func (r *repository) FindByRegistryNumber(ctx context.Context, registryNumber string) (*domain.Organization, error) {
	return r.findOne(ctx, `SELECT * FROM organizations WHERE registry_number = ? LIMIT 1`, registryNumber)
}

func (r *repository) findOne(ctx context.Context, query string, arg string) (*domain.Organization, error) {
	var orgs []domain.Organization
	if err := r.db.WithContext(ctx).Raw(query, arg).Scan(&orgs).Error; err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

func (r *repository) Search(ctx context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.Organization, int64, error) {
	stmt := r.db.WithContext(ctx).Model(&domain.Organization{}).Where("status <> ?", domain.StatusDeleted)
	if filter.NormalizedName != "" {
		stmt = stmt.Where("normalized_name LIKE ?", "%"+filter.NormalizedName+"%")
	}
	if filter.YearFounded > 0 {
		stmt = stmt.Where("year_founded = ?", filter.YearFounded)
	}
	if filter.MinSize > 0 {
		stmt = stmt.Where("company_size >= ?", filter.MinSize)
	}
	if filter.MaxSize > 0 {
		stmt = stmt.Where("company_size <= ?", filter.MaxSize)
	}
	stmt = stmt.Session(&gorm.Session{})

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orgs := []domain.Organization{}
	err := stmt.Order("normalized_name ASC").Order("id ASC").Limit(limit).Offset(offset).Find(&orgs).Error
	if err != nil {
		return nil, 0, err
	}
	return orgs, total, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id string, status domain.Status, actorID string, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET status = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
		status,
		actorID,
		now,
		id,
	).Error
}
