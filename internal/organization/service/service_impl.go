package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/orgsync/internal/cache"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/identity"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	"github.com/smallbiznis/orgsync/internal/observability/logger"
	"github.com/smallbiznis/orgsync/internal/organization/domain"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/sanitize"
	"github.com/smallbiznis/orgsync/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minYearFounded  = 1800
	defaultPageSize = 20
	maxPageSize     = 100
)

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	outbox   *outbox.Writer
	validate *validator.Validate
	cache    cache.Cache[string, domain.Organization]
	cacheTTL time.Duration
}

func NewService(db *gorm.DB, log *zap.Logger, cfg config.Config, clk clock.Clock, repo domain.Repository, writer *outbox.Writer) domain.Service {
	return &service{
		db:       db,
		log:      log.Named("organization.service"),
		clock:    clk,
		repo:     repo,
		outbox:   writer,
		validate: validator.New(),
		cache:    cache.NewBoundedTTLCache[string, domain.Organization](cfg.Directory.CacheSize),
		cacheTTL: cfg.Directory.CacheTTL,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest, actor identity.Actor) (*domain.Organization, error) {
	if actor.IsZero() {
		return nil, identity.ErrUnauthorized
	}

	name := sanitize.Text(req.Name)
	normalized := sanitize.ASCIIKey(name)
	if name == "" || normalized == "" {
		return nil, domain.ErrInvalidName
	}

	registry := normalizeRegistry(req.RegistryNumber)
	if err := s.validate.Var(registry, "required,alphanum,max=64"); err != nil {
		return nil, domain.ErrInvalidRegistry
	}

	contactEmail := sanitize.Email(req.ContactEmail)
	if err := s.validate.Var(contactEmail, "omitempty,email,max=320"); err != nil {
		return nil, domain.ErrInvalidEmail
	}
	if req.CompanySize < 0 {
		return nil, domain.ErrInvalidCompanySize
	}

	now := s.clock.Now()
	if req.YearFounded != 0 && (req.YearFounded < minYearFounded || req.YearFounded > now.Year()) {
		return nil, domain.ErrInvalidYearFounded
	}

	orgID := uuid.NewString()
	org := domain.Organization{
		ID:             orgID,
		Name:           name,
		NormalizedName: normalized,
		Slug:           makeSlug(name, orgID),
		RegistryNumber: registry,
		ContactEmail:   contactEmail,
		CompanySize:    req.CompanySize,
		YearFounded:    req.YearFounded,
		Status:         domain.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByRegistryNumber(ctx, registry)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateRegistry
		}

		if err := repo.CreateOrganization(ctx, org); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateRegistry
			}
			return err
		}

		evt := events.OrganizationCreated{
			Envelope:       events.NewEnvelope(actor.UserID, now),
			OrganizationID: org.ID,
			Name:           org.Name,
		}
		return s.outbox.Enqueue(ctx, tx, events.RoutingOrganizationCreated, evt)
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("organization created",
		zap.String("organization_id", org.ID),
		zap.String("slug", org.Slug),
	)
	return &org, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	orgID, ok := normalizeID(id)
	if !ok {
		return nil, domain.ErrInvalidID
	}
	if cached, ok := s.cache.Get(orgID); ok {
		return &cached, nil
	}

	org, err := s.repo.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil || org.Status == domain.StatusDeleted {
		return nil, domain.ErrNotFound
	}
	s.cache.Set(orgID, *org, s.cacheTTL)
	return org, nil
}

func (s *service) GetByRegistryNumber(ctx context.Context, registryNumber string) (*domain.Organization, error) {
	registry := normalizeRegistry(registryNumber)
	if registry == "" {
		return nil, domain.ErrInvalidRegistry
	}
	org, err := s.repo.FindByRegistryNumber(ctx, registry)
	if err != nil {
		return nil, err
	}
	if org == nil || org.Status == domain.StatusDeleted {
		return nil, domain.ErrNotFound
	}
	return org, nil
}

func (s *service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
	page, size := req.Page, req.Size
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if req.MinSize > 0 && req.MaxSize > 0 && req.MinSize > req.MaxSize {
		return domain.SearchResult{}, domain.ErrInvalidCompanySize
	}

	filter := domain.SearchFilter{
		NormalizedName: sanitize.ASCIIKey(req.Name),
		YearFounded:    req.YearFounded,
		MinSize:        req.MinSize,
		MaxSize:        req.MaxSize,
	}
	items, total, err := s.repo.Search(ctx, filter, size, page*size)
	if err != nil {
		return domain.SearchResult{}, err
	}
	return domain.SearchResult{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *service) UpdateStatus(ctx context.Context, id string, status string, actor identity.Actor) (*domain.Organization, error) {
	if actor.IsZero() {
		return nil, identity.ErrUnauthorized
	}
	orgID, ok := normalizeID(id)
	if !ok {
		return nil, domain.ErrInvalidID
	}
	next, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if next == domain.StatusDeleted {
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	var result *domain.Organization
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		org, err := repo.FindByID(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil || org.Status == domain.StatusDeleted {
			return domain.ErrNotFound
		}
		result = org
		if org.Status == next {
			return nil
		}
		if err := repo.UpdateStatus(ctx, orgID, next, actor.UserID, now); err != nil {
			return err
		}
		org.Status = next
		org.UpdatedBy = actor.UserID
		org.UpdatedAt = now

		evt := events.OrganizationUpdated{
			Envelope:       events.NewEnvelope(actor.UserID, now),
			OrganizationID: orgID,
			Status:         string(next),
		}
		return s.outbox.Enqueue(ctx, tx, events.RoutingOrganizationUpdated, evt)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Delete(orgID)
	return result, nil
}

func (s *service) ListUsers(ctx context.Context, id string) ([]string, error) {
	org, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := membershipsync.NewOrganizationStore(s.db, s.clock).Members(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", org.ID, err)
	}
	return ids, nil
}

// Delete marks the organization DELETED and announces its members so each
// user drops it. Deleting twice is a no-op.
func (s *service) Delete(ctx context.Context, id string, actor identity.Actor) error {
	if actor.IsZero() {
		return identity.ErrUnauthorized
	}
	orgID, ok := normalizeID(id)
	if !ok {
		return domain.ErrInvalidID
	}

	now := s.clock.Now()
	var memberIDs []string
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		org, err := repo.FindByID(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrNotFound
		}
		if org.Status == domain.StatusDeleted {
			return nil
		}

		memberIDs, err = membershipsync.NewOrganizationStore(tx, s.clock).Members(ctx, orgID)
		if err != nil {
			return err
		}
		if err := repo.UpdateStatus(ctx, orgID, domain.StatusDeleted, actor.UserID, now); err != nil {
			return err
		}
		evt := events.OrganizationDeleted{
			Envelope:       events.NewEnvelope(actor.UserID, now),
			OrganizationID: orgID,
			DeletedUserIDs: memberIDs,
		}
		if err := s.outbox.Enqueue(ctx, tx, events.RoutingOrganizationDeleted, evt); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Delete(orgID)
	if deleted {
		logger.WithContext(ctx, s.log).Info("organization deleted",
			zap.String("organization_id", orgID),
			zap.Int("members", len(memberIDs)),
			zap.String("actor_id", actor.UserID),
		)
	}
	return nil
}

// makeSlug keeps slugs unique across organizations sharing a name.
func makeSlug(name, id string) string {
	base := slug.Make(name)
	if base == "" {
		base = "org"
	}
	if len(base) > 120 {
		base = strings.Trim(base[:120], "-")
	}
	return base + "-" + strings.ReplaceAll(id, "-", "")[:8]
}

func normalizeRegistry(raw string) string {
	value := strings.ToUpper(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "", "-", "", ".", "").Replace(value)
}

func normalizeID(raw string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}
