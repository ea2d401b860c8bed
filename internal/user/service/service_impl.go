package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/smallbiznis/orgsync/internal/cache"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/identity"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	"github.com/smallbiznis/orgsync/internal/observability/logger"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/sanitize"
	"github.com/smallbiznis/orgsync/internal/user/domain"
	"github.com/smallbiznis/orgsync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Clock  clock.Clock
	Repo   domain.Repository
	Outbox *outbox.Writer
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	outbox      *outbox.Writer
	memberships *membershipsync.Store
	validate    *validator.Validate
	cache       cache.Cache[string, domain.User]
	cacheTTL    time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("user.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		outbox:      p.Outbox,
		memberships: membershipsync.NewUserStore(p.DB, p.Clock),
		validate:    validator.New(),
		cache:       cache.NewBoundedTTLCache[string, domain.User](p.Config.Directory.CacheSize),
		cacheTTL:    p.Config.Directory.CacheTTL,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest, actor identity.Actor) (*domain.User, error) {
	if actor.IsZero() {
		return nil, identity.ErrUnauthorized
	}
	email := sanitize.Email(req.Email)
	if err := s.validate.Var(email, "required,email,max=320"); err != nil {
		return nil, domain.ErrInvalidEmail
	}
	fullName := strings.Join(strings.Fields(req.FullName), " ")
	if !sanitize.IsFullName(fullName) {
		return nil, domain.ErrInvalidName
	}
	role := identity.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := identity.ParseRole(req.Role)
		if err != nil {
			return nil, domain.ErrInvalidRole
		}
		role = parsed
	}

	// Users registered by an administrator skip activation.
	status := domain.StatusPending
	if actor.IsAdmin() {
		status = domain.StatusActive
	}

	now := s.clock.Now()
	user := domain.User{
		ID:             uuid.NewString(),
		Email:          email,
		FullName:       fullName,
		NormalizedName: sanitize.ASCIIKey(fullName),
		Role:           role,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.ExistsByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicateEmail
		}
		if err := s.repo.Insert(ctx, tx, &user); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateEmail
			}
			return err
		}
		evt := events.UserCreated{
			Envelope: events.NewEnvelope(actor.UserID, now),
			UserID:   user.ID,
			Email:    user.Email,
			Role:     string(user.Role),
		}
		return s.outbox.Enqueue(ctx, tx, events.RoutingUserCreated, evt)
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.String("status", string(user.Status)),
	)
	return &user, nil
}

// GetByID hides deleted users.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.User, error) {
	userID, ok := normalizeID(id)
	if !ok {
		return nil, domain.ErrInvalidID
	}
	if cached, ok := s.cache.Get(userID); ok {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status == domain.StatusDeleted {
		return nil, domain.ErrNotFound
	}
	s.cache.Set(userID, *user, s.cacheTTL)
	return user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	normalized := sanitize.Email(email)
	if err := s.validate.Var(normalized, "required,email"); err != nil {
		return nil, domain.ErrInvalidEmail
	}
	user, err := s.repo.FindByEmail(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status == domain.StatusDeleted {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

// Search matches the folded full name, so "sirket" finds "Şirket".
func (s *Service) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchResult, error) {
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

	items, total, err := s.repo.Search(ctx, s.db, sanitize.ASCIIKey(req.Name), size, page*size)
	if err != nil {
		return domain.SearchResult{}, err
	}
	return domain.SearchResult{Items: items, Total: total, Page: page, Size: size}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, status string, actor identity.Actor) (*domain.User, error) {
	if actor.IsZero() {
		return nil, identity.ErrUnauthorized
	}
	userID, ok := normalizeID(id)
	if !ok {
		return nil, domain.ErrInvalidID
	}
	next, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	// Deletion has its own path so memberships are announced.
	if next == domain.StatusDeleted {
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	var result *domain.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil || user.Status == domain.StatusDeleted {
			return domain.ErrNotFound
		}
		if user.Status == next {
			result = user
			return nil
		}
		if err := s.repo.UpdateStatus(ctx, tx, userID, next, actor.UserID, now); err != nil {
			return err
		}
		user.Status = next
		user.UpdatedBy = actor.UserID
		user.UpdatedAt = now

		evt := events.UserUpdated{
			Envelope: events.NewEnvelope(actor.UserID, now),
			UserID:   user.ID,
			Status:   string(next),
		}
		if err := s.outbox.Enqueue(ctx, tx, events.RoutingUserUpdated, evt); err != nil {
			return err
		}
		result = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Delete(userID)
	return result, nil
}

func (s *Service) ListOrganizations(ctx context.Context, id string) ([]string, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := s.memberships.Members(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list organizations of %s: %w", user.ID, err)
	}
	return ids, nil
}

// Delete marks the user DELETED and announces the organizations it belonged
// to. Deleting an already deleted user is a no-op.
func (s *Service) Delete(ctx context.Context, id string, actor identity.Actor) error {
	if actor.IsZero() {
		return identity.ErrUnauthorized
	}
	userID, ok := normalizeID(id)
	if !ok {
		return domain.ErrInvalidID
	}

	now := s.clock.Now()
	var organizationIDs []string
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound
		}
		if user.Status == domain.StatusDeleted {
			return nil
		}

		organizationIDs, err = membershipsync.NewUserStore(tx, s.clock).Members(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, tx, userID, domain.StatusDeleted, actor.UserID, now); err != nil {
			return err
		}
		evt := events.UserDeleted{
			Envelope:        events.NewEnvelope(actor.UserID, now),
			UserID:          userID,
			OrganizationIDs: organizationIDs,
		}
		if err := s.outbox.Enqueue(ctx, tx, events.RoutingUserDeleted, evt); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Delete(userID)
	if deleted {
		logger.WithContext(ctx, s.log).Info("user deleted",
			zap.String("user_id", userID),
			zap.Int("organizations", len(organizationIDs)),
			zap.String("actor_id", actor.UserID),
		)
	}
	return nil
}

func normalizeID(raw string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

var _ domain.Service = (*Service)(nil)
