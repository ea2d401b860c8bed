package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/identity"
	"github.com/smallbiznis/orgsync/internal/invitation/domain"
	"github.com/smallbiznis/orgsync/internal/observability/logger"
	"github.com/smallbiznis/orgsync/internal/observability/metrics"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/sanitize"
	"github.com/smallbiznis/orgsync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultExpiryWindow = 7 * 24 * time.Hour
	expiryBatchSize     = 500
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Clock   clock.Clock
	Repo    domain.Repository
	Outbox  *outbox.Writer
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	repo         domain.Repository
	outbox       *outbox.Writer
	metrics      *metrics.Metrics
	expiryWindow time.Duration
}

func New(p Params) domain.Service {
	window := p.Config.Invitation.ExpiryWindow
	if window <= 0 {
		window = defaultExpiryWindow
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invitation.service"),
		clock:        p.Clock,
		repo:         p.Repo,
		outbox:       p.Outbox,
		metrics:      p.Metrics,
		expiryWindow: window,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvitationRequest, actor identity.Actor) (*domain.Invitation, error) {
	if actor.IsZero() {
		return nil, identity.ErrUnauthorized
	}
	userID, ok := normalizeID(req.UserID)
	if !ok {
		return nil, domain.ErrInvalidUser
	}
	orgID, ok := normalizeID(req.OrganizationID)
	if !ok {
		return nil, domain.ErrInvalidOrg
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, domain.ErrInvalidMessage
	}

	now := s.clock.Now()
	invitation := domain.Invitation{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrganizationID: orgID,
		Message:        sanitize.Text(req.Message),
		Status:         domain.StatusPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.ExistsPending(ctx, tx, userID, orgID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrDuplicatePending
		}

		latest, err := s.repo.FindLatest(ctx, tx, userID, orgID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status == domain.StatusRejected {
			return domain.ErrReinviteBlocked
		}

		if err := s.repo.Insert(ctx, tx, &invitation); err != nil {
			// A concurrent create won the partial unique index.
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicatePending
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvitationTransition(ctx, string(domain.StatusPending), 1)
	logger.WithContext(ctx, s.log).Info("invitation created",
		zap.String("invitation_id", invitation.ID),
		zap.String("user_id", userID),
		zap.String("organization_id", orgID),
	)
	return &invitation, nil
}

func (s *Service) Accept(ctx context.Context, id string, actor identity.Actor) (*domain.Invitation, error) {
	return s.transition(ctx, id, actor, domain.StatusAccepted)
}

// Reject emits no event; nothing downstream reacts to it.
func (s *Service) Reject(ctx context.Context, id string, actor identity.Actor) (*domain.Invitation, error) {
	return s.transition(ctx, id, actor, domain.StatusRejected)
}

func (s *Service) transition(ctx context.Context, id string, actor identity.Actor, to domain.Status) (*domain.Invitation, error) {
	if actor.IsZero() {
		return nil, identity.ErrUnauthorized
	}
	invitationID, ok := normalizeID(id)
	if !ok {
		return nil, domain.ErrInvalidID
	}

	now := s.clock.Now()
	var result *domain.Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invitation, err := s.repo.FindByID(ctx, tx, invitationID)
		if err != nil {
			return err
		}
		if invitation == nil {
			return domain.ErrNotFound
		}
		if !actor.IsAdmin() && !actor.Is(invitation.UserID) {
			return domain.ErrForbidden
		}
		if invitation.Status != domain.StatusPending {
			return domain.ErrInvalidTransition
		}
		// A stale invitation stays PENDING until the scheduler sweeps it.
		if to == domain.StatusAccepted && invitation.ExpiredAt(now, s.expiryWindow) {
			return domain.ErrExpired
		}

		swapped, err := s.repo.CompareAndSetStatus(ctx, tx, invitation.ID, invitation.Version, to, actor.UserID, now)
		if err != nil {
			return err
		}
		if !swapped {
			return s.lostRace(ctx, tx, invitation.ID)
		}

		invitation.Status = to
		invitation.Version++
		invitation.UpdatedBy = actor.UserID
		invitation.UpdatedAt = now

		if to == domain.StatusAccepted {
			evt := events.InvitationAccepted{
				Envelope:       events.NewEnvelope(actor.UserID, now),
				UserID:         invitation.UserID,
				OrganizationID: invitation.OrganizationID,
				InvitationID:   invitation.ID,
			}
			if err := s.outbox.Enqueue(ctx, tx, events.RoutingInvitationAccepted, evt); err != nil {
				return err
			}
		}
		result = invitation
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvitationTransition(ctx, string(to), 1)
	logger.WithContext(ctx, s.log).Info("invitation transitioned",
		zap.String("invitation_id", result.ID),
		zap.String("status", string(to)),
		zap.String("actor_id", actor.UserID),
	)
	return result, nil
}

func (s *Service) lostRace(ctx context.Context, tx *gorm.DB, id string) error {
	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	if current.Status != domain.StatusPending {
		return domain.ErrInvalidTransition
	}
	return domain.ErrConcurrentUpdate
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	invitationID, ok := normalizeID(id)
	if !ok {
		return nil, domain.ErrInvalidID
	}
	invitation, err := s.repo.FindByID(ctx, s.db, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation == nil {
		return nil, domain.ErrNotFound
	}
	return invitation, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string, status string) ([]domain.Invitation, error) {
	id, ok := normalizeID(userID)
	if !ok {
		return nil, domain.ErrInvalidUser
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, s.db, id, parsed)
}

func (s *Service) ListByOrganization(ctx context.Context, organizationID string, status string) ([]domain.Invitation, error) {
	id, ok := normalizeID(organizationID)
	if !ok {
		return nil, domain.ErrInvalidOrg
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByOrganization(ctx, s.db, id, parsed)
}

// ExpireBatch moves every PENDING invitation created at or before
// now-window to EXPIRED and records a single event listing the ids that
// actually changed. Running it again with the same now is a no-op.
func (s *Service) ExpireBatch(ctx context.Context, now time.Time) (domain.ExpireResult, error) {
	cutoff := now.Add(-s.expiryWindow)
	system := identity.System()

	var result domain.ExpireResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired := make([]string, 0)
		for {
			candidates, err := s.repo.ListPendingCreatedBefore(ctx, tx, cutoff, expiryBatchSize)
			if err != nil {
				return err
			}
			progressed := false
			for _, candidate := range candidates {
				swapped, err := s.repo.CompareAndSetStatus(ctx, tx, candidate.ID, candidate.Version, domain.StatusExpired, system.UserID, now)
				if err != nil {
					return err
				}
				if swapped {
					expired = append(expired, candidate.ID)
					progressed = true
				}
			}
			if len(candidates) < expiryBatchSize || !progressed {
				break
			}
		}
		if len(expired) == 0 {
			return nil
		}

		evt := events.InvitationsExpired{
			Envelope:      events.NewEnvelope(system.UserID, now),
			InvitationIDs: expired,
		}
		if err := s.outbox.Enqueue(ctx, tx, events.RoutingInvitationExpired, evt); err != nil {
			return err
		}
		result = domain.ExpireResult{ExpiredIDs: expired, EventID: evt.EventID}
		return nil
	})
	if err != nil {
		return domain.ExpireResult{}, err
	}

	if n := len(result.ExpiredIDs); n > 0 {
		s.metrics.RecordInvitationTransition(ctx, string(domain.StatusExpired), n)
		s.log.Info("invitations expired", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
	return result, nil
}

func normalizeID(raw string) (string, bool) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

var _ domain.Service = (*Service)(nil)

