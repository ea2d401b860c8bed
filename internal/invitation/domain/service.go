package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/orgsync/internal/identity"
)

type Service interface {
	Create(ctx context.Context, req CreateInvitationRequest, actor identity.Actor) (*Invitation, error)
	Accept(ctx context.Context, id string, actor identity.Actor) (*Invitation, error)
	Reject(ctx context.Context, id string, actor identity.Actor) (*Invitation, error)
	GetByID(ctx context.Context, id string) (*Invitation, error)
	ListByUser(ctx context.Context, userID string, status string) ([]Invitation, error)
	ListByOrganization(ctx context.Context, organizationID string, status string) ([]Invitation, error)
	ExpireBatch(ctx context.Context, now time.Time) (ExpireResult, error)
}

type CreateInvitationRequest struct {
	UserID         string
	OrganizationID string
	Message        string
}

type ExpireResult struct {
	ExpiredIDs []string
	// EventID is empty when nothing expired.
	EventID string
}

var (
	ErrNotFound          = errors.New("invitation_not_found")
	ErrInvalidID         = errors.New("invalid_invitation_id")
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidOrg        = errors.New("invalid_organization")
	ErrInvalidMessage    = errors.New("invalid_invitation_message")
	ErrInvalidStatus     = errors.New("invalid_invitation_status")
	ErrDuplicatePending  = errors.New("pending_invitation_exists")
	ErrReinviteBlocked   = errors.New("reinvite_blocked_after_rejection")
	ErrInvalidTransition = errors.New("invitation_not_pending")
	ErrExpired           = errors.New("invitation_expired")
	ErrConcurrentUpdate  = errors.New("invitation_concurrent_update")
	ErrForbidden         = errors.New("forbidden")
)
