// Package identity models the caller identity forwarded by the upstream gateway.
// Requests arrive already authenticated; this package only parses and carries
// the trusted headers.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
	RoleSystem  Role = "SYSTEM"
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"

	// SystemActorID attributes changes made by background jobs.
	SystemActorID = "00000000-0000-0000-0000-000000000001"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidRole  = errors.New("invalid_role")
)

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   Role
}

// System is the actor used for scheduled and event-driven changes.
func System() Actor {
	return Actor{UserID: SystemActorID, Role: RoleSystem}
}

// New validates the forwarded identity headers.
func New(userID, role string) (Actor, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Actor{}, ErrUnauthorized
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return Actor{}, ErrUnauthorized
	}
	r, err := ParseRole(role)
	if err != nil {
		return Actor{}, ErrUnauthorized
	}
	return Actor{UserID: parsed.String(), Role: r}, nil
}

// ParseRole accepts "ADMIN", "admin" and the gateway's "ROLE_ADMIN" form.
func ParseRole(raw string) (Role, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, "ROLE_")
	switch Role(value) {
	case RoleAdmin, RoleManager, RoleUser:
		return Role(value), nil
	default:
		return "", ErrInvalidRole
	}
}

func (a Actor) IsZero() bool {
	return a.UserID == ""
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

func (a Actor) IsSystem() bool {
	return a.UserID == SystemActorID
}

// Is reports whether the actor is the given user.
func (a Actor) Is(userID string) bool {
	return a.UserID != "" && strings.EqualFold(a.UserID, strings.TrimSpace(userID))
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.IsZero() {
		return Actor{}, false
	}
	return actor, true
}
