package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/orgsync/internal/identity"
)

const (
	ObjectUser         = "user"
	ObjectOrganization = "organization"
	ObjectInvitation   = "invitation"
)

const (
	ActionCreate      = "create"
	ActionView        = "view"
	ActionSearch      = "search"
	ActionUpdate      = "update"
	ActionDelete      = "delete"
	ActionListMembers = "list_members"
	ActionRespond     = "respond"
)

const (
	ScopeAny  = "any"
	ScopeSelf = "self"
	// ScopeOther is only ever a request scope; no policy grants it.
	ScopeOther = "other"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether actor may perform action on object. ownerID is the
// user the target belongs to and drives self-only grants; pass "" when the
// target is not owned by a user.
type Service interface {
	Authorize(ctx context.Context, actor identity.Actor, object, action, ownerID string) error
}
