package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/orgsync/internal/identity"
	"github.com/smallbiznis/orgsync/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	roleMember = "role:member"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer persists policies through the gorm adapter and seeds the
// built-in role grants on first start.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

// NewMemoryEnforcer keeps policies in process memory only.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	return newEnforcer(nil)
}

func newEnforcer(adapter *gormadapter.Adapter) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, err
	}
	if adapter != nil {
		enforcer.EnableAutoSave(true)
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor identity.Actor, object, action, ownerID string) error {
	if actor.IsZero() || actor.Role == "" {
		return identity.ErrUnauthorized
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	scope := ScopeOther
	if ownerID != "" && actor.Is(ownerID) {
		scope = ScopeSelf
	}

	allowed, err := s.enforcer.Enforce(roleSubject(actor.Role), object, action, scope)
	if err != nil {
		return fmt.Errorf("enforce %s.%s: %w", object, action, err)
	}
	if !allowed {
		logger.WithContext(ctx, s.log).Info("authorization denied",
			zap.String("actor_id", actor.UserID),
			zap.String("actor_role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
			zap.String("scope", scope),
		)
		return ErrForbidden
	}
	return nil
}

func roleSubject(role identity.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	admin := roleSubject(identity.RoleAdmin)
	manager := roleSubject(identity.RoleManager)
	user := roleSubject(identity.RoleUser)
	system := roleSubject(identity.RoleSystem)

	policies := [][]string{
		// Shared by every signed-in caller.
		{roleMember, ObjectUser, ActionCreate, ScopeAny},
		{roleMember, ObjectOrganization, ActionCreate, ScopeAny},
		{roleMember, ObjectOrganization, ActionView, ScopeAny},
		{roleMember, ObjectOrganization, ActionSearch, ScopeAny},
		{roleMember, ObjectOrganization, ActionListMembers, ScopeAny},
		{roleMember, ObjectInvitation, ActionCreate, ScopeAny},
		{roleMember, ObjectInvitation, ActionView, ScopeAny},
		{roleMember, ObjectInvitation, ActionRespond, ScopeSelf},

		// Users only see and manage their own record.
		{user, ObjectUser, ActionView, ScopeSelf},
		{user, ObjectUser, ActionListMembers, ScopeSelf},
		{user, ObjectUser, ActionUpdate, ScopeSelf},
		{user, ObjectUser, ActionDelete, ScopeSelf},

		// Managers read the directory but never delete.
		{manager, ObjectUser, ActionView, ScopeAny},
		{manager, ObjectUser, ActionSearch, ScopeAny},
		{manager, ObjectUser, ActionListMembers, ScopeAny},
		{manager, ObjectUser, ActionUpdate, ScopeAny},

		{admin, ObjectUser, ActionView, ScopeAny},
		{admin, ObjectUser, ActionSearch, ScopeAny},
		{admin, ObjectUser, ActionListMembers, ScopeAny},
		{admin, ObjectUser, ActionUpdate, ScopeAny},
		{admin, ObjectUser, ActionDelete, ScopeAny},
		{admin, ObjectOrganization, ActionUpdate, ScopeAny},
		{admin, ObjectOrganization, ActionDelete, ScopeAny},
		{admin, ObjectInvitation, ActionRespond, ScopeAny},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{admin, roleMember},
		{manager, roleMember},
		{user, roleMember},
		{system, admin},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}

var _ Service = (*ServiceImpl)(nil)
