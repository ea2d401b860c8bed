package membershipsync

import (
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/events"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserSideModule runs in the process that owns user_organizations.
var UserSideModule = fx.Module("membershipsync.user",
	fx.Provide(provideUserHandler),
	fx.Invoke(func(sub events.Subscriber, h *UserHandler) error {
		return Subscribe(sub, h.Subscriptions())
	}),
)

// OrganizationSideModule runs in the process that owns organization_members.
var OrganizationSideModule = fx.Module("membershipsync.organization",
	fx.Provide(provideOrganizationHandler),
	fx.Invoke(func(sub events.Subscriber, h *OrganizationHandler) error {
		return Subscribe(sub, h.Subscriptions())
	}),
)

func provideUserHandler(db *gorm.DB, clk clock.Clock, log *zap.Logger) *UserHandler {
	return NewUserHandler(NewUserStore(db, clk), log)
}

func provideOrganizationHandler(db *gorm.DB, clk clock.Clock, log *zap.Logger) *OrganizationHandler {
	return NewOrganizationHandler(NewOrganizationStore(db, clk), log)
}
