package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/identity"
	invitationdomain "github.com/smallbiznis/orgsync/internal/invitation/domain"
	invitationrepo "github.com/smallbiznis/orgsync/internal/invitation/repository"
	invitationservice "github.com/smallbiznis/orgsync/internal/invitation/service"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerExpiresStaleInvitationsOnce(t *testing.T) {
	useRegistry(t)
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&invitationdomain.Invitation{}, &outbox.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(t0)
	var cfg config.Config
	cfg.Invitation.ExpiryWindow = 7 * 24 * time.Hour

	svc := invitationservice.New(invitationservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Config: cfg,
		Clock:  clk,
		Repo:   invitationrepo.Provide(),
		Outbox: outbox.NewWriter(node, clk),
	})
	sched, err := New(Params{
		Log:           zap.NewNop(),
		InvitationSvc: svc,
		GenID:         node,
		Clock:         clk,
	})
	require.NoError(t, err)

	admin := identity.Actor{UserID: uuid.NewString(), Role: identity.RoleAdmin}
	ctx := context.Background()
	stale, err := svc.Create(ctx, invitationdomain.CreateInvitationRequest{
		UserID:         uuid.NewString(),
		OrganizationID: uuid.NewString(),
		Message:        "old",
	}, admin)
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	fresh, err := svc.Create(ctx, invitationdomain.CreateInvitationRequest{
		UserID:         uuid.NewString(),
		OrganizationID: uuid.NewString(),
		Message:        "new",
	}, admin)
	require.NoError(t, err)

	// Exactly seven days after the stale one.
	clk.Advance(6 * 24 * time.Hour)
	require.NoError(t, sched.RunOnce(ctx))
	require.NoError(t, sched.RunOnce(ctx))

	got, err := svc.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, invitationdomain.StatusExpired, got.Status)
	assert.Equal(t, identity.SystemActorID, got.UpdatedBy)

	got, err = svc.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, invitationdomain.StatusPending, got.Status)

	var expiredEvents int64
	require.NoError(t, conn.Model(&outbox.Record{}).Where("routing_key = ?", events.RoutingInvitationExpired).Count(&expiredEvents).Error)
	assert.EqualValues(t, 1, expiredEvents)
}
