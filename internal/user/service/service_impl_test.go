package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/identity"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/internal/user/domain"
	"github.com/smallbiznis/orgsync/internal/user/repository"
	"github.com/smallbiznis/orgsync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	db    *gorm.DB
	clock *clock.FakeClock
	admin identity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.User{}, &membershipsync.UserOrganization{}, &outbox.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(t0)

	var cfg config.Config
	cfg.Directory.CacheTTL = time.Minute
	svc := New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Config: cfg,
		Clock:  clk,
		Repo:   repository.Provide(),
		Outbox: outbox.NewWriter(node, clk),
	}).(*Service)

	return &fixture{
		svc:   svc,
		db:    conn,
		clock: clk,
		admin: identity.Actor{UserID: uuid.NewString(), Role: identity.RoleAdmin},
	}
}

func (f *fixture) outboxRecords(t *testing.T, routingKey string) []outbox.Record {
	t.Helper()
	var records []outbox.Record
	require.NoError(t, f.db.Where("routing_key = ?", routingKey).Order("id").Find(&records).Error)
	return records
}

func (f *fixture) create(t *testing.T, email, name string) *domain.User {
	t.Helper()
	user, err := f.svc.Create(context.Background(), domain.CreateUserRequest{Email: email, FullName: name}, f.admin)
	require.NoError(t, err)
	return user
}

func TestCreateNormalizesAndPublishes(t *testing.T) {
	f := newFixture(t)

	user := f.create(t, "  Ayse.Yilmaz@Example.COM ", "Ayşe  Yılmaz")
	assert.Equal(t, "ayse.yilmaz@example.com", user.Email)
	assert.Equal(t, "Ayşe Yılmaz", user.FullName)
	assert.Equal(t, "ayse yilmaz", user.NormalizedName)
	assert.Equal(t, identity.RoleUser, user.Role)
	assert.Equal(t, domain.StatusActive, user.Status)
	assert.Equal(t, f.admin.UserID, user.CreatedBy)

	records := f.outboxRecords(t, events.RoutingUserCreated)
	require.Len(t, records, 1)
	var evt events.UserCreated
	require.NoError(t, json.Unmarshal(records[0].Payload, &evt))
	assert.Equal(t, user.ID, evt.UserID)
	assert.Equal(t, "USER", evt.Role)
	assert.Equal(t, f.admin.UserID, evt.TriggeredBy)
}

func TestCreateByNonAdminStartsPending(t *testing.T) {
	f := newFixture(t)
	manager := identity.Actor{UserID: uuid.NewString(), Role: identity.RoleManager}

	user, err := f.svc.Create(context.Background(), domain.CreateUserRequest{
		Email:    "m@example.com",
		FullName: "Mia Manager",
		Role:     "ROLE_MANAGER",
	}, manager)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, user.Status)
	assert.Equal(t, identity.RoleManager, user.Role)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateUserRequest
		err  error
	}{
		{"bad email", domain.CreateUserRequest{Email: "not-an-email", FullName: "Ann Lee"}, domain.ErrInvalidEmail},
		{"digits in name", domain.CreateUserRequest{Email: "a@example.com", FullName: "Ann 2"}, domain.ErrInvalidName},
		{"blank name", domain.CreateUserRequest{Email: "a@example.com", FullName: "  "}, domain.ErrInvalidName},
		{"bad role", domain.CreateUserRequest{Email: "a@example.com", FullName: "Ann Lee", Role: "ROOT"}, domain.ErrInvalidRole},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req, f.admin)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := f.svc.Create(ctx, domain.CreateUserRequest{Email: "a@example.com", FullName: "Ann Lee"}, identity.Actor{})
	assert.ErrorIs(t, err, identity.ErrUnauthorized)
	assert.Empty(t, f.outboxRecords(t, events.RoutingUserCreated))
}

func TestCreateDuplicateEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.create(t, "dup@example.com", "First User")

	_, err := f.svc.Create(context.Background(), domain.CreateUserRequest{Email: "DUP@example.com", FullName: "Second User"}, f.admin)
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
	assert.Len(t, f.outboxRecords(t, events.RoutingUserCreated), 1)
}

func TestGetByIDAndEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.create(t, "get@example.com", "Get Me")

	got, err := f.svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)
	assert.Equal(t, 1, f.svc.cache.Len())

	got, err = f.svc.GetByEmail(ctx, "GET@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.svc.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestSearchMatchesFoldedName(t *testing.T) {
	f := newFixture(t)
	f.create(t, "a@example.com", "Şule Demir")
	f.create(t, "b@example.com", "Sule Kaya")
	f.create(t, "c@example.com", "Omar Ali")

	result, err := f.svc.Search(context.Background(), domain.SearchRequest{Name: "şule", Size: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Total)
	require.Len(t, result.Items, 1)

	result, err = f.svc.Search(context.Background(), domain.SearchRequest{Name: "sule", Page: 1, Size: 1})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
}

func TestUpdateStatusEvictsCacheAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	manager := identity.Actor{UserID: uuid.NewString(), Role: identity.RoleManager}
	user, err := f.svc.Create(ctx, domain.CreateUserRequest{Email: "p@example.com", FullName: "Pending User"}, manager)
	require.NoError(t, err)

	_, err = f.svc.GetByID(ctx, user.ID)
	require.NoError(t, err)

	updated, err := f.svc.UpdateStatus(ctx, user.ID, "active", f.admin)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, updated.Status)

	got, err := f.svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)

	// Same status twice emits nothing new.
	_, err = f.svc.UpdateStatus(ctx, user.ID, "ACTIVE", f.admin)
	require.NoError(t, err)
	assert.Len(t, f.outboxRecords(t, events.RoutingUserUpdated), 1)

	_, err = f.svc.UpdateStatus(ctx, user.ID, "DELETED", f.admin)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestDeleteAnnouncesOrganizationsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.create(t, "del@example.com", "Del User")

	store := membershipsync.NewUserStore(f.db, f.clock)
	orgA, orgB := uuid.NewString(), uuid.NewString()
	_, err := store.AddMembership(ctx, user.ID, orgA)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = store.AddMembership(ctx, user.ID, orgB)
	require.NoError(t, err)

	orgs, err := f.svc.ListOrganizations(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{orgA, orgB}, orgs)

	require.NoError(t, f.svc.Delete(ctx, user.ID, f.admin))
	require.NoError(t, f.svc.Delete(ctx, user.ID, f.admin))

	records := f.outboxRecords(t, events.RoutingUserDeleted)
	require.Len(t, records, 1)
	var evt events.UserDeleted
	require.NoError(t, json.Unmarshal(records[0].Payload, &evt))
	assert.Equal(t, user.ID, evt.UserID)
	assert.Equal(t, []string{orgA, orgB}, evt.OrganizationIDs)

	_, err = f.svc.GetByID(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.ListOrganizations(ctx, user.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, uuid.NewString(), f.admin), domain.ErrNotFound)
}
