package membershipsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	orgdomain "github.com/smallbiznis/orgsync/internal/organization/domain"
	userdomain "github.com/smallbiznis/orgsync/internal/user/domain"
	"github.com/smallbiznis/orgsync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&userdomain.User{},
		&orgdomain.Organization{},
		&membershipsync.UserOrganization{},
		&membershipsync.OrganizationMember{},
	))
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, status userdomain.Status) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, conn.Create(&userdomain.User{
		ID:             id,
		Email:          id + "@example.com",
		FullName:       "Test User",
		NormalizedName: "test user",
		Role:           "USER",
		Status:         status,
		CreatedAt:      t0,
		UpdatedAt:      t0,
		CreatedBy:      id,
		UpdatedBy:      id,
	}).Error)
	return id
}

func seedOrganization(t *testing.T, conn *gorm.DB, status orgdomain.Status) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, conn.Create(&orgdomain.Organization{
		ID:             id,
		Name:           "Org",
		NormalizedName: "org",
		Slug:           "org-" + id[:8],
		RegistryNumber: id[:8],
		Status:         status,
		CreatedAt:      t0,
		UpdatedAt:      t0,
		CreatedBy:      id,
		UpdatedBy:      id,
	}).Error)
	return id
}

func TestAddMembershipIsIdempotent(t *testing.T) {
	conn := newDB(t)
	store := membershipsync.NewUserStore(conn, clock.NewFakeClock(t0))
	ctx := context.Background()
	userID := seedUser(t, conn, userdomain.StatusActive)
	orgID := uuid.NewString()

	added, err := store.AddMembership(ctx, userID, orgID)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AddMembership(ctx, userID, orgID)
	require.NoError(t, err)
	assert.False(t, added)

	members, err := store.Members(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{orgID}, members)
}

func TestAddMembershipRequiresLiveOwner(t *testing.T) {
	conn := newDB(t)
	store := membershipsync.NewOrganizationStore(conn, clock.NewFakeClock(t0))
	ctx := context.Background()

	_, err := store.AddMembership(ctx, uuid.NewString(), uuid.NewString())
	assert.ErrorIs(t, err, membershipsync.ErrOwnerNotFound)

	deleted := seedOrganization(t, conn, orgdomain.StatusDeleted)
	_, err = store.AddMembership(ctx, deleted, uuid.NewString())
	assert.ErrorIs(t, err, membershipsync.ErrOwnerNotFound)

	members, err := store.Members(ctx, deleted)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRemoveMembership(t *testing.T) {
	conn := newDB(t)
	clk := clock.NewFakeClock(t0)
	store := membershipsync.NewOrganizationStore(conn, clk)
	ctx := context.Background()

	orgA := seedOrganization(t, conn, orgdomain.StatusActive)
	orgB := seedOrganization(t, conn, orgdomain.StatusActive)
	alice, bob := uuid.NewString(), uuid.NewString()
	for _, pair := range [][2]string{{orgA, alice}, {orgA, bob}, {orgB, alice}} {
		_, err := store.AddMembership(ctx, pair[0], pair[1])
		require.NoError(t, err)
		clk.Advance(time.Second)
	}

	removed, err := store.RemoveMembership(ctx, orgA, bob)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.RemoveMembership(ctx, orgA, bob)
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := store.RemoveAllFor(ctx, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for _, org := range []string{orgA, orgB} {
		members, err := store.Members(ctx, org)
		require.NoError(t, err)
		assert.Empty(t, members)
	}
}
