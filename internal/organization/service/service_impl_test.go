package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/orgsync/internal/clock"
	"github.com/smallbiznis/orgsync/internal/config"
	"github.com/smallbiznis/orgsync/internal/events"
	"github.com/smallbiznis/orgsync/internal/identity"
	"github.com/smallbiznis/orgsync/internal/membershipsync"
	"github.com/smallbiznis/orgsync/internal/organization/domain"
	"github.com/smallbiznis/orgsync/internal/organization/repository"
	"github.com/smallbiznis/orgsync/internal/outbox"
	"github.com/smallbiznis/orgsync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Organization{}, &membershipsync.OrganizationMember{}, &outbox.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(t0)

	var cfg config.Config
	cfg.Directory.CacheTTL = time.Minute
	svc := NewService(conn, zap.NewNop(), cfg, clk, repository.NewRepository(conn), outbox.NewWriter(node, clk)).(*service)
	return svc, conn, clk
}

func adminActor() identity.Actor {
	return identity.Actor{UserID: uuid.NewString(), Role: identity.RoleAdmin}
}

func outboxPayloads(t *testing.T, conn *gorm.DB, routingKey string) []outbox.Record {
	t.Helper()
	var records []outbox.Record
	require.NoError(t, conn.Where("routing_key = ?", routingKey).Order("id").Find(&records).Error)
	return records
}

func TestCreateOrganization(t *testing.T) {
	svc, conn, _ := setup(t)
	admin := adminActor()

	org, err := svc.Create(context.Background(), domain.CreateOrganizationRequest{
		Name:           "<b>Acme</b> Çelik A.Ş.",
		RegistryNumber: " tr-123 456 ",
		ContactEmail:   "Ops@Acme.example",
		CompanySize:    250,
		YearFounded:    1998,
	}, admin)
	require.NoError(t, err)

	assert.Equal(t, "Acme Çelik A.Ş.", org.Name)
	assert.Equal(t, "acme celik as", org.NormalizedName)
	assert.Equal(t, "TR123456", org.RegistryNumber)
	assert.Equal(t, "ops@acme.example", org.ContactEmail)
	assert.True(t, strings.HasPrefix(org.Slug, "acme-celik"), org.Slug)
	assert.Len(t, org.Slug[strings.LastIndex(org.Slug, "-")+1:], 8)
	assert.Equal(t, domain.StatusActive, org.Status)

	records := outboxPayloads(t, conn, events.RoutingOrganizationCreated)
	require.Len(t, records, 1)
	var evt events.OrganizationCreated
	require.NoError(t, json.Unmarshal(records[0].Payload, &evt))
	assert.Equal(t, org.ID, evt.OrganizationID)
	assert.Equal(t, org.Name, evt.Name)
}

func TestCreateOrganizationValidation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	admin := adminActor()

	cases := []struct {
		name string
		req  domain.CreateOrganizationRequest
		err  error
	}{
		{"markup only name", domain.CreateOrganizationRequest{Name: "<script></script>", RegistryNumber: "R1"}, domain.ErrInvalidName},
		{"missing registry", domain.CreateOrganizationRequest{Name: "Acme"}, domain.ErrInvalidRegistry},
		{"symbol registry", domain.CreateOrganizationRequest{Name: "Acme", RegistryNumber: "R#1"}, domain.ErrInvalidRegistry},
		{"bad email", domain.CreateOrganizationRequest{Name: "Acme", RegistryNumber: "R1", ContactEmail: "nope"}, domain.ErrInvalidEmail},
		{"negative size", domain.CreateOrganizationRequest{Name: "Acme", RegistryNumber: "R1", CompanySize: -1}, domain.ErrInvalidCompanySize},
		{"future year", domain.CreateOrganizationRequest{Name: "Acme", RegistryNumber: "R1", YearFounded: 2100}, domain.ErrInvalidYearFounded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req, admin)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCreateOrganizationDuplicateRegistry(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	admin := adminActor()

	first, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme", RegistryNumber: "R-1"}, admin)
	require.NoError(t, err)

	_, err = svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Acme", RegistryNumber: "r1"}, admin)
	assert.ErrorIs(t, err, domain.ErrDuplicateRegistry)

	got, err := svc.GetByRegistryNumber(ctx, "r 1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestSearchOrganizations(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	admin := adminActor()

	for _, req := range []domain.CreateOrganizationRequest{
		{Name: "Globex", RegistryNumber: "G1", CompanySize: 10, YearFounded: 2001},
		{Name: "Globex Labs", RegistryNumber: "G2", CompanySize: 500, YearFounded: 2001},
		{Name: "Initech", RegistryNumber: "I1", CompanySize: 50, YearFounded: 1990},
	} {
		_, err := svc.Create(ctx, req, admin)
		require.NoError(t, err)
	}

	result, err := svc.Search(ctx, domain.SearchRequest{Name: "globex"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Total)

	result, err = svc.Search(ctx, domain.SearchRequest{YearFounded: 2001, MaxSize: 100})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Globex", result.Items[0].Name)

	_, err = svc.Search(ctx, domain.SearchRequest{MinSize: 10, MaxSize: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidCompanySize)
}

func TestUpdateStatusRefreshesCache(t *testing.T) {
	svc, conn, _ := setup(t)
	ctx := context.Background()
	admin := adminActor()

	org, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Hooli", RegistryNumber: "H1"}, admin)
	require.NoError(t, err)
	_, err = svc.GetByID(ctx, org.ID)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, org.ID, "inactive", admin)
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, got.Status)
	assert.Len(t, outboxPayloads(t, conn, events.RoutingOrganizationUpdated), 1)
}

func TestDeleteOrganizationAnnouncesMembers(t *testing.T) {
	svc, conn, clk := setup(t)
	ctx := context.Background()
	admin := adminActor()

	org, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "Umbrella", RegistryNumber: "U1"}, admin)
	require.NoError(t, err)

	store := membershipsync.NewOrganizationStore(conn, clk)
	alice, bob := uuid.NewString(), uuid.NewString()
	_, err = store.AddMembership(ctx, org.ID, alice)
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = store.AddMembership(ctx, org.ID, bob)
	require.NoError(t, err)

	users, err := svc.ListUsers(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice, bob}, users)

	require.NoError(t, svc.Delete(ctx, org.ID, admin))
	require.NoError(t, svc.Delete(ctx, org.ID, admin))

	records := outboxPayloads(t, conn, events.RoutingOrganizationDeleted)
	require.Len(t, records, 1)
	var evt events.OrganizationDeleted
	require.NoError(t, json.Unmarshal(records[0].Payload, &evt))
	assert.Equal(t, org.ID, evt.OrganizationID)
	assert.Equal(t, []string{alice, bob}, evt.DeletedUserIDs)

	_, err = svc.GetByID(ctx, org.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetByRegistryNumber(ctx, "U1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, uuid.NewString(), admin), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, org.ID, identity.Actor{}), identity.ErrUnauthorized)
}
