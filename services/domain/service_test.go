package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/errutil"
	"smallbiznis-tenancy/services/tenant"
	"smallbiznis-tenancy/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeVerifier struct {
	records map[string]string
	calls   int
}

func (f *fakeVerifier) Verify(_ context.Context, hostname, expectedCode string) error {
	f.calls++
	if f.records[hostname] == expectedCode {
		return nil
	}
	return errors.New("no matching TXT record found")
}

type fixture struct {
	svc      *Service
	tenants  *tenant.Service
	db       *gorm.DB
	verifier *fakeVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &tenant.Tenant{}, &tenant.Event{}, &Domain{})
	node := testutil.NewNode(t)
	cfg := &config.Config{}

	tenants := tenant.NewService(tenant.ServiceParams{DB: db, Node: node, Config: cfg})
	verifier := &fakeVerifier{records: map[string]string{}}
	svc := NewService(ServiceParams{DB: db, Node: node, Config: cfg, Tenants: tenants, Verifier: verifier})

	return &fixture{svc: svc, tenants: tenants, db: db, verifier: verifier}
}

func (f *fixture) tenant(t *testing.T, name string) *tenant.Tenant {
	t.Helper()
	tn, err := f.tenants.Create(context.Background(), tenant.CreateParams{Name: name})
	require.NoError(t, err)
	return tn
}

func TestNormalizeHostname(t *testing.T) {
	host, err := NormalizeHostname("  Shop.Example.COM. ")
	require.NoError(t, err)
	require.Equal(t, "shop.example.com", host)

	for _, bad := range []string{"", "under_score.example.com", "-lead.example.com", "has space.com", "example.com:8080"} {
		_, err := NormalizeHostname(bad)
		require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err), bad)
	}
}

func TestCreateDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.tenant(t, "Acme")

	d, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "Acme.Example.com", IsPrimary: true})
	require.NoError(t, err)
	require.Equal(t, "acme.example.com", d.Hostname)
	require.True(t, d.IsPrimary)
	require.False(t, d.Verified)
	require.Len(t, d.VerificationCode, 32)

	_, err = f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "acme.example.com"})
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	_, err = f.svc.Create(ctx, CreateParams{TenantID: "missing", Hostname: "other.example.com"})
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestSinglePrimaryPerTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.tenant(t, "Acme")
	globex := f.tenant(t, "Globex")

	first, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "a.example.com", IsPrimary: true})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "b.example.com", IsPrimary: true})
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, CreateParams{TenantID: globex.ID, Hostname: "globex.example.com", IsPrimary: true})
	require.NoError(t, err)

	domains, err := f.svc.List(ctx, acme.ID)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	require.Equal(t, second.ID, domains[0].ID)
	require.True(t, domains[0].IsPrimary)
	require.False(t, domains[1].IsPrimary)

	promoted, err := f.svc.SetPrimary(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, promoted.IsPrimary)

	demoted, err := f.svc.Get(ctx, second.ID)
	require.NoError(t, err)
	require.False(t, demoted.IsPrimary)

	untouched, err := f.svc.Get(ctx, other.ID)
	require.NoError(t, err)
	require.True(t, untouched.IsPrimary)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestDeleteDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.tenant(t, "Acme")

	primary, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "a.example.com", IsPrimary: true})
	require.NoError(t, err)
	alias, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "b.example.com"})
	require.NoError(t, err)

	err = f.svc.Delete(ctx, primary.ID)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	require.NoError(t, f.svc.Delete(ctx, alias.ID))
	require.NoError(t, f.svc.Delete(ctx, primary.ID))

	_, err = f.svc.Get(ctx, primary.ID)
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))

	err = f.svc.Delete(ctx, "missing")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}

func TestVerifyDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.tenant(t, "Acme")
	fixed := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	d, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "acme.example.com"})
	require.NoError(t, err)

	res, err := f.svc.Verify(ctx, d.ID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.Domain.Verified)

	f.verifier.records["acme.example.com"] = d.VerificationCode
	res, err = f.svc.Verify(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.True(t, res.Domain.Verified)
	require.True(t, fixed.Equal(*res.Domain.VerifiedAt))

	res, err = f.svc.Verify(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 2, f.verifier.calls)
}

func TestVerifyWithoutVerifier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.tenant(t, "Acme")
	f.svc.verifier = nil

	d, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "acme.example.com"})
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, d.ID)
	require.Equal(t, errutil.StatusServiceUnavailable, errutil.StatusOf(err))
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acme := f.tenant(t, "Acme Corp")

	d, err := f.svc.Create(ctx, CreateParams{TenantID: acme.ID, Hostname: "acme.example.com", IsPrimary: true})
	require.NoError(t, err)

	r, err := f.svc.Resolve(ctx, "ACME.example.com:8443")
	require.NoError(t, err)
	require.Equal(t, d.ID, r.DomainID)
	require.Equal(t, acme.ID, r.TenantID)
	require.Equal(t, "acme_corp", r.SchemaName)
	require.True(t, r.IsActive)

	_, err = f.tenants.Deactivate(ctx, acme.ID, "")
	require.NoError(t, err)
	r, err = f.svc.Resolve(ctx, "acme.example.com")
	require.NoError(t, err)
	require.False(t, r.IsActive)

	_, err = f.svc.Resolve(ctx, "unknown.example.com")
	require.Equal(t, errutil.StatusNotFound, errutil.StatusOf(err))
}
