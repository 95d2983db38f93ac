package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/middleware"
	"smallbiznis-tenancy/services/domain"
	"smallbiznis-tenancy/services/tenant"
	"smallbiznis-tenancy/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	router  *gin.Engine
	tenants *tenant.Service
	domains *domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &tenant.Tenant{}, &tenant.Event{}, &domain.Domain{})
	node := testutil.NewNode(t)
	cfg := &config.Config{}

	tenants := tenant.NewService(tenant.ServiceParams{DB: db, Node: node, Config: cfg})
	domains := domain.NewService(domain.ServiceParams{DB: db, Node: node, Config: cfg, Tenants: tenants})

	r := gin.New()
	r.Use(middleware.Error())
	RegisterRoutes(r, NewHandler(Params{Tenants: tenants, Domains: domains}))

	return &fixture{router: r, tenants: tenants, domains: domains}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) tenant(t *testing.T, p tenant.CreateParams) *tenant.Tenant {
	t.Helper()
	tn, err := f.tenants.Create(context.Background(), p)
	require.NoError(t, err)
	return tn
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}](t, w)
	return body.Error.Code
}

func TestCreateAndGetTenant(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/admin/tenants", map[string]any{
		"name":         "Acme Corp",
		"tenant_code":  "T001",
		"access_pin":   "1234",
		"auto_disable": true,
		"expires_at":   "2026-12-31",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotContains(t, w.Body.String(), `"access_pin"`)

	created := decode[TenantResponse](t, w)
	require.Equal(t, "acme_corp", created.SchemaName)
	require.True(t, created.HasAccessPIN)
	require.True(t, created.IsActive)
	require.NotNil(t, created.ExpiresAt)
	require.Equal(t, "2026-12-31", *created.ExpiresAt)

	w = f.do(t, http.MethodGet, "/admin/tenants/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, created.ID, decode[TenantResponse](t, w).ID)
}

func TestCreateTenantErrors(t *testing.T) {
	f := newFixture(t)
	f.tenant(t, tenant.CreateParams{Name: "Acme"})

	w := f.do(t, http.MethodPost, "/admin/tenants", map[string]any{"name": "Acme"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "conflict", errorCode(t, w))

	w = f.do(t, http.MethodPost, "/admin/tenants", map[string]any{"schema_name": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/admin/tenants", map[string]any{"name": "Other", "expires_at": "31/12/2026"})
	require.Equal(t, "validation_failed", errorCode(t, w))

	w = f.do(t, http.MethodGet, "/admin/tenants/404", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTenantsFilters(t *testing.T) {
	f := newFixture(t)
	inactive := false
	f.tenant(t, tenant.CreateParams{Name: "Alpha"})
	f.tenant(t, tenant.CreateParams{Name: "Beta", IsActive: &inactive})
	f.tenant(t, tenant.CreateParams{Name: "Gamma"})

	type listBody struct {
		Data []TenantResponse `json:"data"`
		Page struct {
			Total int64 `json:"total"`
		} `json:"page"`
	}

	w := f.do(t, http.MethodGet, "/admin/tenants?is_active=true&ordering=name", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[listBody](t, w)
	require.Equal(t, int64(2), body.Page.Total)
	require.Equal(t, "Alpha", body.Data[0].Name)
	require.Equal(t, "Gamma", body.Data[1].Name)

	w = f.do(t, http.MethodGet, "/admin/tenants?q=bet", nil)
	body = decode[listBody](t, w)
	require.Len(t, body.Data, 1)
	require.Equal(t, "Beta", body.Data[0].Name)

	w = f.do(t, http.MethodGet, "/admin/tenants?created_from=yesterday", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestBulkActionsReportUpdatedCount(t *testing.T) {
	f := newFixture(t)
	inactive := false
	a := f.tenant(t, tenant.CreateParams{Name: "A"})
	b := f.tenant(t, tenant.CreateParams{Name: "B"})
	c := f.tenant(t, tenant.CreateParams{Name: "C", IsActive: &inactive})

	w := f.do(t, http.MethodPost, "/admin/tenants/actions/deactivate", BulkRequest{IDs: []string{a.ID, b.ID, c.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[BulkResponse](t, w)
	require.Equal(t, int64(2), resp.Updated)
	require.Equal(t, "Deactivated 2 tenant(s).", resp.Message)

	w = f.do(t, http.MethodPost, "/admin/tenants/actions/activate", BulkRequest{IDs: []string{a.ID, b.ID, c.ID}})
	resp = decode[BulkResponse](t, w)
	require.Equal(t, int64(3), resp.Updated)
	require.Equal(t, "Activated 3 tenant(s).", resp.Message)

	w = f.do(t, http.MethodPost, "/admin/tenants/actions/activate", BulkRequest{IDs: []string{a.ID}})
	require.Equal(t, "Activated 0 tenant(s).", decode[BulkResponse](t, w).Message)

	w = f.do(t, http.MethodPost, "/admin/tenants/actions/deactivate", map[string]any{"ids": []string{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeactivateAndActivateTenant(t *testing.T) {
	f := newFixture(t)
	tn := f.tenant(t, tenant.CreateParams{Name: "Acme"})

	w := f.do(t, http.MethodPost, "/admin/tenants/"+tn.ID+"/deactivate", ReasonRequest{Reason: "unpaid"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[TenantResponse](t, w)
	require.False(t, resp.IsActive)
	require.NotNil(t, resp.DisabledAt)

	// no body is accepted
	w = f.do(t, http.MethodPost, "/admin/tenants/"+tn.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decode[TenantResponse](t, w)
	require.True(t, resp.IsActive)
	require.Nil(t, resp.DisabledAt)

	w = f.do(t, http.MethodGet, "/admin/tenants/"+tn.ID+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode[struct {
		Data []tenant.Event `json:"data"`
	}](t, w)
	require.Len(t, events.Data, 2)
}

func TestAccessPINRoutes(t *testing.T) {
	f := newFixture(t)
	tn := f.tenant(t, tenant.CreateParams{Name: "Acme"})
	path := "/admin/tenants/" + tn.ID + "/pin"

	type checkBody struct {
		Valid bool `json:"valid"`
	}

	w := f.do(t, http.MethodPost, path+"/check", PINRequest{PIN: ""})
	require.False(t, decode[checkBody](t, w).Valid)

	w = f.do(t, http.MethodPut, path, PINRequest{PIN: "9876"})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode[TenantResponse](t, w).HasAccessPIN)

	w = f.do(t, http.MethodPost, path+"/check", PINRequest{PIN: "9876"})
	require.True(t, decode[checkBody](t, w).Valid)

	w = f.do(t, http.MethodPost, path+"/check", PINRequest{PIN: "0000"})
	require.False(t, decode[checkBody](t, w).Valid)

	w = f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, decode[TenantResponse](t, w).HasAccessPIN)
}

func TestUpdateTenantExpiry(t *testing.T) {
	f := newFixture(t)
	tn := f.tenant(t, tenant.CreateParams{Name: "Acme"})
	path := "/admin/tenants/" + tn.ID

	w := f.do(t, http.MethodPatch, path, `{"expires_at":"2020-01-31","auto_disable":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[TenantResponse](t, w)
	require.Equal(t, "2020-01-31", *resp.ExpiresAt)
	require.True(t, resp.AutoDisable)

	w = f.do(t, http.MethodGet, path+"/expired", nil)
	require.True(t, decode[struct {
		Expired bool `json:"expired"`
	}](t, w).Expired)

	// absent key leaves the date alone
	w = f.do(t, http.MethodPatch, path, `{"name":"Acme Renamed"}`)
	resp = decode[TenantResponse](t, w)
	require.Equal(t, "Acme Renamed", resp.Name)
	require.NotNil(t, resp.ExpiresAt)

	w = f.do(t, http.MethodPatch, path, `{"expires_at":null}`)
	require.Nil(t, decode[TenantResponse](t, w).ExpiresAt)

	w = f.do(t, http.MethodPatch, path, `{"expires_at":20200131}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(t, http.MethodPatch, path, `{"is_active":false,"reason":"paused"}`)
	resp = decode[TenantResponse](t, w)
	require.False(t, resp.IsActive)
	require.NotNil(t, resp.DisabledAt)
}

func TestDomainRoutes(t *testing.T) {
	f := newFixture(t)
	tn := f.tenant(t, tenant.CreateParams{Name: "Acme"})

	w := f.do(t, http.MethodPost, "/admin/domains", CreateDomainRequest{TenantID: tn.ID, Domain: "acme.example.com", IsPrimary: true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[domain.Domain](t, w)
	require.True(t, first.IsPrimary)

	w = f.do(t, http.MethodPost, "/admin/domains", CreateDomainRequest{TenantID: tn.ID, Domain: "shop.acme.example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	second := decode[domain.Domain](t, w)

	w = f.do(t, http.MethodPost, "/admin/domains", CreateDomainRequest{TenantID: tn.ID, Domain: "ACME.example.com"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/admin/domains/"+second.ID+"/primary", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, decode[domain.Domain](t, w).IsPrimary)

	w = f.do(t, http.MethodGet, "/admin/domains?tenant_id="+tn.ID, nil)
	list := decode[struct {
		Data []domain.Domain `json:"data"`
	}](t, w)
	require.Len(t, list.Data, 2)
	require.Equal(t, second.ID, list.Data[0].ID)

	w = f.do(t, http.MethodGet, "/admin/resolve?host=ACME.example.com:8443", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[domain.Resolution](t, w)
	require.Equal(t, tn.ID, res.TenantID)
	require.Equal(t, "acme", res.SchemaName)

	w = f.do(t, http.MethodDelete, "/admin/domains/"+first.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/admin/domains/"+first.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/admin/domains/"+second.ID+"/verify", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = f.do(t, http.MethodGet, "/admin/domains", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSweepRoutesWithoutLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/admin/tenants/actions/sweep", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "service_unavailable"))
}
