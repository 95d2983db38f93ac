package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"smallbiznis-tenancy/pkg/db/pagination"
	"smallbiznis-tenancy/pkg/errutil"
	"smallbiznis-tenancy/services/domain"
	"smallbiznis-tenancy/services/lifecycle"
	"smallbiznis-tenancy/services/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

type Handler struct {
	tenants   *tenant.Service
	domains   *domain.Service
	lifecycle *lifecycle.Service
}

type Params struct {
	fx.In
	Tenants   *tenant.Service
	Domains   *domain.Service
	Lifecycle *lifecycle.Service `optional:"true"`
}

func NewHandler(p Params) *Handler {
	return &Handler{
		tenants:   p.Tenants,
		domains:   p.Domains,
		lifecycle: p.Lifecycle,
	}
}

func bindError(err error) error {
	return errutil.BadRequest("invalid request body", err, errutil.WithDetails(errutil.Detail{Message: err.Error()}))
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return bindError(err)
	}
	return nil
}

func (h *Handler) ListTenants(c *gin.Context) {
	var q ListTenantsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	loc := h.tenants.Now().Location()
	p := tenant.ListParams{
		IsActive:    q.IsActive,
		AutoDisable: q.AutoDisable,
		HasExpiry:   q.HasExpiry,
		Query:       q.Q,
		Ordering:    q.Ordering,
		Pagination:  pagination.Pagination{Limit: q.Limit, Offset: q.Offset},
	}

	var err error
	if p.CreatedFrom, err = parseDay("created_from", q.CreatedFrom, loc); err != nil {
		_ = c.Error(err)
		return
	}
	if p.CreatedTo, err = parseDay("created_to", q.CreatedTo, loc); err != nil {
		_ = c.Error(err)
		return
	}
	if p.CreatedTo != nil {
		// inclusive upper bound
		next := p.CreatedTo.AddDate(0, 0, 1)
		p.CreatedTo = &next
	}
	if p.ExpiresFrom, err = parseDate("expires_from", q.ExpiresFrom); err != nil {
		_ = c.Error(err)
		return
	}
	if p.ExpiresTo, err = parseDate("expires_to", q.ExpiresTo); err != nil {
		_ = c.Error(err)
		return
	}

	tenants, page, err := h.tenants.List(c.Request.Context(), p)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": newTenantList(tenants),
		"page": page,
	})
}

func (h *Handler) CreateTenant(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	expiresAt, err := parseDate("expires_at", req.ExpiresAt)
	if err != nil {
		_ = c.Error(err)
		return
	}

	t, err := h.tenants.Create(c.Request.Context(), tenant.CreateParams{
		Name:        req.Name,
		SchemaName:  req.SchemaName,
		TenantCode:  req.TenantCode,
		AccessPIN:   req.AccessPIN,
		IsActive:    req.IsActive,
		AutoDisable: req.AutoDisable,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, newTenantResponse(t))
}

func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newTenantResponse(t))
}

func (h *Handler) UpdateTenant(c *gin.Context) {
	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	p := tenant.UpdateParams{
		Name:        req.Name,
		TenantCode:  req.TenantCode,
		IsActive:    req.IsActive,
		AutoDisable: req.AutoDisable,
		Reason:      req.Reason,
	}

	switch raw := bytes.TrimSpace(req.ExpiresAt); {
	case len(raw) == 0:
	case bytes.Equal(raw, []byte("null")), bytes.Equal(raw, []byte(`""`)):
		p.ClearExpiresAt = true
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			_ = c.Error(errutil.ValidationFailed("invalid date", err, errutil.WithDetails(errutil.Detail{Field: "expires_at", Message: "expected YYYY-MM-DD"})))
			return
		}
		d, err := parseDate("expires_at", s)
		if err != nil {
			_ = c.Error(err)
			return
		}
		p.ExpiresAt = d
	}

	ctx := c.Request.Context()
	t, err := h.tenants.Update(ctx, c.Param("id"), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if req.IsActive != nil {
		h.domains.EvictTenant(ctx, t.ID)
	}

	c.JSON(http.StatusOK, newTenantResponse(t))
}

func (h *Handler) SetAccessPIN(c *gin.Context) {
	var req PINRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	t, err := h.tenants.SetAccessPIN(c.Request.Context(), c.Param("id"), req.PIN)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newTenantResponse(t))
}

func (h *Handler) ClearAccessPIN(c *gin.Context) {
	t, err := h.tenants.SetAccessPIN(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newTenantResponse(t))
}

func (h *Handler) CheckAccessPIN(c *gin.Context) {
	var req PINRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	ok, err := h.tenants.CheckAccessPIN(c.Request.Context(), c.Param("id"), req.PIN)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": ok})
}

func (h *Handler) DeactivateTenant(c *gin.Context) {
	var req ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	t, err := h.tenants.Deactivate(ctx, c.Param("id"), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.domains.EvictTenant(ctx, t.ID)
	c.JSON(http.StatusOK, newTenantResponse(t))
}

func (h *Handler) ActivateTenant(c *gin.Context) {
	var req ReasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	t, err := h.tenants.Activate(ctx, c.Param("id"), req.Reason)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.domains.EvictTenant(ctx, t.ID)
	c.JSON(http.StatusOK, newTenantResponse(t))
}

func (h *Handler) HasExpired(c *gin.Context) {
	expired, err := h.tenants.HasExpired(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

func (h *Handler) ListEvents(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	events, err := h.tenants.Events(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (h *Handler) DeactivateSelected(c *gin.Context) {
	h.bulk(c, h.tenants.DeactivateSelected, tenant.DeactivatedMessage)
}

func (h *Handler) ActivateSelected(c *gin.Context) {
	h.bulk(c, h.tenants.ActivateSelected, tenant.ActivatedMessage)
}

func (h *Handler) bulk(c *gin.Context, apply func(ctx context.Context, ids []string) (int64, error), message func(int64) string) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	ctx := c.Request.Context()
	updated, err := apply(ctx, req.IDs)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if updated > 0 {
		for _, id := range req.IDs {
			h.domains.EvictTenant(ctx, id)
		}
	}

	c.JSON(http.StatusOK, BulkResponse{Updated: updated, Message: message(updated)})
}

func (h *Handler) TriggerSweep(c *gin.Context) {
	if h.lifecycle == nil {
		_ = c.Error(errutil.New(errutil.StatusServiceUnavailable, "lifecycle sweeper is not configured"))
		return
	}

	taskID, err := h.lifecycle.EnqueueSweep(c.Request.Context())
	if err != nil {
		_ = c.Error(errutil.New(errutil.StatusServiceUnavailable, "failed to enqueue sweep", errutil.WithErr(err)))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}

func (h *Handler) ListSweepRuns(c *gin.Context) {
	if h.lifecycle == nil {
		_ = c.Error(errutil.New(errutil.StatusServiceUnavailable, "lifecycle sweeper is not configured"))
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	runs, err := h.lifecycle.Runs(c.Request.Context(), p.Limit)
	if err != nil {
		_ = c.Error(errutil.Internal("failed to list sweep runs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}
