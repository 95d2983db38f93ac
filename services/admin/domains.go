package admin

import (
	"net/http"

	"smallbiznis-tenancy/pkg/errutil"
	"smallbiznis-tenancy/services/domain"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListDomains(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		_ = c.Error(errutil.ValidationFailed("tenant_id is required", nil, errutil.WithDetails(errutil.Detail{Field: "tenant_id", Message: "required"})))
		return
	}

	domains, err := h.domains.List(c.Request.Context(), tenantID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": domains})
}

func (h *Handler) CreateDomain(c *gin.Context) {
	var req CreateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	d, err := h.domains.Create(c.Request.Context(), domain.CreateParams{
		TenantID:  req.TenantID,
		Hostname:  req.Domain,
		IsPrimary: req.IsPrimary,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDomain(c *gin.Context) {
	d, err := h.domains.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDomain(c *gin.Context) {
	if err := h.domains.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SetPrimaryDomain(c *gin.Context) {
	d, err := h.domains.SetPrimary(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) VerifyDomain(c *gin.Context) {
	res, err := h.domains.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ResolveDomain(c *gin.Context) {
	host := c.Query("host")
	if host == "" {
		host = c.Request.Host
	}

	res, err := h.domains.Resolve(c.Request.Context(), host)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
