package admin

import (
	"encoding/json"
	"strings"
	"time"

	"smallbiznis-tenancy/pkg/errutil"
	"smallbiznis-tenancy/services/tenant"

	"gorm.io/datatypes"
)

const dateLayout = time.DateOnly

// TenantResponse is the admin view of a tenant. The PIN hash never leaves
// the service; only its presence is reported.
type TenantResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SchemaName   string     `json:"schema_name"`
	TenantCode   *string    `json:"tenant_code"`
	HasAccessPIN bool       `json:"has_access_pin"`
	CreatedOn    time.Time  `json:"created_on"`
	IsActive     bool       `json:"is_active"`
	DisabledAt   *time.Time `json:"disabled_at"`
	AutoDisable  bool       `json:"auto_disable"`
	ExpiresAt    *string    `json:"expires_at"`
	IsPublic     bool       `json:"is_public"`
}

func newTenantResponse(t *tenant.Tenant) TenantResponse {
	resp := TenantResponse{
		ID:           t.ID,
		Name:         t.Name,
		SchemaName:   t.SchemaName,
		TenantCode:   t.TenantCode,
		HasAccessPIN: t.HasAccessPIN(),
		CreatedOn:    t.CreatedOn,
		IsActive:     t.IsActive,
		DisabledAt:   t.DisabledAt,
		AutoDisable:  t.AutoDisable,
		IsPublic:     t.IsPublic,
	}
	if t.ExpiresAt != nil {
		s := time.Time(*t.ExpiresAt).Format(dateLayout)
		resp.ExpiresAt = &s
	}
	return resp
}

func newTenantList(tenants []*tenant.Tenant) []TenantResponse {
	out := make([]TenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, newTenantResponse(t))
	}
	return out
}

type CreateTenantRequest struct {
	Name        string `json:"name" binding:"required"`
	SchemaName  string `json:"schema_name"`
	TenantCode  string `json:"tenant_code"`
	AccessPIN   string `json:"access_pin"`
	IsActive    *bool  `json:"is_active"`
	AutoDisable bool   `json:"auto_disable"`
	ExpiresAt   string `json:"expires_at"`
}

// UpdateTenantRequest mirrors the inline editable columns. expires_at: null
// clears the date, an absent key leaves it untouched.
type UpdateTenantRequest struct {
	Name        *string         `json:"name"`
	TenantCode  *string         `json:"tenant_code"`
	IsActive    *bool           `json:"is_active"`
	AutoDisable *bool           `json:"auto_disable"`
	ExpiresAt   json.RawMessage `json:"expires_at"`
	Reason      string          `json:"reason"`
}

type ListTenantsQuery struct {
	IsActive    *bool  `form:"is_active"`
	AutoDisable *bool  `form:"auto_disable"`
	HasExpiry   *bool  `form:"has_expiry"`
	CreatedFrom string `form:"created_from"`
	CreatedTo   string `form:"created_to"`
	ExpiresFrom string `form:"expires_from"`
	ExpiresTo   string `form:"expires_to"`
	Q           string `form:"q"`
	Ordering    string `form:"ordering"`
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
}

type PINRequest struct {
	PIN string `json:"pin"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type BulkRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type BulkResponse struct {
	Updated int64  `json:"updated"`
	Message string `json:"message"`
}

type CreateDomainRequest struct {
	TenantID  string `json:"tenant_id" binding:"required"`
	Domain    string `json:"domain" binding:"required"`
	IsPrimary bool   `json:"is_primary"`
}

func parseDate(field, raw string) (*datatypes.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid date", err, errutil.WithDetails(errutil.Detail{Field: field, Message: "expected YYYY-MM-DD"}))
	}
	d := datatypes.Date(t)
	return &d, nil
}

// parseDay returns midnight of raw in loc, for created_on range filters.
func parseDay(field, raw string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, errutil.ValidationFailed("invalid date", err, errutil.WithDetails(errutil.Detail{Field: field, Message: "expected YYYY-MM-DD"}))
	}
	return &t, nil
}
