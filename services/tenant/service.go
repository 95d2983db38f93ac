package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/db/option"
	"smallbiznis-tenancy/pkg/db/pagination"
	"smallbiznis-tenancy/pkg/errutil"
	"smallbiznis-tenancy/pkg/repository"
	"smallbiznis-tenancy/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxNameLen = 100
	maxCodeLen = 50
)

var ErrTenantNotFound = errors.New("tenant not found")

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	seq     sequence.Generator
	schemas SchemaProvisioner
	config  *config.Config
	repo    repository.Repository[Tenant]
	events  repository.Repository[Event]
	now     func() time.Time
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Seq     sequence.Generator `optional:"true"`
	Schemas SchemaProvisioner  `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	cfg := p.Config
	if cfg == nil {
		cfg = &config.Config{}
	}

	schemas := p.Schemas
	if schemas == nil {
		schemas = NewSchemaProvisioner(cfg.Tenant.AutoCreateSchema, cfg.Tenant.PublicSchema)
	}

	return &Service{
		db:      p.DB,
		node:    p.Node,
		seq:     p.Seq,
		schemas: schemas,
		config:  cfg,
		repo:    repository.ProvideStore[Tenant](p.DB),
		events:  repository.ProvideStore[Event](p.DB),
		now:     time.Now,
	}
}

// Now returns the current time in the configured business timezone.
func (s *Service) Now() time.Time {
	return s.now().In(s.config.Location())
}

func loggerFrom(ctx context.Context) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return zap.L()
	}
	return zap.L().With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

type CreateParams struct {
	Name        string
	SchemaName  string
	TenantCode  string
	AccessPIN   string
	IsActive    *bool
	AutoDisable bool
	ExpiresAt   *datatypes.Date
	IsPublic    bool
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*Tenant, error) {
	zapLog := loggerFrom(ctx)

	name := strings.TrimSpace(p.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	schemaName := strings.TrimSpace(p.SchemaName)
	if schemaName == "" {
		schemaName = DeriveSchemaName(name)
	}
	if err := ValidateSchemaName(schemaName, p.IsPublic); err != nil {
		return nil, errutil.ValidationFailed("invalid schema_name", err, errutil.WithDetails(errutil.Detail{Field: "schema_name", Message: err.Error()}))
	}

	code, err := s.tenantCode(ctx, p.TenantCode)
	if err != nil {
		return nil, err
	}

	t := &Tenant{
		ID:          s.node.Generate().String(),
		Name:        name,
		SchemaName:  schemaName,
		TenantCode:  code,
		IsActive:    true,
		AutoDisable: p.AutoDisable,
		ExpiresAt:   p.ExpiresAt,
		IsPublic:    p.IsPublic,
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	if err := t.SetAccessPIN(p.AccessPIN); err != nil {
		return nil, errutil.Internal("failed to hash access pin", err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTrx(tx).Create(ctx, t); err != nil {
			return err
		}
		return s.schemas.CreateSchema(ctx, tx, t)
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zapLog.Warn("tenant already exists", zap.String("schema_name", schemaName), zap.Error(err))
			return nil, errutil.Conflict("tenant with this schema_name or tenant_code already exists", err)
		}
		zapLog.Error("failed to create tenant", zap.String("schema_name", schemaName), zap.Error(err))
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	zapLog.Info("tenant created",
		zap.String("tenant_id", t.ID),
		zap.String("schema_name", t.SchemaName),
	)

	return s.Get(ctx, t.ID)
}

func (s *Service) tenantCode(ctx context.Context, raw string) (*string, error) {
	code := strings.TrimSpace(raw)
	if code == "" && s.config.Tenant.AutoCode && s.seq != nil {
		next, err := s.seq.NextTenantCode(ctx)
		if err != nil {
			return nil, errutil.Internal("failed to allocate tenant code", err)
		}
		code = next
	}
	if code == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(code) > maxCodeLen {
		return nil, errutil.ValidationFailed(fmt.Sprintf("tenant_code must be at most %d characters", maxCodeLen), nil)
	}
	return &code, nil
}

func validateName(name string) error {
	if name == "" {
		return errutil.ValidationFailed("name is required", nil, errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return errutil.ValidationFailed(fmt.Sprintf("name must be at most %d characters", maxNameLen), nil)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Tenant, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errutil.BadRequest("tenant_id is required", nil)
	}

	t, err := s.repo.FindOne(ctx, &Tenant{ID: id})
	if err != nil {
		loggerFrom(ctx).Error("failed query get tenant by id", zap.String("tenant_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to get tenant", err)
	}
	if t == nil {
		return nil, errutil.NotFound("tenant not found", ErrTenantNotFound)
	}
	return t, nil
}

// ListParams mirrors the admin list view: filters, free-text search over
// name, schema_name and tenant_code, ordering and pagination.
type ListParams struct {
	IsActive    *bool
	AutoDisable *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	ExpiresFrom *datatypes.Date
	ExpiresTo   *datatypes.Date
	HasExpiry   *bool
	Query       string
	Ordering    string
	Pagination  pagination.Pagination
}

var orderingFields = []string{"name", "schema_name", "tenant_code", "is_active", "expires_at", "auto_disable", "created_on"}

func (p ListParams) filters() []option.QueryOption {
	var opts []option.QueryOption
	if p.IsActive != nil {
		opts = append(opts, option.Where("is_active = ?", *p.IsActive))
	}
	if p.AutoDisable != nil {
		opts = append(opts, option.Where("auto_disable = ?", *p.AutoDisable))
	}
	if p.CreatedFrom != nil {
		opts = append(opts, option.Where("created_on >= ?", *p.CreatedFrom))
	}
	if p.CreatedTo != nil {
		opts = append(opts, option.Where("created_on < ?", *p.CreatedTo))
	}
	if p.ExpiresFrom != nil {
		opts = append(opts, option.Where("expires_at >= ?", *p.ExpiresFrom))
	}
	if p.ExpiresTo != nil {
		opts = append(opts, option.Where("expires_at <= ?", *p.ExpiresTo))
	}
	if p.HasExpiry != nil {
		if *p.HasExpiry {
			opts = append(opts, option.Where("expires_at IS NOT NULL"))
		} else {
			opts = append(opts, option.Where("expires_at IS NULL"))
		}
	}
	return append(opts, option.Search(p.Query, "name", "schema_name", "tenant_code"))
}

func (s *Service) List(ctx context.Context, p ListParams) ([]*Tenant, *pagination.PageInfo, error) {
	zapLog := loggerFrom(ctx)
	filters := p.filters()

	total, err := s.repo.Count(ctx, &Tenant{}, filters...)
	if err != nil {
		zapLog.Error("failed to count tenants", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list tenants", err)
	}

	opts := append(filters,
		option.OrderBy(p.Ordering, orderingFields, "-created_on"),
		option.OrderBy("id", []string{"id"}, "id"),
		option.ApplyPagination(p.Pagination),
	)
	tenants, err := s.repo.Find(ctx, &Tenant{}, opts...)
	if err != nil {
		zapLog.Error("failed to list tenants", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list tenants", err)
	}

	return tenants, pagination.BuildPageInfo(p.Pagination, total), nil
}

// UpdateParams carries the fields editable from the admin: the inline list
// columns (is_active, auto_disable, expires_at) plus name and tenant_code.
// schema_name, created_on and disabled_at are read-only.
type UpdateParams struct {
	Name           *string
	TenantCode     *string
	IsActive       *bool
	AutoDisable    *bool
	ExpiresAt      *datatypes.Date
	ClearExpiresAt bool
	Reason         string
}

func (s *Service) Update(ctx context.Context, id string, p UpdateParams) (*Tenant, error) {
	zapLog := loggerFrom(ctx).With(zap.String("tenant_id", id))

	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		values["name"] = name
	}
	if p.TenantCode != nil {
		code := strings.TrimSpace(*p.TenantCode)
		if utf8.RuneCountInString(code) > maxCodeLen {
			return nil, errutil.ValidationFailed(fmt.Sprintf("tenant_code must be at most %d characters", maxCodeLen), nil)
		}
		if code == "" {
			values["tenant_code"] = nil
		} else {
			values["tenant_code"] = code
		}
	}
	if p.AutoDisable != nil {
		values["auto_disable"] = *p.AutoDisable
	}
	switch {
	case p.ClearExpiresAt:
		values["expires_at"] = nil
	case p.ExpiresAt != nil:
		values["expires_at"] = *p.ExpiresAt
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(values) > 0 {
			if err := s.repo.WithTrx(tx).Update(ctx, t.ID, values); err != nil {
				return err
			}
		}

		if p.IsActive == nil || *p.IsActive == t.IsActive {
			return nil
		}
		if *p.IsActive {
			_, err := s.activate(ctx, tx, t, p.Reason, SourceEdit)
			return err
		}
		_, err := s.deactivate(ctx, tx, t, p.Reason, SourceEdit)
		return err
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("tenant_code already in use", err)
		}
		zapLog.Error("failed to update tenant", zap.Error(err))
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	return s.Get(ctx, t.ID)
}

// SetAccessPIN replaces the tenant PIN; an empty raw clears it. Only the
// access_pin column is written.
func (s *Service) SetAccessPIN(ctx context.Context, id, raw string) (*Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := t.SetAccessPIN(raw); err != nil {
		return nil, errutil.Internal("failed to hash access pin", err)
	}

	action := ActionPINSet
	if !t.HasAccessPIN() {
		action = ActionPINCleared
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Tenant{}).Where("id = ?", t.ID).Update("access_pin", t.AccessPIN).Error; err != nil {
			return err
		}
		return s.recordEvents(ctx, tx, []string{t.ID}, action, SourceEdit, "", nil)
	}); err != nil {
		loggerFrom(ctx).Error("failed to set access pin", zap.String("tenant_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to set access pin: %w", err)
	}

	return t, nil
}

func (s *Service) CheckAccessPIN(ctx context.Context, id, raw string) (bool, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return t.CheckAccessPIN(raw), nil
}

func (s *Service) HasExpired(ctx context.Context, id string) (bool, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return t.HasExpired(s.Now()), nil
}

// ExpiredAutoDisable lists active tenants flagged auto_disable whose
// expiry date lies before today.
func (s *Service) ExpiredAutoDisable(ctx context.Context) ([]*Tenant, error) {
	today := CivilDate(s.Now())
	return s.repo.Find(ctx, &Tenant{},
		option.Where("is_active = ?", true),
		option.Where("auto_disable = ?", true),
		option.Where("expires_at IS NOT NULL AND expires_at < ?", datatypes.Date(today)),
		option.OrderBy("id", []string{"id"}, "id"),
	)
}

func (s *Service) Events(ctx context.Context, id string, p pagination.Pagination) ([]*Event, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	events, err := s.events.Find(ctx, &Event{TenantID: id},
		option.OrderBy("-created_at", []string{"created_at"}, "-created_at"),
		option.OrderBy("id", []string{"id"}, "id"),
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list tenant events", err)
	}
	return events, nil
}
