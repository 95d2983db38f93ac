package bootstrap

import (
	"context"
	"fmt"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/errutil"
	"smallbiznis-tenancy/pkg/repository"
	"smallbiznis-tenancy/services/domain"
	"smallbiznis-tenancy/services/lifecycle"
	"smallbiznis-tenancy/services/tenant"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models lists every table owned by the service, in migration order.
var Models = []any{
	&tenant.Tenant{},
	&tenant.Event{},
	&domain.Domain{},
	&lifecycle.SweepRun{},
}

type Service struct {
	db      *gorm.DB
	config  *config.Config
	tenants *tenant.Service
	domains *domain.Service
	repo    repository.Repository[tenant.Tenant]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Config  *config.Config
	Tenants *tenant.Service
	Domains *domain.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		config:  p.Config,
		tenants: p.Tenants,
		domains: p.Domains,
		repo:    repository.ProvideStore[tenant.Tenant](p.DB),
	}
}

func (s *Service) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models...); err != nil {
		zap.L().Error("[bootstrap] auto migrate failed", zap.Error(err))
		return fmt.Errorf("auto migrate: %w", err)
	}
	zap.L().Info("[bootstrap] schema migrated", zap.Int("models", len(Models)))
	return nil
}

// EnsurePublicTenant creates the tenant owning the shared schema, plus its
// primary domain, when TENANT.PUBLIC_DOMAIN is set. Running it again is a no-op.
func (s *Service) EnsurePublicTenant(ctx context.Context) (*tenant.Tenant, error) {
	cfg := s.config.Tenant
	if cfg.PublicDomain == "" {
		zap.L().Info("[bootstrap] TENANT.PUBLIC_DOMAIN not set. Skipping public tenant creation.")
		return nil, nil
	}

	public, err := s.repo.FindOne(ctx, &tenant.Tenant{IsPublic: true})
	if err != nil {
		zap.L().Error("[bootstrap] Error checking public tenant", zap.Error(err))
		return nil, errutil.Internal("failed to check public tenant", err)
	}

	if public == nil {
		public, err = s.tenants.Create(ctx, tenant.CreateParams{
			Name:       cfg.PublicName,
			SchemaName: cfg.PublicSchema,
			IsPublic:   true,
		})
		if err != nil {
			zap.L().Error("[bootstrap] failed to create public tenant", zap.Error(err))
			return nil, err
		}
		zap.L().Info("[bootstrap] Public tenant created", zap.String("tenant_id", public.ID))
	} else {
		zap.L().Info("[bootstrap] Public tenant already exists", zap.String("tenant_id", public.ID))
	}

	domains, err := s.domains.List(ctx, public.ID)
	if err != nil {
		return nil, err
	}
	if len(domains) > 0 {
		return public, nil
	}

	d, err := s.domains.Create(ctx, domain.CreateParams{
		TenantID:  public.ID,
		Hostname:  cfg.PublicDomain,
		IsPrimary: true,
	})
	if err != nil {
		zap.L().Error("[bootstrap] failed to create public domain", zap.Error(err))
		return nil, err
	}

	zap.L().Info("[bootstrap] Public domain created", zap.String("domain", d.Hostname))
	return public, nil
}
