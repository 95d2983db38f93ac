package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/db/option"
	"smallbiznis-tenancy/pkg/errutil"
	"smallbiznis-tenancy/pkg/rediskey"
	"smallbiznis-tenancy/pkg/repository"
	"smallbiznis-tenancy/pkg/security"
	"smallbiznis-tenancy/services/tenant"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/apimachinery/pkg/util/validation"
)

var (
	ErrDomainNotFound = errors.New("domain not found")
	ErrPrimaryInUse   = errors.New("primary domain still has siblings")
)

// Verifier proves ownership of a hostname.
type Verifier interface {
	Verify(ctx context.Context, hostname, expectedCode string) error
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	tenants  *tenant.Service
	verifier Verifier
	cache    *redis.Client
	cacheTTL time.Duration
	repo     repository.Repository[Domain]
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Tenants  *tenant.Service
	Verifier Verifier      `optional:"true"`
	Redis    *redis.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	var ttl time.Duration
	if p.Config != nil {
		ttl = p.Config.Tenant.DomainCacheTTL
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		tenants:  p.Tenants,
		verifier: p.Verifier,
		cache:    p.Redis,
		cacheTTL: ttl,
		repo:     repository.ProvideStore[Domain](p.DB),
		now:      time.Now,
	}
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

// NormalizeHostname lower-cases host, drops a trailing dot and rejects
// anything that is not an RFC 1123 subdomain.
func NormalizeHostname(host string) (string, error) {
	h := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if h == "" {
		return "", errutil.ValidationFailed("domain is required", nil, errutil.WithDetails(errutil.Detail{Field: "domain", Message: "required"}))
	}
	if errs := validation.IsDNS1123Subdomain(h); len(errs) > 0 {
		return "", errutil.ValidationFailed("invalid domain", nil, errutil.WithDetails(errutil.Detail{Field: "domain", Message: strings.Join(errs, "; ")}))
	}
	return h, nil
}

type CreateParams struct {
	TenantID  string
	Hostname  string
	IsPrimary bool
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*Domain, error) {
	zapLog := loggerFrom(ctx).With(zap.String("tenant_id", p.TenantID))

	host, err := NormalizeHostname(p.Hostname)
	if err != nil {
		return nil, err
	}

	if _, err := s.tenants.Get(ctx, p.TenantID); err != nil {
		return nil, err
	}

	d := &Domain{
		ID:               s.node.Generate().String(),
		TenantID:         p.TenantID,
		Hostname:         host,
		IsPrimary:        p.IsPrimary,
		VerificationCode: security.GenerateVerificationCode(),
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if d.IsPrimary {
			if err := clearPrimary(ctx, tx, d.TenantID); err != nil {
				return err
			}
		}
		return s.repo.WithTrx(tx).Create(ctx, d)
	}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			zapLog.Warn("domain already registered", zap.String("domain", host))
			return nil, errutil.Conflict(fmt.Sprintf("domain %s is already registered", host), err)
		}
		zapLog.Error("failed to create domain", zap.String("domain", host), zap.Error(err))
		return nil, errutil.Internal("failed to create domain", err)
	}

	s.evict(ctx, host)
	zapLog.Info("domain created", zap.String("domain_id", d.ID), zap.String("domain", host))

	return s.Get(ctx, d.ID)
}

func clearPrimary(ctx context.Context, tx *gorm.DB, tenantID string) error {
	return tx.WithContext(ctx).Model(&Domain{}).
		Where("tenant_id = ? AND is_primary = ?", tenantID, true).
		Update("is_primary", false).Error
}

// List returns the domains of a tenant, primary first. An empty tenantID
// lists every domain.
func (s *Service) List(ctx context.Context, tenantID string) ([]*Domain, error) {
	domains, err := s.repo.Find(ctx, &Domain{TenantID: tenantID},
		option.OrderBy("-is_primary", []string{"is_primary"}, "-is_primary"),
		option.OrderBy("domain", []string{"domain"}, "domain"),
	)
	if err != nil {
		loggerFrom(ctx).Error("failed to list domains", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, errutil.Internal("failed to list domains", err)
	}
	return domains, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Domain, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errutil.BadRequest("domain_id is required", nil)
	}

	d, err := s.repo.FindOne(ctx, &Domain{ID: id})
	if err != nil {
		loggerFrom(ctx).Error("failed to get domain", zap.String("domain_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to get domain", err)
	}
	if d == nil {
		return nil, errutil.NotFound("domain not found", ErrDomainNotFound)
	}
	return d, nil
}

// SetPrimary makes the domain the canonical hostname of its tenant.
func (s *Service) SetPrimary(ctx context.Context, id string) (*Domain, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.IsPrimary {
		return d, nil
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearPrimary(ctx, tx, d.TenantID); err != nil {
			return err
		}
		return s.repo.WithTrx(tx).Update(ctx, d.ID, map[string]any{"is_primary": true})
	}); err != nil {
		loggerFrom(ctx).Error("failed to set primary domain", zap.String("domain_id", id), zap.Error(err))
		return nil, errutil.Internal("failed to set primary domain", err)
	}

	s.evictTenant(ctx, d.TenantID)
	return s.Get(ctx, d.ID)
}

// Delete removes a domain. A primary domain can only go once it is the
// tenant's last one.
func (s *Service) Delete(ctx context.Context, id string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if d.IsPrimary {
			var siblings int64
			if err := tx.Model(&Domain{}).
				Where("tenant_id = ? AND id <> ?", d.TenantID, d.ID).
				Count(&siblings).Error; err != nil {
				return err
			}
			if siblings > 0 {
				return ErrPrimaryInUse
			}
		}
		return tx.Delete(&Domain{}, "id = ?", d.ID).Error
	}); err != nil {
		if errors.Is(err, ErrPrimaryInUse) {
			return errutil.Conflict("promote another domain before deleting the primary one", err)
		}
		loggerFrom(ctx).Error("failed to delete domain", zap.String("domain_id", id), zap.Error(err))
		return errutil.Internal("failed to delete domain", err)
	}

	s.evict(ctx, d.Hostname)
	loggerFrom(ctx).Info("domain deleted", zap.String("domain_id", d.ID), zap.String("domain", d.Hostname))
	return nil
}

type VerifyResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Domain  *Domain `json:"domain"`
}

// Verify looks up the TXT record of the domain and marks it verified when it
// carries the verification code. A missing record is reported in the result,
// not as an error.
func (s *Service) Verify(ctx context.Context, id string) (*VerifyResult, error) {
	zapLog := loggerFrom(ctx).With(zap.String("domain_id", id))

	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.Verified {
		return &VerifyResult{
			Success: true,
			Message: fmt.Sprintf("domain %s already verified", d.Hostname),
			Domain:  d,
		}, nil
	}

	if s.verifier == nil {
		return nil, errutil.New(errutil.StatusServiceUnavailable, "domain verification is not configured")
	}

	if err := s.verifier.Verify(ctx, d.Hostname, d.VerificationCode); err != nil {
		zapLog.Warn("DNS verification failed", zap.String("domain", d.Hostname), zap.Error(err))
		return &VerifyResult{
			Success: false,
			Message: fmt.Sprintf("dns verification failed: %v", err),
			Domain:  d,
		}, nil
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked Domain
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", d.ID).
			Take(&locked).Error; err != nil {
			return err
		}
		if locked.Verified {
			return nil
		}
		return tx.Model(&Domain{}).Where("id = ?", d.ID).Updates(map[string]any{
			"verified":    true,
			"verified_at": s.now(),
		}).Error
	}); err != nil {
		zapLog.Error("failed to mark domain verified", zap.Error(err))
		return nil, errutil.Internal("failed to update domain", err)
	}

	zapLog.Info("Domain verified successfully",
		zap.String("tenant_id", d.TenantID),
		zap.String("domain", d.Hostname),
	)

	d, err = s.Get(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Success: true,
		Message: fmt.Sprintf("domain %s verified successfully", d.Hostname),
		Domain:  d,
	}, nil
}

// Resolution is the routing answer for an inbound hostname.
type Resolution struct {
	DomainID   string `json:"domain_id"`
	Domain     string `json:"domain"`
	TenantID   string `json:"tenant_id"`
	SchemaName string `json:"schema_name"`
	IsPrimary  bool   `json:"is_primary"`
	IsActive   bool   `json:"is_active"`
}

// Resolve maps a Host header value (port allowed) to its tenant. Answers are
// cached in redis when a client is configured.
func (s *Service) Resolve(ctx context.Context, hostport string) (*Resolution, error) {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host, err := NormalizeHostname(host)
	if err != nil {
		return nil, err
	}

	if r, ok := s.cached(ctx, host); ok {
		return r, nil
	}

	d, err := s.repo.FindOne(ctx, &Domain{Hostname: host})
	if err != nil {
		loggerFrom(ctx).Error("failed to resolve domain", zap.String("domain", host), zap.Error(err))
		return nil, errutil.Internal("failed to resolve domain", err)
	}
	if d == nil {
		return nil, errutil.NotFound(fmt.Sprintf("no tenant serves %s", host), ErrDomainNotFound)
	}

	t, err := s.tenants.Get(ctx, d.TenantID)
	if err != nil {
		return nil, err
	}

	r := &Resolution{
		DomainID:   d.ID,
		Domain:     d.Hostname,
		TenantID:   t.ID,
		SchemaName: t.IsolationKey(),
		IsPrimary:  d.IsPrimary,
		IsActive:   t.IsActive,
	}
	s.store(ctx, host, r)
	return r, nil
}

func (s *Service) cached(ctx context.Context, host string) (*Resolution, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, rediskey.BuildTenantDomainKey(host)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			loggerFrom(ctx).Warn("domain cache read failed", zap.String("domain", host), zap.Error(err))
		}
		return nil, false
	}

	var r Resolution
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func (s *Service) store(ctx context.Context, host string, r *Resolution) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, rediskey.BuildTenantDomainKey(host), raw, s.cacheTTL).Err(); err != nil {
		loggerFrom(ctx).Warn("domain cache write failed", zap.String("domain", host), zap.Error(err))
	}
}

func (s *Service) evict(ctx context.Context, hosts ...string) {
	if s.cache == nil || len(hosts) == 0 {
		return
	}

	keys := make([]string, 0, len(hosts))
	for _, h := range hosts {
		keys = append(keys, rediskey.BuildTenantDomainKey(h))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		loggerFrom(ctx).Warn("domain cache eviction failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// EvictTenant drops cached resolutions of every domain of a tenant, e.g.
// after its active flag changed.
func (s *Service) EvictTenant(ctx context.Context, tenantID string) {
	s.evictTenant(ctx, tenantID)
}

func (s *Service) evictTenant(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}

	var hosts []string
	if err := s.db.WithContext(ctx).Model(&Domain{}).
		Where("tenant_id = ?", tenantID).
		Pluck("domain", &hosts).Error; err != nil {
		loggerFrom(ctx).Warn("failed to load domains for cache eviction", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	s.evict(ctx, hosts...)
}
