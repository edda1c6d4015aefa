package biz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"

	"go.uber.org/fx"
	"golang.org/x/sync/singleflight"

	"github.com/looplj/memvault/internal/crypto"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/pkg/xcache"
	"github.com/looplj/memvault/internal/store"
)

type TenantServiceParams struct {
	fx.In

	Store *store.Client
	Cache xcache.Cache[*objects.Tenant]
}

func NewTenantService(params TenantServiceParams) *TenantService {
	return &TenantService{
		AbstractService: &AbstractService{db: params.Store},
		cache:           params.Cache,
	}
}

// TenantService provisions tenants and publishes their key-derivation
// contract. It holds structural rows only; the server never sees or
// stores tenant keys.
type TenantService struct {
	*AbstractService

	cache xcache.Cache[*objects.Tenant]
	group singleflight.Group
}

// Provision creates a tenant with a fresh random salt and the current
// default iteration count. Clients derive their content key from
// passphrase + salt + iterations; the server only records the contract.
func (s *TenantService) Provision(ctx context.Context, name string) (*objects.Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	tenant, err := s.storeFromContext(ctx).Tenants.Create(ctx, name, hex.EncodeToString(saltBytes), crypto.DefaultKDFIterations)
	if err != nil {
		return nil, fmt.Errorf("failed to provision tenant: %w", err)
	}

	log.Info(ctx, "tenant provisioned",
		log.Int("tenant_id", tenant.ID),
		log.String("name", tenant.Name),
	)

	return toTenant(tenant), nil
}

// Get returns the structural tenant row, served from cache when warm.
// Concurrent cold lookups for the same tenant collapse to one query.
func (s *TenantService) Get(ctx context.Context, id int) (*objects.Tenant, error) {
	key := tenantCacheKey(id)

	if cached, err := s.cache.Get(ctx, key); err == nil && cached != nil {
		return cached, nil
	}

	value, err, _ := s.group.Do(key, func() (any, error) {
		row, err := s.storeFromContext(ctx).Tenants.ByID(ctx, id)
		if err != nil {
			return nil, err
		}

		tenant := toTenant(row)

		if err := s.cache.Set(ctx, key, tenant); err != nil {
			log.Warn(ctx, "failed to cache tenant", log.Int("tenant_id", id), log.Cause(err))
		}

		return tenant, nil
	})
	if err != nil {
		return nil, err
	}

	//nolint:forcetypeassert // The group only ever stores *objects.Tenant.
	return value.(*objects.Tenant), nil
}

// RequireActive returns the tenant or ErrTenantSuspended.
func (s *TenantService) RequireActive(ctx context.Context, id int) (*objects.Tenant, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if tenant.Status != objects.TenantStatusActive {
		return nil, fmt.Errorf("tenant %d: %w", id, ErrTenantSuspended)
	}

	return tenant, nil
}

func (s *TenantService) List(ctx context.Context) ([]*objects.Tenant, error) {
	rows, err := s.storeFromContext(ctx).Tenants.List(ctx)
	if err != nil {
		return nil, err
	}

	tenants := make([]*objects.Tenant, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, toTenant(row))
	}

	return tenants, nil
}

func (s *TenantService) ListActive(ctx context.Context) ([]*objects.Tenant, error) {
	rows, err := s.storeFromContext(ctx).Tenants.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	tenants := make([]*objects.Tenant, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, toTenant(row))
	}

	return tenants, nil
}

func (s *TenantService) Suspend(ctx context.Context, id int) error {
	return s.setStatus(ctx, id, objects.TenantStatusSuspended)
}

func (s *TenantService) Activate(ctx context.Context, id int) error {
	return s.setStatus(ctx, id, objects.TenantStatusActive)
}

func (s *TenantService) setStatus(ctx context.Context, id int, status objects.TenantStatus) error {
	if err := s.storeFromContext(ctx).Tenants.UpdateStatus(ctx, id, string(status)); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, tenantCacheKey(id)); err != nil {
		log.Warn(ctx, "failed to invalidate tenant cache", log.Int("tenant_id", id), log.Cause(err))
	}

	log.Info(ctx, "tenant status changed",
		log.Int("tenant_id", id),
		log.String("status", string(status)),
	)

	return nil
}

func tenantCacheKey(id int) string {
	return "tenant:" + strconv.Itoa(id)
}

func toTenant(row *store.Tenant) *objects.Tenant {
	return &objects.Tenant{
		ID:            row.ID,
		Name:          row.Name,
		Salt:          row.Salt,
		KDFIterations: row.KDFIterations,
		Status:        objects.TenantStatus(row.Status),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}
