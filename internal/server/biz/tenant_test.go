package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/looplj/memvault/internal/crypto"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/store/storetest"
)

func TestProvisionPublishesDerivationContract(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()

	tenant, err := svcs.Tenant.Provision(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, tenant.Salt, 32, "16 random bytes, hex encoded")
	require.Equal(t, crypto.DefaultKDFIterations, tenant.KDFIterations)
	require.Equal(t, objects.TenantStatusActive, tenant.Status)

	other, err := svcs.Tenant.Provision(ctx, "globex")
	require.NoError(t, err)
	require.NotEqual(t, tenant.Salt, other.Salt)

	_, err = svcs.Tenant.Provision(ctx, "")
	require.Error(t, err)
}

func TestTenantSuspendAndCacheInvalidation(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()

	tenant, err := svcs.Tenant.Provision(ctx, "acme")
	require.NoError(t, err)

	// Warm the cache, then suspend.
	_, err = svcs.Tenant.RequireActive(ctx, tenant.ID)
	require.NoError(t, err)

	require.NoError(t, svcs.Tenant.Suspend(ctx, tenant.ID))

	_, err = svcs.Tenant.RequireActive(ctx, tenant.ID)
	require.ErrorIs(t, err, ErrTenantSuspended)

	require.NoError(t, svcs.Tenant.Activate(ctx, tenant.ID))

	_, err = svcs.Tenant.RequireActive(ctx, tenant.ID)
	require.NoError(t, err)
}
