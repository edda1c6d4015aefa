package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/looplj/memvault/internal/store/storetest"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	require.NoError(t, VerifyPassword(hash, "hunter2"))
	require.Error(t, VerifyPassword(hash, "hunter3"))
}

func TestAdminAuthentication(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()

	hash, err := HashPassword("letmein")
	require.NoError(t, err)

	auth := NewAuthService(AuthServiceParams{
		Config: AuthConfig{
			SecretKey:         "test-secret",
			AdminPasswordHash: hash,
		},
		TenantService: svcs.Tenant,
	})

	_, err = auth.AuthenticateAdmin(ctx, "wrong")
	require.ErrorIs(t, err, ErrInvalidPassword)

	token, err := auth.AuthenticateAdmin(ctx, "letmein")
	require.NoError(t, err)
	require.NoError(t, auth.VerifyAdminToken(ctx, token))
	require.Error(t, auth.VerifyAdminToken(ctx, token+"x"))
}

func TestAgentTokenBinding(t *testing.T) {
	client := storetest.NewClient(t)
	svcs := NewServicesForTest(client)
	ctx := context.Background()
	tenant := provisionTenant(t, svcs)

	token, err := svcs.Auth.MintAgentToken(ctx, tenant.ID, "user-42")
	require.NoError(t, err)

	tenantID, userID, err := svcs.Auth.AuthenticateAgentToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, tenant.ID, tenantID)
	require.Equal(t, "user-42", userID)

	// An admin token is not a data-plane credential.
	hash, err := HashPassword("pw")
	require.NoError(t, err)

	admin := NewAuthService(AuthServiceParams{
		Config:        AuthConfig{SecretKey: "test-secret", AdminPasswordHash: hash},
		TenantService: svcs.Tenant,
	})

	adminToken, err := admin.AuthenticateAdmin(ctx, "pw")
	require.NoError(t, err)

	_, _, err = svcs.Auth.AuthenticateAgentToken(ctx, adminToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svcs.Auth.MintAgentToken(ctx, 9999, "user")
	require.Error(t, err)
}
