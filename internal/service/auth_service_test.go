package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crm-auth/internal/auth"
	"crm-auth/internal/config"
	"crm-auth/internal/domain"
	"crm-auth/internal/repository"
	"crm-auth/internal/tenantctx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testJwtService() *auth.JwtService {
	return auth.NewJwtService(config.JWTConfig{
		Secret:          "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
}

func newAuthFixture() (*AuthService, *MockTenantsRepository, *MockRolesRepository, *MockUsersRepository, *fakeBinder) {
	tenantsRepo := &MockTenantsRepository{}
	rolesRepo := &MockRolesRepository{}
	usersRepo := &MockUsersRepository{}
	binder := &fakeBinder{}
	svc := NewAuthService(tenantsRepo, rolesRepo, usersRepo, binder, testJwtService(), zap.NewNop())
	return svc, tenantsRepo, rolesRepo, usersRepo, binder
}

func activeTenant() *domain.Tenant {
	return &domain.Tenant{
		TenantID:  testTenantID,
		Name:      "Acme Corp",
		Subdomain: "acme",
		Status:    domain.TenantStatusActive,
	}
}

func enabledUser(passwordHash string) *domain.User {
	return &domain.User{
		UserID:       "user-1",
		Email:        "owner@acme.com",
		PasswordHash: passwordHash,
		Enabled:      true,
		RoleIDs:      []string{"role-1"},
	}
}

func tenantScoped(t *testing.T) context.Context {
	ctx, err := tenantctx.WithTenant(context.Background(), testTenantID)
	require.NoError(t, err)
	return ctx
}

func TestLogin_Success(t *testing.T) {
	svc, tenantsRepo, rolesRepo, usersRepo, binder := newAuthFixture()

	hash, err := auth.HashPassword("Secret123!")
	require.NoError(t, err)

	tenantsRepo.On("FindByID", mock.Anything, testTenantID).Return(activeTenant(), nil)
	usersRepo.On("GetByEmail", mock.Anything, mock.Anything, "owner@acme.com").
		Return(enabledUser(hash), nil)
	rolesRepo.On("GetRolesByIDs", mock.Anything, []string{"role-1"}).
		Return([]*domain.Role{{RoleID: "role-1", Name: domain.RoleAdmin}}, nil)

	resp, err := svc.Login(tenantScoped(t), "owner@acme.com", "Secret123!")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, testTenantID, resp.TenantID)
	assert.Equal(t, []string{domain.RoleAdmin}, resp.Roles)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	require.NotNil(t, binder.last)
	assert.True(t, binder.last.released)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, tenantsRepo, _, usersRepo, _ := newAuthFixture()

	hash, err := auth.HashPassword("Secret123!")
	require.NoError(t, err)

	tenantsRepo.On("FindByID", mock.Anything, testTenantID).Return(activeTenant(), nil)
	usersRepo.On("GetByEmail", mock.Anything, mock.Anything, "owner@acme.com").
		Return(enabledUser(hash), nil)

	_, err = svc.Login(tenantScoped(t), "owner@acme.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_UnknownUserLooksLikeBadCredentials(t *testing.T) {
	svc, tenantsRepo, _, usersRepo, _ := newAuthFixture()

	tenantsRepo.On("FindByID", mock.Anything, testTenantID).Return(activeTenant(), nil)
	usersRepo.On("GetByEmail", mock.Anything, mock.Anything, "ghost@acme.com").
		Return(nil, fmt.Errorf("%w: email=ghost@acme.com", repository.ErrUserNotFound))

	_, err := svc.Login(tenantScoped(t), "ghost@acme.com", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_SuspendedTenantRejected(t *testing.T) {
	svc, tenantsRepo, _, usersRepo, _ := newAuthFixture()

	suspended := activeTenant()
	suspended.Status = domain.TenantStatusSuspended
	tenantsRepo.On("FindByID", mock.Anything, testTenantID).Return(suspended, nil)

	_, err := svc.Login(tenantScoped(t), "owner@acme.com", "Secret123!")
	require.ErrorIs(t, err, ErrTenantNotActive)
	usersRepo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_DisabledAccountRejected(t *testing.T) {
	svc, tenantsRepo, _, usersRepo, _ := newAuthFixture()

	hash, err := auth.HashPassword("Secret123!")
	require.NoError(t, err)
	user := enabledUser(hash)
	user.Enabled = false

	tenantsRepo.On("FindByID", mock.Anything, testTenantID).Return(activeTenant(), nil)
	usersRepo.On("GetByEmail", mock.Anything, mock.Anything, "owner@acme.com").Return(user, nil)

	_, err = svc.Login(tenantScoped(t), "owner@acme.com", "Secret123!")
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLogin_WithoutTenantContext(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture()

	_, err := svc.Login(context.Background(), "owner@acme.com", "Secret123!")
	require.ErrorIs(t, err, tenantctx.ErrNotSet)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture()

	accessToken, err := testJwtService().GenerateAccessToken("owner@acme.com", testTenantID)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), accessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_Success(t *testing.T) {
	svc, tenantsRepo, rolesRepo, usersRepo, _ := newAuthFixture()

	hash, err := auth.HashPassword("Secret123!")
	require.NoError(t, err)

	refreshToken, err := testJwtService().GenerateRefreshToken("owner@acme.com", testTenantID)
	require.NoError(t, err)

	tenantsRepo.On("FindByID", mock.Anything, testTenantID).Return(activeTenant(), nil)
	usersRepo.On("GetByEmail", mock.Anything, mock.Anything, "owner@acme.com").
		Return(enabledUser(hash), nil)
	rolesRepo.On("GetRolesByIDs", mock.Anything, []string{"role-1"}).
		Return([]*domain.Role{{RoleID: "role-1", Name: domain.RoleAdmin}}, nil)

	resp, err := svc.Refresh(context.Background(), refreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
}

func TestResolveIdentity_SuspendedTenantInvalidatesTokens(t *testing.T) {
	svc, tenantsRepo, _, _, _ := newAuthFixture()

	accessToken, err := testJwtService().GenerateAccessToken("owner@acme.com", testTenantID)
	require.NoError(t, err)

	suspended := activeTenant()
	suspended.Status = domain.TenantStatusSuspended
	tenantsRepo.On("FindByID", mock.Anything, testTenantID).Return(suspended, nil)

	_, err = svc.ResolveIdentity(context.Background(), accessToken)
	require.ErrorIs(t, err, ErrTenantNotActive)
}

func TestResolveIdentity_GarbageToken(t *testing.T) {
	svc, _, _, _, _ := newAuthFixture()

	_, err := svc.ResolveIdentity(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
