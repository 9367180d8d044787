package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"crm-auth/internal/domain"
	"crm-auth/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateSubdomain(t *testing.T) {
	valid := []string{"acme", "a1c", "my-company", "abc", strings.Repeat("a", 63)}
	for _, s := range valid {
		assert.NoError(t, ValidateSubdomain(s), s)
	}

	invalid := []string{
		"ab",                      // 太短
		strings.Repeat("a", 64),   // 太长
		"-acme",                   // 连字符开头
		"acme-",                   // 连字符结尾
		"ac_me",                   // 下划线
		"Acme!",                   // 非法字符
		"admin", "api", "www",     // 保留
		"staging", "cdn", "demo",  // 保留
	}
	for _, s := range invalid {
		err := ValidateSubdomain(s)
		require.Error(t, err, s)
		var subErr *SubdomainError
		assert.True(t, errors.As(err, &subErr), s)
	}

	// 大写输入归一化后通过格式校验
	assert.NoError(t, ValidateSubdomain("ACME"))
}

func validRequest() RegistrationRequest {
	return RegistrationRequest{
		CompanyName:    "Acme Corp",
		Subdomain:      "acme",
		AdminEmail:     "owner@acme.com",
		AdminPassword:  "Secret123!",
		AdminFirstName: "Ada",
		AdminLastName:  "Admin",
		Plan:           "PRO",
	}
}

func newRegistrationFixture() (*RegistrationService, *MockTenantsRepository, *MockRolesRepository, *fakePublisher) {
	tenantsRepo := &MockTenantsRepository{}
	rolesRepo := &MockRolesRepository{}
	publisher := &fakePublisher{}
	svc := NewRegistrationService(tenantsRepo, rolesRepo, publisher, zap.NewNop())
	return svc, tenantsRepo, rolesRepo, publisher
}

func TestRegister_AcceptsAndPublishes(t *testing.T) {
	svc, tenantsRepo, rolesRepo, publisher := newRegistrationFixture()

	tenantsRepo.On("FindBySubdomain", mock.Anything, "acme").
		Return(nil, fmt.Errorf("%w: subdomain=acme", repository.ErrTenantNotFound))
	rolesRepo.On("GetRoleByName", mock.Anything, domain.RoleAdmin).
		Return(&domain.Role{RoleID: "role-1", Name: domain.RoleAdmin, IsSystem: true}, nil)
	tenantsRepo.On("Create", mock.Anything, mock.MatchedBy(func(tenant *domain.Tenant) bool {
		return tenant.Subdomain == "acme" && tenant.Status == domain.TenantStatusProvisioning
	})).Return("7b6a3a39-8fdc-4fbb-9b39-1ad1f0ae2f11", nil)

	result, err := svc.Register(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusProvisioning, result.Status)
	assert.Equal(t, "acme", result.Subdomain)

	require.Len(t, publisher.published, 1)
	ev := publisher.published[0]
	assert.Equal(t, result.TenantID, ev.TenantID)
	assert.Equal(t, "owner@acme.com", ev.AdminEmail)
	// 事件绝不携带明文密码
	assert.NotEqual(t, "Secret123!", ev.AdminPasswordHash)
	assert.True(t, strings.HasPrefix(ev.AdminPasswordHash, "$2"))
}

func TestRegister_DuplicateSubdomain(t *testing.T) {
	svc, tenantsRepo, _, publisher := newRegistrationFixture()

	tenantsRepo.On("FindBySubdomain", mock.Anything, "acme").
		Return(&domain.Tenant{TenantID: "existing", Subdomain: "acme"}, nil)

	_, err := svc.Register(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrTenantAlreadyExists)
	assert.Empty(t, publisher.published)
}

func TestRegister_ReservedSubdomainRejected(t *testing.T) {
	svc, _, _, publisher := newRegistrationFixture()

	req := validRequest()
	req.Subdomain = "admin"
	_, err := svc.Register(context.Background(), req)

	var subErr *SubdomainError
	require.ErrorAs(t, err, &subErr)
	assert.Empty(t, publisher.published)
}

func TestRegister_MissingBootstrapRole(t *testing.T) {
	svc, tenantsRepo, rolesRepo, _ := newRegistrationFixture()

	tenantsRepo.On("FindBySubdomain", mock.Anything, "acme").
		Return(nil, fmt.Errorf("%w: subdomain=acme", repository.ErrTenantNotFound))
	rolesRepo.On("GetRoleByName", mock.Anything, domain.RoleAdmin).
		Return(nil, fmt.Errorf("%w: role_name=%s", repository.ErrRoleNotFound, domain.RoleAdmin))

	_, err := svc.Register(context.Background(), validRequest())
	require.ErrorIs(t, err, repository.ErrRoleNotFound)
	tenantsRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_PublishFailureCompensates(t *testing.T) {
	svc, tenantsRepo, rolesRepo, publisher := newRegistrationFixture()
	publisher.err = errors.New("stream unavailable")

	tenantsRepo.On("FindBySubdomain", mock.Anything, "acme").
		Return(nil, fmt.Errorf("%w: subdomain=acme", repository.ErrTenantNotFound))
	rolesRepo.On("GetRoleByName", mock.Anything, domain.RoleAdmin).
		Return(&domain.Role{RoleID: "role-1", Name: domain.RoleAdmin}, nil)
	tenantsRepo.On("Create", mock.Anything, mock.Anything).
		Return("7b6a3a39-8fdc-4fbb-9b39-1ad1f0ae2f11", nil)
	tenantsRepo.On("Delete", mock.Anything, "7b6a3a39-8fdc-4fbb-9b39-1ad1f0ae2f11").
		Return(nil)

	_, err := svc.Register(context.Background(), validRequest())
	require.Error(t, err)
	tenantsRepo.AssertCalled(t, "Delete", mock.Anything, "7b6a3a39-8fdc-4fbb-9b39-1ad1f0ae2f11")
}

func TestRegisterMaster_AllowsReservedSubdomain(t *testing.T) {
	svc, tenantsRepo, rolesRepo, publisher := newRegistrationFixture()

	tenantsRepo.On("FindBySubdomain", mock.Anything, MasterTenantSubdomain).
		Return(nil, fmt.Errorf("%w: subdomain=admin", repository.ErrTenantNotFound))
	rolesRepo.On("GetRoleByName", mock.Anything, domain.RoleAdmin).
		Return(&domain.Role{RoleID: "role-1", Name: domain.RoleAdmin}, nil)
	tenantsRepo.On("Create", mock.Anything, mock.Anything).
		Return("11111111-2222-3333-4444-555555555555", nil)

	req := validRequest()
	req.Subdomain = MasterTenantSubdomain
	result, err := svc.RegisterMaster(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, MasterTenantSubdomain, result.Subdomain)
	require.Len(t, publisher.published, 1)
}
