package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"crm-auth/internal/domain"
	"crm-auth/internal/events"
	"crm-auth/internal/repository"
	"crm-auth/internal/store"

	"github.com/stretchr/testify/mock"
)

// MockTenantsRepository 是 repository.TenantsRepository 的 mock 实现
type MockTenantsRepository struct {
	mock.Mock
}

func (m *MockTenantsRepository) FindByID(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantsRepository) FindBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	args := m.Called(ctx, subdomain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantsRepository) Create(ctx context.Context, tenant *domain.Tenant) (string, error) {
	args := m.Called(ctx, tenant)
	return args.String(0), args.Error(1)
}

func (m *MockTenantsRepository) SetStatus(ctx context.Context, tenantID, status string) error {
	args := m.Called(ctx, tenantID, status)
	return args.Error(0)
}

func (m *MockTenantsRepository) SetProvisioned(ctx context.Context, tenantID, schemaName string) error {
	args := m.Called(ctx, tenantID, schemaName)
	return args.Error(0)
}

func (m *MockTenantsRepository) Delete(ctx context.Context, tenantID string) error {
	args := m.Called(ctx, tenantID)
	return args.Error(0)
}

func (m *MockTenantsRepository) List(ctx context.Context, filter repository.TenantFilters, page, size int) ([]*domain.Tenant, int, error) {
	args := m.Called(ctx, filter, page, size)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.Tenant), args.Int(1), args.Error(2)
}

// MockRolesRepository 是 repository.RolesRepository 的 mock 实现
type MockRolesRepository struct {
	mock.Mock
}

func (m *MockRolesRepository) GetRoleByID(ctx context.Context, roleID string) (*domain.Role, error) {
	args := m.Called(ctx, roleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *MockRolesRepository) GetRoleByName(ctx context.Context, roleName string) (*domain.Role, error) {
	args := m.Called(ctx, roleName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Role), args.Error(1)
}

func (m *MockRolesRepository) GetRolesByIDs(ctx context.Context, roleIDs []string) ([]*domain.Role, error) {
	args := m.Called(ctx, roleIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Role), args.Error(1)
}

func (m *MockRolesRepository) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Role), args.Error(1)
}

func (m *MockRolesRepository) CreateRole(ctx context.Context, role *domain.Role) (string, error) {
	args := m.Called(ctx, role)
	return args.String(0), args.Error(1)
}

func (m *MockRolesRepository) UpdateRole(ctx context.Context, roleID string, role *domain.Role) error {
	args := m.Called(ctx, roleID, role)
	return args.Error(0)
}

func (m *MockRolesRepository) DeleteRole(ctx context.Context, roleID string) error {
	args := m.Called(ctx, roleID)
	return args.Error(0)
}

func (m *MockRolesRepository) ListPermissionsForRoles(ctx context.Context, roleIDs []string) ([]*domain.Permission, error) {
	args := m.Called(ctx, roleIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Permission), args.Error(1)
}

func (m *MockRolesRepository) ListPermissions(ctx context.Context) ([]*domain.Permission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Permission), args.Error(1)
}

func (m *MockRolesRepository) EnsurePermission(ctx context.Context, resource, action, name string) (string, error) {
	args := m.Called(ctx, resource, action, name)
	return args.String(0), args.Error(1)
}

func (m *MockRolesRepository) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	args := m.Called(ctx, roleID, permissionIDs)
	return args.Error(0)
}

// MockUsersRepository 是 repository.UsersRepository 的 mock 实现
type MockUsersRepository struct {
	mock.Mock
}

func (m *MockUsersRepository) GetByEmail(ctx context.Context, q repository.Querier, email string) (*domain.User, error) {
	args := m.Called(ctx, q, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUsersRepository) GetByID(ctx context.Context, q repository.Querier, userID string) (*domain.User, error) {
	args := m.Called(ctx, q, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUsersRepository) ExistsByEmail(ctx context.Context, q repository.Querier, email string) (bool, error) {
	args := m.Called(ctx, q, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUsersRepository) List(ctx context.Context, q repository.Querier, search string, page, size int) ([]*domain.User, int, error) {
	args := m.Called(ctx, q, search, page, size)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*domain.User), args.Int(1), args.Error(2)
}

func (m *MockUsersRepository) Update(ctx context.Context, q repository.Querier, user *domain.User) error {
	args := m.Called(ctx, q, user)
	return args.Error(0)
}

func (m *MockUsersRepository) Create(ctx context.Context, q repository.Querier, user *domain.User) (string, error) {
	args := m.Called(ctx, q, user)
	return args.String(0), args.Error(1)
}

func (m *MockUsersRepository) UpdateRoles(ctx context.Context, q repository.Querier, userID string, roleIDs []string) error {
	args := m.Called(ctx, q, userID, roleIDs)
	return args.Error(0)
}

// fakePublisher 记录发布的事件，可注入失败
type fakePublisher struct {
	mu        sync.Mutex
	published []events.TenantCreated
	err       error
}

func (f *fakePublisher) Publish(ctx context.Context, ev events.TenantCreated) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ev)
	return "1-0", nil
}

// fakeProvisioner 可注入失败的 TenantProvisioner
type fakeProvisioner struct {
	createErr  error
	schemaName string
	dropped    []string
}

func (f *fakeProvisioner) CreateAndMigrate(ctx context.Context, tenantID string) (string, error) {
	if f.createErr != nil {
		return f.schemaName, f.createErr
	}
	return f.schemaName, nil
}

func (f *fakeProvisioner) Drop(ctx context.Context, schemaName string) error {
	f.dropped = append(f.dropped, schemaName)
	return nil
}

// fakeBoundConn / fakeBinder 绕过真实连接，供不触库的流程测试使用
type fakeBoundConn struct {
	released bool
}

func (f *fakeBoundConn) Conn() *sql.Conn { return nil }
func (f *fakeBoundConn) Release()        { f.released = true }

type fakeBinder struct {
	bindErr error
	last    *fakeBoundConn
}

func (f *fakeBinder) Bind(ctx context.Context, tenantID string) (BoundConn, error) {
	if f.bindErr != nil {
		return nil, f.bindErr
	}
	f.last = &fakeBoundConn{}
	return f.last, nil
}

// fakeKV 进程内 KV，实现 store.KV
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", store.ErrMiss
	}
	return val, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeKV) DelPattern(ctx context.Context, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = map[string]string{}
	return nil
}
