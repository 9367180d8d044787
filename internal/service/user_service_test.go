package service

import (
	"context"
	"strings"
	"testing"

	"crm-auth/internal/domain"
	"crm-auth/internal/repository"
	"crm-auth/internal/tenantctx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newUserFixture(t *testing.T) (*UserService, *MockRolesRepository, *MockUsersRepository, *fakeBinder, *fakeKV, context.Context) {
	t.Helper()
	rolesRepo := &MockRolesRepository{}
	usersRepo := &MockUsersRepository{}
	binder := &fakeBinder{}
	kv := newFakeKV()
	permissions := NewPermissionService(rolesRepo, kv, zap.NewNop())
	svc := NewUserService(rolesRepo, usersRepo, binder, permissions, zap.NewNop())

	ctx, err := tenantctx.WithTenant(context.Background(), testTenantID)
	require.NoError(t, err)
	return svc, rolesRepo, usersRepo, binder, kv, ctx
}

func TestCreateUser(t *testing.T) {
	svc, rolesRepo, usersRepo, binder, _, ctx := newUserFixture(t)

	rolesRepo.On("GetRolesByIDs", mock.Anything, []string{"role-1"}).
		Return([]*domain.Role{{RoleID: "role-1", Name: "SUPPORT"}}, nil)
	usersRepo.On("ExistsByEmail", mock.Anything, mock.Anything, "eve@acme.com").
		Return(false, nil)
	usersRepo.On("Create", mock.Anything, mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "eve@acme.com" &&
			u.Enabled &&
			!u.Locked &&
			strings.HasPrefix(u.PasswordHash, "$2")
	})).Return("user-9", nil)
	usersRepo.On("GetByID", mock.Anything, mock.Anything, "user-9").
		Return(&domain.User{UserID: "user-9", Email: "eve@acme.com", Enabled: true, RoleIDs: []string{"role-1"}}, nil)

	user, err := svc.CreateUser(ctx, CreateUserRequest{
		FirstName: "Eve",
		LastName:  "Engineer",
		Email:     "eve@acme.com",
		Password:  "s3cret-pass",
		RoleIDs:   []string{"role-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "user-9", user.UserID)
	assert.True(t, binder.last.released, "bound connection must be released")
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	svc, _, usersRepo, binder, _, ctx := newUserFixture(t)

	usersRepo.On("ExistsByEmail", mock.Anything, mock.Anything, "taken@acme.com").
		Return(true, nil)

	_, err := svc.CreateUser(ctx, CreateUserRequest{Email: "taken@acme.com", Password: "s3cret-pass"})
	require.ErrorIs(t, err, ErrEmailAlreadyExists)
	usersRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, binder.last.released)
}

func TestCreateUser_UnknownRole(t *testing.T) {
	svc, rolesRepo, usersRepo, _, _, ctx := newUserFixture(t)

	// 两个 id 只解析出一个角色
	rolesRepo.On("GetRolesByIDs", mock.Anything, []string{"role-1", "role-ghost"}).
		Return([]*domain.Role{{RoleID: "role-1", Name: "SUPPORT"}}, nil)

	_, err := svc.CreateUser(ctx, CreateUserRequest{
		Email:    "eve@acme.com",
		Password: "s3cret-pass",
		RoleIDs:  []string{"role-1", "role-ghost"},
	})
	require.ErrorIs(t, err, repository.ErrRoleNotFound)
	usersRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateUser_NoTenantContext(t *testing.T) {
	svc, _, _, _, _, _ := newUserFixture(t)

	_, err := svc.CreateUser(context.Background(), CreateUserRequest{Email: "eve@acme.com", Password: "s3cret-pass"})
	require.ErrorIs(t, err, tenantctx.ErrNotSet)
}

func TestUpdateUser_EmailConflict(t *testing.T) {
	svc, _, usersRepo, _, _, ctx := newUserFixture(t)

	usersRepo.On("GetByID", mock.Anything, mock.Anything, "user-9").
		Return(&domain.User{UserID: "user-9", Email: "eve@acme.com", Enabled: true}, nil)
	usersRepo.On("ExistsByEmail", mock.Anything, mock.Anything, "taken@acme.com").
		Return(true, nil)

	_, err := svc.UpdateUser(ctx, "user-9", UpdateUserRequest{Email: "taken@acme.com"})
	require.ErrorIs(t, err, ErrEmailAlreadyExists)
	usersRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateUser_SameEmailSkipsUniquenessCheck(t *testing.T) {
	svc, _, usersRepo, _, _, ctx := newUserFixture(t)

	usersRepo.On("GetByID", mock.Anything, mock.Anything, "user-9").
		Return(&domain.User{UserID: "user-9", Email: "eve@acme.com", Enabled: true}, nil)
	usersRepo.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.UserID == "user-9" && u.FirstName == "Evelyn"
	})).Return(nil)

	_, err := svc.UpdateUser(ctx, "user-9", UpdateUserRequest{FirstName: "Evelyn", Email: "EVE@acme.com"})
	require.NoError(t, err)
	usersRepo.AssertNotCalled(t, "ExistsByEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssignRoles_InvalidatesPermissionCache(t *testing.T) {
	svc, rolesRepo, usersRepo, _, kv, ctx := newUserFixture(t)

	cacheKey := permCacheKeyPrefix + "user-9"
	require.NoError(t, kv.Set(ctx, cacheKey, `[]`, permCacheTTL))

	rolesRepo.On("GetRolesByIDs", mock.Anything, []string{"role-2"}).
		Return([]*domain.Role{{RoleID: "role-2", Name: "AUDITOR"}}, nil)
	usersRepo.On("UpdateRoles", mock.Anything, mock.Anything, "user-9", []string{"role-2"}).
		Return(nil)
	usersRepo.On("GetByID", mock.Anything, mock.Anything, "user-9").
		Return(&domain.User{UserID: "user-9", Email: "eve@acme.com", RoleIDs: []string{"role-2"}}, nil)

	user, err := svc.AssignRoles(ctx, "user-9", []string{"role-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"role-2"}, []string(user.RoleIDs))

	_, err = kv.Get(ctx, cacheKey)
	assert.Error(t, err, "stale permission cache entry must be gone")
	usersRepo.AssertCalled(t, "UpdateRoles", mock.Anything, mock.Anything, "user-9", []string{"role-2"})
}

func TestDeactivateUser_LocksAndInvalidates(t *testing.T) {
	svc, _, usersRepo, binder, kv, ctx := newUserFixture(t)

	cacheKey := permCacheKeyPrefix + "user-9"
	require.NoError(t, kv.Set(ctx, cacheKey, `[]`, permCacheTTL))

	usersRepo.On("GetByID", mock.Anything, mock.Anything, "user-9").
		Return(&domain.User{UserID: "user-9", Email: "eve@acme.com", Enabled: true}, nil)
	usersRepo.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.UserID == "user-9" && !u.Enabled && u.Locked
	})).Return(nil)

	user, err := svc.DeactivateUser(ctx, "user-9")
	require.NoError(t, err)
	assert.False(t, user.Enabled)
	assert.True(t, user.Locked)
	assert.True(t, binder.last.released)

	_, err = kv.Get(ctx, cacheKey)
	assert.Error(t, err)
}

func TestActivateUser_UnlocksAccount(t *testing.T) {
	svc, _, usersRepo, _, _, ctx := newUserFixture(t)

	usersRepo.On("GetByID", mock.Anything, mock.Anything, "user-9").
		Return(&domain.User{UserID: "user-9", Email: "eve@acme.com", Enabled: false, Locked: true}, nil)
	usersRepo.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Enabled && !u.Locked
	})).Return(nil)

	user, err := svc.ActivateUser(ctx, "user-9")
	require.NoError(t, err)
	assert.True(t, user.Enabled)
	assert.False(t, user.Locked)
}

func TestDeleteUser_SoftDeletes(t *testing.T) {
	svc, _, usersRepo, _, _, ctx := newUserFixture(t)

	usersRepo.On("GetByID", mock.Anything, mock.Anything, "user-9").
		Return(&domain.User{UserID: "user-9", Email: "eve@acme.com", Enabled: true}, nil)
	usersRepo.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return !u.Enabled && u.Locked
	})).Return(nil)

	require.NoError(t, svc.DeleteUser(ctx, "user-9"))
	usersRepo.AssertCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestListUsers(t *testing.T) {
	svc, _, usersRepo, _, _, ctx := newUserFixture(t)

	usersRepo.On("List", mock.Anything, mock.Anything, "eve", 1, 50).
		Return([]*domain.User{{UserID: "user-9", Email: "eve@acme.com"}}, 1, nil)

	users, total, err := svc.ListUsers(ctx, "eve", 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "user-9", users[0].UserID)
}
