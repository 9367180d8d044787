package tenantctx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantA = "7b6a3a39-8fdc-4fbb-9b39-1ad1f0ae2f11"
const tenantB = "11111111-2222-3333-4444-555555555555"

func TestWithTenant_SetAndGet(t *testing.T) {
	ctx, err := WithTenant(context.Background(), tenantA)
	require.NoError(t, err)

	id, ok := TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, tenantA, id)

	id, err = RequireTenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, tenantA, id)
}

func TestWithTenant_RejectsInvalidID(t *testing.T) {
	_, err := WithTenant(context.Background(), "")
	assert.Error(t, err)

	_, err = WithTenant(context.Background(), "not-a-uuid")
	assert.Error(t, err)
}

func TestRequireTenantID_Unset(t *testing.T) {
	_, err := RequireTenantID(context.Background())
	require.ErrorIs(t, err, ErrNotSet)
}

func TestClear_IsIdempotent(t *testing.T) {
	ctx, err := WithTenant(context.Background(), tenantA)
	require.NoError(t, err)

	cleared := Clear(ctx)
	_, ok := TenantID(cleared)
	assert.False(t, ok)

	// 已清除的 context 再清一次不出错
	again := Clear(cleared)
	_, ok = TenantID(again)
	assert.False(t, ok)

	// 原 context 不受影响
	id, ok := TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, tenantA, id)
}

func TestRunWithTenant_ScopesBinding(t *testing.T) {
	outer := context.Background()

	err := RunWithTenant(outer, tenantA, func(ctx context.Context) error {
		id, ok := TenantID(ctx)
		assert.True(t, ok)
		assert.Equal(t, tenantA, id)
		return nil
	})
	require.NoError(t, err)

	_, ok := TenantID(outer)
	assert.False(t, ok, "outer context must stay unbound")
}

func TestRunWithTenant_NestingRestoresOuterBinding(t *testing.T) {
	outer, err := WithTenant(context.Background(), tenantA)
	require.NoError(t, err)

	err = RunWithTenant(outer, tenantB, func(inner context.Context) error {
		id, _ := TenantID(inner)
		assert.Equal(t, tenantB, id)
		return nil
	})
	require.NoError(t, err)

	id, ok := TenantID(outer)
	assert.True(t, ok)
	assert.Equal(t, tenantA, id, "outer binding survives nested unit")
}

func TestRunWithTenant_ErrorStillRestoresOuterBinding(t *testing.T) {
	outer, err := WithTenant(context.Background(), tenantA)
	require.NoError(t, err)

	boom := errors.New("unit failed")
	err = RunWithTenant(outer, tenantB, func(inner context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	id, ok := TenantID(outer)
	assert.True(t, ok)
	assert.Equal(t, tenantA, id)
}
