package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := UseTenantID(ctx)
	assert.ErrorIs(t, err, ErrNoTenant)

	tenantID := uuid.New()
	ctx = WithTenantID(ctx, tenantID)

	got, err := UseTenantID(ctx)
	require.NoError(t, err)
	assert.Equal(t, tenantID, got)
}

func TestActorIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := UseActorID(ctx)
	assert.ErrorIs(t, err, ErrNoActor)

	actorID := uuid.New()
	got, err := UseActorID(WithActorID(ctx, actorID))
	require.NoError(t, err)
	assert.Equal(t, actorID, got)
}

func TestUsePoolMissing(t *testing.T) {
	t.Parallel()

	_, err := UsePool(context.Background())
	assert.ErrorIs(t, err, ErrNoPool)
}
