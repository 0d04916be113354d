package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/pkg/constants"
)

var (
	ErrNoTenant = errors.New("no tenant found in context")
	ErrNoActor  = errors.New("no actor found in context")
)

func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, tenantID)
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.TenantIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}

func WithActorID(ctx context.Context, actorID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.ActorIDKey, actorID)
}

func UseActorID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.ActorIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoActor
	}
	return id, nil
}
