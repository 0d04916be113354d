package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuehq/venue-sdk/pkg/composables"
)

func TestTenantFromHeader(t *testing.T) {
	tenantID := uuid.New()
	actorID := uuid.New()

	var gotTenant, gotActor uuid.UUID
	handler := TenantFromHeader()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotTenant, err = composables.UseTenantID(r.Context())
		require.NoError(t, err)
		gotActor, _ = composables.UseActorID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/pos/api/orders", nil)
	req.Header.Set("X-Tenant-ID", tenantID.String())
	req.Header.Set("X-Actor-ID", actorID.String())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, gotTenant)
	assert.Equal(t, actorID, gotActor)
}

func TestTenantFromHeaderRejectsMissingOrInvalid(t *testing.T) {
	handler := TenantFromHeader()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a valid tenant")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pos/api/orders", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	req := httptest.NewRequest(http.MethodGet, "/pos/api/orders", nil)
	req.Header.Set("X-Tenant-ID", "not-a-uuid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
