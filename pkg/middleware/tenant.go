package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/configuration"
	"github.com/venuehq/venue-sdk/pkg/httpapi"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

// TenantFromHeader resolves the tenant and actor from the configured headers.
// Authentication happens upstream; this substrate only requires that every
// API request arrives tenant-scoped. The actor header is optional for reads.
func TenantFromHeader() mux.MiddlewareFunc {
	conf := configuration.Use()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Operational surfaces (metrics, debug) are not tenant-scoped.
			if !strings.HasPrefix(r.URL.Path, "/pos/api") {
				next.ServeHTTP(w, r)
				return
			}

			raw := r.Header.Get(conf.TenantIDHeader)
			if raw == "" {
				_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation,
					conf.TenantIDHeader+" header is required", nil)
				return
			}
			tenantID, err := uuid.Parse(raw)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation,
					conf.TenantIDHeader+" header is not a valid uuid", nil)
				return
			}

			ctx := composables.WithTenantID(r.Context(), tenantID)

			if rawActor := r.Header.Get(conf.ActorIDHeader); rawActor != "" {
				actorID, err := uuid.Parse(rawActor)
				if err != nil {
					_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation,
						conf.ActorIDHeader+" header is not a valid uuid", nil)
					return
				}
				ctx = composables.WithActorID(ctx, actorID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
