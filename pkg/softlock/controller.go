package softlock

import (
	"encoding/json"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/venuehq/venue-sdk/pkg/composables"
	"github.com/venuehq/venue-sdk/pkg/httpapi"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

// Controller exposes the advisory lock surface under /pos/api/locks.
type Controller struct {
	manager  *Manager
	basePath string
}

func NewController(manager *Manager) *Controller {
	return &Controller{
		manager:  manager,
		basePath: "/pos/api/locks",
	}
}

func (c *Controller) Key() string {
	return c.basePath
}

func (c *Controller) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.List).Methods(http.MethodGet)
	router.HandleFunc("", c.Acquire).Methods(http.MethodPost)
	router.HandleFunc("/clean", c.Clean).Methods(http.MethodPost)
	router.HandleFunc("/{id}/release", c.Release).Methods(http.MethodPost)
}

type acquireRequest struct {
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	LocationID *uuid.UUID `json:"locationId"`
	TTLSeconds int        `json:"ttlSeconds"`
}

func (r acquireRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EntityType, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.EntityID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.TTLSeconds, validation.Min(0)),
	)
}

func (c *Controller) Acquire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pool, err := composables.UsePool(ctx)
	if err != nil {
		_ = httpapi.WriteServiceError(w, serrors.NewInternalError(err))
		return
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "tenant is required", nil)
		return
	}
	actorID, err := composables.UseActorID(ctx)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "actor is required", nil)
		return
	}

	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, err.Error(), nil)
		return
	}

	lock, err := c.manager.Acquire(ctx, pool, AcquireParams{
		TenantID:   tenantID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		LocationID: req.LocationID,
		HolderID:   actorID,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}

	_ = httpapi.WriteJSON(w, http.StatusCreated, lock)
}

func (c *Controller) Release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pool, err := composables.UsePool(ctx)
	if err != nil {
		_ = httpapi.WriteServiceError(w, serrors.NewInternalError(err))
		return
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "tenant is required", nil)
		return
	}
	actorID, err := composables.UseActorID(ctx)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "actor is required", nil)
		return
	}

	lockID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid lock id", nil)
		return
	}

	if err := c.manager.Release(ctx, pool, tenantID, lockID, actorID, false); err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}

	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (c *Controller) Clean(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pool, err := composables.UsePool(ctx)
	if err != nil {
		_ = httpapi.WriteServiceError(w, serrors.NewInternalError(err))
		return
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "tenant is required", nil)
		return
	}

	cleaned, err := c.manager.CleanExpiredForTenant(ctx, pool, tenantID)
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}

	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]int64{"cleaned": cleaned})
}

func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	pool, err := composables.UsePool(ctx)
	if err != nil {
		_ = httpapi.WriteServiceError(w, serrors.NewInternalError(err))
		return
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "tenant is required", nil)
		return
	}

	filter := ListFilter{EntityType: r.URL.Query().Get("entityType")}
	if raw := r.URL.Query().Get("locationId"); raw != "" {
		locationID, err := uuid.Parse(raw)
		if err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid locationId", nil)
			return
		}
		filter.LocationID = &locationID
	}

	locks, err := c.manager.ListActive(ctx, pool, tenantID, filter)
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}

	_ = httpapi.WriteJSON(w, http.StatusOK, locks)
}
