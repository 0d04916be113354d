package controllers

import (
	"encoding/json"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/venuehq/venue-sdk/modules/orders/domain/order"
	"github.com/venuehq/venue-sdk/modules/orders/services"
	"github.com/venuehq/venue-sdk/pkg/configuration"
	"github.com/venuehq/venue-sdk/pkg/httpapi"
	"github.com/venuehq/venue-sdk/pkg/serrors"
)

// OrdersAPIController serves the point-of-sale orders API. Every mutation
// accepts a client request id header as its idempotency key; replays return
// the original response byte for byte.
type OrdersAPIController struct {
	svc      *services.OrderService
	basePath string
}

func NewOrdersAPIController(svc *services.OrderService) *OrdersAPIController {
	return &OrdersAPIController{
		svc:      svc,
		basePath: "/pos/api/orders",
	}
}

func (c *OrdersAPIController) Key() string {
	return c.basePath
}

func (c *OrdersAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.Create).Methods(http.MethodPost)
	router.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	router.HandleFunc("/{id}", c.Update).Methods(http.MethodPatch)
	router.HandleFunc("/{id}/lines", c.AddLine).Methods(http.MethodPost)
	router.HandleFunc("/{id}:pay", c.Pay).Methods(http.MethodPost)
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get(configuration.Use().ClientRequestIDHeader)
}

func orderIDFromPath(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

type createOrderRequest struct {
	TableLabel string `json:"tableLabel"`
	Notes      string `json:"notes"`
}

func (r createOrderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TableLabel, validation.Length(0, 64)),
		validation.Field(&r.Notes, validation.Length(0, 2048)),
	)
}

func (c *OrdersAPIController) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, err.Error(), nil)
		return
	}

	resp, err := c.svc.Create(r.Context(), idempotencyKey(r), order.CreateInput{
		TableLabel: req.TableLabel,
		Notes:      req.Notes,
	})
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}
	_ = httpapi.WriteRawJSON(w, http.StatusCreated, resp)
}

type addLineRequest struct {
	ExpectedVersion int64  `json:"expectedVersion"`
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	UnitPriceCents  int64  `json:"unitPriceCents"`
}

func (r addLineRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ExpectedVersion, validation.Required, validation.Min(1)),
		validation.Field(&r.SKU, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 256)),
		validation.Field(&r.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&r.UnitPriceCents, validation.Min(0)),
	)
}

func (c *OrdersAPIController) AddLine(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromPath(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid order id", nil)
		return
	}

	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, err.Error(), nil)
		return
	}

	resp, err := c.svc.AddLine(r.Context(), idempotencyKey(r), orderID, order.AddLineInput{
		ExpectedVersion: req.ExpectedVersion,
		SKU:             req.SKU,
		Name:            req.Name,
		Quantity:        req.Quantity,
		UnitPriceCents:  req.UnitPriceCents,
	})
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}
	_ = httpapi.WriteRawJSON(w, http.StatusCreated, resp)
}

type updateOrderRequest struct {
	ExpectedVersion int64   `json:"expectedVersion"`
	TableLabel      *string `json:"tableLabel"`
	Notes           *string `json:"notes"`
}

func (r updateOrderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ExpectedVersion, validation.Required, validation.Min(1)),
		validation.Field(&r.TableLabel, validation.Length(0, 64)),
		validation.Field(&r.Notes, validation.Length(0, 2048)),
	)
}

func (c *OrdersAPIController) Update(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromPath(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid order id", nil)
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, err.Error(), nil)
		return
	}

	resp, err := c.svc.Update(r.Context(), idempotencyKey(r), orderID, order.UpdateInput{
		ExpectedVersion: req.ExpectedVersion,
		TableLabel:      req.TableLabel,
		Notes:           req.Notes,
	})
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}
	_ = httpapi.WriteRawJSON(w, http.StatusOK, resp)
}

type payOrderRequest struct {
	ExpectedVersion int64 `json:"expectedVersion"`
}

func (r payOrderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ExpectedVersion, validation.Required, validation.Min(1)),
	)
}

func (c *OrdersAPIController) Pay(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromPath(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid order id", nil)
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid JSON body", nil)
		return
	}
	if err := req.Validate(); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, err.Error(), nil)
		return
	}

	resp, err := c.svc.Pay(r.Context(), idempotencyKey(r), orderID, req.ExpectedVersion)
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}
	_ = httpapi.WriteRawJSON(w, http.StatusOK, resp)
}

func (c *OrdersAPIController) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromPath(r)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, serrors.CodeValidation, "invalid order id", nil)
		return
	}

	o, err := c.svc.Get(r.Context(), orderID)
	if err != nil {
		_ = httpapi.WriteServiceError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, o)
}
