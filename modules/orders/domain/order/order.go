package order

import (
	"time"

	"github.com/google/uuid"

	"github.com/venuehq/venue-sdk/pkg/serrors"
)

const EntityType = "order"

type Status string

const (
	StatusOpen Status = "open"
	StatusPaid Status = "paid"
	StatusVoid Status = "void"
)

// Terminal reports whether no further mutations are allowed.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusVoid
}

// NewOrderNotOpenError is deliberately not a VERSION_CONFLICT: refetching and
// retrying cannot help once the order left the open state, so clients get a
// distinct code telling them to abandon.
func NewOrderNotOpenError(status Status) *serrors.Error {
	return serrors.NewStatusConflictError("ORDER_NOT_OPEN", "order is "+string(status)+" and can no longer be modified")
}

// Order is a point-of-sale order aggregate. Version starts at 1 and moves by
// exactly 1 on every successful mutation.
type Order struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenantId"`
	Number     int64      `json:"number"`
	Status     Status     `json:"status"`
	TableLabel string     `json:"tableLabel,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Lines      []LineItem `json:"lines"`
}

func (o *Order) TotalCents() int64 {
	var total int64
	for _, l := range o.Lines {
		total += l.TotalCents
	}
	return total
}

type LineItem struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"orderId"`
	Position       int       `json:"position"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	TotalCents     int64     `json:"totalCents"`
}

type CreateInput struct {
	TableLabel string
	Notes      string
}

type AddLineInput struct {
	ExpectedVersion int64
	SKU             string
	Name            string
	Quantity        int
	UnitPriceCents  int64
}

// UpdateInput is a merge patch: nil means "leave unchanged", a pointer to the
// zero value clears the field. The repository builds the SET clause from the
// present fields only.
type UpdateInput struct {
	ExpectedVersion int64
	TableLabel      *string
	Notes           *string
}

func (in UpdateInput) IsEmpty() bool {
	return in.TableLabel == nil && in.Notes == nil
}
