package api

import (
	"encoding/json"

	"github.com/greysana/kitchen-display-system/internal/model"
)

// OrderResponse is one board entry as returned by GET /api/kds.
type OrderResponse struct {
	ID            model.ID        `json:"_id"`
	OrderID       model.ID        `json:"order_id"`
	OrderName     string          `json:"order_name"`
	OrderDate     string          `json:"order_date"`
	Cancelled     bool            `json:"cancelled"`
	RefTicket     json.RawMessage `json:"ref_ticket"` // string, or false when unset
	TakeAway      bool            `json:"take_away"`
	SeatID        json.RawMessage `json:"seat_id"` // string, number or false
	CustomerCount int             `json:"customer_count"`
	RefID         json.RawMessage `json:"ref_id"`
	Items         []ItemResponse  `json:"items"`
	Stage         string          `json:"stage"`
	State         string          `json:"state"`
	Duration      float64         `json:"duration"`
	UpdatedAt     string          `json:"updatedAt"`
	RowPos        *int            `json:"row_pos"`
}

// ItemResponse is one product line of an order.
type ItemResponse struct {
	OrderedProdID int64   `json:"ordered_prod_id"`
	ProductID     int64   `json:"product_id"`
	Quantity      float64 `json:"quantity"`
	OrderID       int64   `json:"order_id"`
	ProductName   string  `json:"product_name"`
	Note          string  `json:"note"`
}

// StageResponse is one stage definition from GET /get-stages.
type StageResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	HoldingTime float64 `json:"holding_time"` // Minutes
	LastStage   bool    `json:"last_stage"`
	CancelStage bool    `json:"cancel_stage"`
}

// OrderPatch is a partial update for POST /api/kds/{id}. Nil fields are
// omitted.
type OrderPatch struct {
	Stage     *string `json:"stage,omitempty"`
	RowPos    *int    `json:"row_pos,omitempty"`
	State     *string `json:"state,omitempty"`
	RefTicket *string `json:"ref_ticket,omitempty"`
}

// Transition is a domain state change requested through /update-order-state.
type Transition string

const (
	TransitionDone   Transition = "done"
	TransitionCancel Transition = "cancel"
)

// stateRequest is the body of POST /update-order-state.
type stateRequest struct {
	ID    json.RawMessage `json:"id"`
	State Transition      `json:"state"`
}
