package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// UnsetPosition sorts an order after every positioned order in its stage.
const UnsetPosition = math.MaxInt32

// -----------------------------------------------------------------------------
// Identifiers
// -----------------------------------------------------------------------------

// ID is an identifier that may arrive as a JSON string or number.
type ID string

// UnmarshalJSON accepts "abc", 42 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// DomainState is the lifecycle state of an order.
type DomainState string

const (
	StateDraft     DomainState = "draft"
	StateActive    DomainState = "active"
	StateDone      DomainState = "done"
	StateCancelled DomainState = "cancelled"
)

// ParseDomainState maps collaborator states onto DomainState.
// Anything that is not draft, done or cancelled counts as active ("paid", "invoiced").
func ParseDomainState(s string) DomainState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "draft":
		return StateDraft
	case "done":
		return StateDone
	case "cancel", "cancelled", "canceled":
		return StateCancelled
	default:
		return StateActive
	}
}

// LineItem is a single product line on an order.
type LineItem struct {
	LineID    int64
	ProductID int64
	Name      string
	Quantity  float64
	Note      string
}

// OrderRecord is one order as shown on the board.
type OrderRecord struct {
	ID               ID          // Board entry id (collaborator "_id")
	OrderID          ID          // Domain order id (collaborator "order_id")
	Name             string      // Order name (e.g., "Order 00012")
	Ticket           string      // Display reference shown to customers
	Stage            string      // Stage key
	SequencePosition int         // Intra-stage order
	State            DomainState // Lifecycle state
	Cancelled        bool        // Backend cancellation flag
	TakeAway         bool
	Seat             string
	CustomerCount    int
	Reference        string
	OrderedAt        time.Time
	LastMutated      time.Time
	Items            []LineItem
}

// Closed reports whether the order can no longer be moved.
func (o OrderRecord) Closed() bool {
	return o.State == StateDone || o.State == StateCancelled || o.Cancelled
}

// Equal reports whether two records hold the same values.
func (o OrderRecord) Equal(other OrderRecord) bool {
	return o.ID == other.ID &&
		o.OrderID == other.OrderID &&
		o.Name == other.Name &&
		o.Ticket == other.Ticket &&
		o.Stage == other.Stage &&
		o.SequencePosition == other.SequencePosition &&
		o.State == other.State &&
		o.Cancelled == other.Cancelled &&
		o.TakeAway == other.TakeAway &&
		o.Seat == other.Seat &&
		o.CustomerCount == other.CustomerCount &&
		o.Reference == other.Reference &&
		o.OrderedAt.Equal(other.OrderedAt) &&
		o.LastMutated.Equal(other.LastMutated) &&
		slices.Equal(o.Items, other.Items)
}

// Clone returns a copy that shares no slices with o.
func (o OrderRecord) Clone() OrderRecord {
	o.Items = slices.Clone(o.Items)
	return o
}
