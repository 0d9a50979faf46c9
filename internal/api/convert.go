package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/greysana/kitchen-display-system/internal/model"
)

// orderDateLayouts are tried in order when parsing order_date and updatedAt.
// The backend sends naive timestamps in server local time.
var orderDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a backend timestamp in loc. Returns the zero time
// for empty or invalid input.
func ParseTimestamp(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range orderDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ToOrderRecord converts a wire order into a board record.
func (o OrderResponse) ToOrderRecord(loc *time.Location) model.OrderRecord {
	rec := model.OrderRecord{
		ID:               o.ID,
		OrderID:          o.OrderID,
		Name:             o.OrderName,
		Ticket:           looseString(o.RefTicket),
		Stage:            model.StageKey(o.Stage),
		SequencePosition: model.UnsetPosition,
		State:            model.ParseDomainState(o.State),
		Cancelled:        o.Cancelled,
		TakeAway:         o.TakeAway,
		Seat:             looseString(o.SeatID),
		CustomerCount:    o.CustomerCount,
		Reference:        looseString(o.RefID),
		OrderedAt:        ParseTimestamp(o.OrderDate, loc),
		LastMutated:      ParseTimestamp(o.UpdatedAt, loc),
	}
	if o.RowPos != nil {
		rec.SequencePosition = *o.RowPos
	}
	if len(o.Items) > 0 {
		rec.Items = make([]model.LineItem, len(o.Items))
		for i, item := range o.Items {
			rec.Items[i] = model.LineItem{
				LineID:    item.OrderedProdID,
				ProductID: item.ProductID,
				Name:      item.ProductName,
				Quantity:  item.Quantity,
				Note:      item.Note,
			}
		}
	}
	return rec
}

// ToStageDef converts a wire stage into a stage definition.
func (s StageResponse) ToStageDef() model.StageDef {
	return model.StageDef{
		Key:            model.StageKey(s.Name),
		Name:           s.Name,
		HoldingTime:    time.Duration(s.HoldingTime * float64(time.Minute)),
		IsTerminal:     s.LastStage,
		IsCancellation: s.CancelStage,
	}
}

// looseString reads a field the backend sends as a string, a number, or
// false/null when unset.
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false":
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// idJSON renders a domain id as a JSON number when it is numeric.
func idJSON(id model.ID) json.RawMessage {
	if _, err := strconv.ParseInt(id.String(), 10, 64); err == nil {
		return json.RawMessage(id.String())
	}
	b, _ := json.Marshal(id.String())
	return b
}
