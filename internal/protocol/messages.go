package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/greysana/kitchen-display-system/internal/model"
)

// MessageType identifies a push message.
type MessageType string

const (
	TypeNewOrder       MessageType = "new_order"
	TypeOrderCreated   MessageType = "order_created"
	TypeStageChanged   MessageType = "stage_changed"
	TypeKDSUpdate      MessageType = "kds_update"
	TypeKDSStageUpdate MessageType = "kds_stage_update"
	TypeOrderMutated   MessageType = "order_mutated"
	TypeOrderUpdate    MessageType = "order_update"
)

// Message is one of NewOrder, StageChanged, OrderMutated or Ack.
type Message interface {
	Kind() MessageType
	isMessage()
}

// NewOrder announces that the backend created an order.
type NewOrder struct {
	OrderID   model.ID
	Timestamp time.Time
}

// StageChanged moves one board entry to another stage.
type StageChanged struct {
	SubjectID model.ID
	NewStage  string
	Timestamp time.Time
}

// OrderMutated carries a partial update of domain fields.
// Nil fields were absent from the message and must not be applied.
type OrderMutated struct {
	OrderID   model.ID
	State     *string
	Cancelled *bool
	Ticket    *string
	Timestamp time.Time
}

func (NewOrder) isMessage()     {}
func (StageChanged) isMessage() {}
func (OrderMutated) isMessage() {}

func (NewOrder) Kind() MessageType     { return TypeNewOrder }
func (StageChanged) Kind() MessageType { return TypeStageChanged }
func (OrderMutated) Kind() MessageType { return TypeOrderMutated }

// Envelope is the generic event shape {type, subjectId, payload, timestamp}.
// Fields found in Payload are used when the top-level ones are missing.
type Envelope struct {
	Type      MessageType     `json:"type"`
	SubjectID model.ID        `json:"subjectId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// pushWire accepts both the current field names and the legacy ones
// (kds_id, stage, order_id, ref_ticket).
type pushWire struct {
	Type      MessageType     `json:"type"`
	SubjectID model.ID        `json:"subjectId"`
	KDSID     model.ID        `json:"kds_id"`
	NewStage  string          `json:"newStage"`
	Stage     string          `json:"stage"`
	OrderID   model.ID        `json:"orderId"`
	LegacyID  model.ID        `json:"order_id"`
	State     *string         `json:"state"`
	Cancelled *bool           `json:"cancelled"`
	Ticket    json.RawMessage `json:"ticket"`
	RefTicket json.RawMessage `json:"ref_ticket"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode parses a frame received from the relay into a typed Message.
func Decode(data []byte) (Message, error) {
	var w pushWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, newError("", fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	if len(w.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(w.Payload), []byte("null")) {
		var inner pushWire
		if err := json.Unmarshal(w.Payload, &inner); err != nil {
			return nil, newError(string(w.Type), fmt.Errorf("%w: payload: %v", ErrMalformed, err))
		}
		w.fillFrom(inner)
	}

	ts := parseTimestamp(w.Timestamp)

	switch w.Type {
	case TypeNewOrder, TypeOrderCreated:
		id := w.OrderID
		if id == "" {
			id = first(w.LegacyID, w.SubjectID)
		}
		return NewOrder{OrderID: id, Timestamp: ts}, nil

	case TypeStageChanged, TypeKDSUpdate, TypeKDSStageUpdate:
		id := first(w.SubjectID, w.KDSID)
		stage := w.NewStage
		if stage == "" {
			stage = w.Stage
		}
		if id == "" {
			return nil, newError(string(w.Type), fmt.Errorf("%w: subjectId", ErrMissingField))
		}
		if model.StageKey(stage) == "" {
			return nil, newError(string(w.Type), fmt.Errorf("%w: newStage", ErrMissingField))
		}
		return StageChanged{SubjectID: id, NewStage: model.StageKey(stage), Timestamp: ts}, nil

	case TypeOrderMutated, TypeOrderUpdate:
		id := first(w.OrderID, w.LegacyID, w.SubjectID)
		if id == "" {
			return nil, newError(string(w.Type), fmt.Errorf("%w: orderId", ErrMissingField))
		}
		ticket, err := optionalTicket(w.Ticket, w.RefTicket)
		if err != nil {
			return nil, newError(string(w.Type), err)
		}
		return OrderMutated{
			OrderID:   id,
			State:     w.State,
			Cancelled: w.Cancelled,
			Ticket:    ticket,
			Timestamp: ts,
		}, nil

	case MessageType(FrameJoinSuccess), MessageType(FrameLeaveSuccess):
		var ack Ack
		if err := json.Unmarshal(data, &ack); err != nil {
			return nil, newError(string(w.Type), fmt.Errorf("%w: %v", ErrMalformed, err))
		}
		return ack, nil

	case "":
		return nil, newError("", fmt.Errorf("%w: type", ErrMissingField))
	}

	return nil, newError(string(w.Type), ErrUnknownType)
}

// Encode renders a message in its canonical wire shape.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case NewOrder:
		return json.Marshal(struct {
			Type      MessageType `json:"type"`
			OrderID   model.ID    `json:"orderId,omitempty"`
			Timestamp string      `json:"timestamp,omitempty"`
		}{TypeNewOrder, m.OrderID, formatTimestamp(m.Timestamp)})

	case StageChanged:
		return json.Marshal(struct {
			Type      MessageType `json:"type"`
			SubjectID model.ID    `json:"subjectId"`
			NewStage  string      `json:"newStage"`
			Timestamp string      `json:"timestamp,omitempty"`
		}{TypeStageChanged, m.SubjectID, m.NewStage, formatTimestamp(m.Timestamp)})

	case OrderMutated:
		return json.Marshal(struct {
			Type      MessageType `json:"type"`
			OrderID   model.ID    `json:"orderId"`
			State     *string     `json:"state,omitempty"`
			Cancelled *bool       `json:"cancelled,omitempty"`
			Ticket    *string     `json:"ticket,omitempty"`
			Timestamp string      `json:"timestamp,omitempty"`
		}{TypeOrderMutated, m.OrderID, m.State, m.Cancelled, m.Ticket, formatTimestamp(m.Timestamp)})

	case Ack:
		return json.Marshal(m)
	}

	return nil, fmt.Errorf("encode %T: %w", msg, ErrUnknownType)
}

func (w *pushWire) fillFrom(inner pushWire) {
	if w.NewStage == "" {
		w.NewStage = first(model.ID(inner.NewStage), model.ID(inner.Stage)).String()
	}
	if w.OrderID == "" {
		w.OrderID = first(inner.OrderID, inner.LegacyID)
	}
	if w.SubjectID == "" {
		w.SubjectID = first(inner.SubjectID, inner.KDSID)
	}
	if w.State == nil {
		w.State = inner.State
	}
	if w.Cancelled == nil {
		w.Cancelled = inner.Cancelled
	}
	if len(w.Ticket) == 0 {
		w.Ticket = inner.Ticket
	}
	if len(w.RefTicket) == 0 {
		w.RefTicket = inner.RefTicket
	}
}

// optionalTicket reads a ticket that the backend may send as a string,
// null, or false when the order has none.
func optionalTicket(raws ...json.RawMessage) (*string, error) {
	for _, raw := range raws {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		switch string(raw) {
		case "null", "false":
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: ticket: %v", ErrMalformed, err)
		}
		return &s, nil
	}
	return nil, nil
}

func first(ids ...model.ID) model.ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
