package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/greysana/kitchen-display-system/internal/model"
)

func TestDecodeClientFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ClientFrame
		wantErr error
	}{
		{
			name:  "join",
			input: `{"type":"join","channelId":"kds_update","content":"loggedin"}`,
			want:  ClientFrame{Type: FrameJoin, ChannelID: "kds_update", Content: "loggedin"},
		},
		{
			name:  "leave trims channel",
			input: `{"type":"leave","channelId":"  kds_update "}`,
			want:  ClientFrame{Type: FrameLeave, ChannelID: "kds_update"},
		},
		{
			name:    "not json",
			input:   `hello`,
			wantErr: ErrMalformed,
		},
		{
			name:    "unknown type",
			input:   `{"type":"subscribe","channelId":"x"}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "missing channel",
			input:   `{"type":"join"}`,
			wantErr: ErrEmptyChannel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientFrame([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if !IsProtocolError(err) {
					t.Errorf("expected *Error, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("frame = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewAck(t *testing.T) {
	join := NewAck(FrameJoin, "kds_update")
	if join.Type != FrameJoinSuccess || join.Channel != "kds_update" || join.Message != "Joined channel: kds_update" {
		t.Errorf("join ack = %+v", join)
	}

	leave := NewAck(FrameLeave, "kds_update")
	if leave.Type != FrameLeaveSuccess || leave.Message != "Left channel: kds_update" {
		t.Errorf("leave ack = %+v", leave)
	}
}

func TestDecode_StageChanged(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  StageChanged
	}{
		{
			name:  "current shape",
			input: `{"type":"stage_changed","subjectId":"A","newStage":"Preparing","timestamp":"2026-10-15T10:00:00Z"}`,
			want: StageChanged{
				SubjectID: "A",
				NewStage:  "preparing",
				Timestamp: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name:  "legacy kds_update",
			input: `{"type":"kds_update","kds_id":17,"stage":"ready","action":"update"}`,
			want:  StageChanged{SubjectID: "17", NewStage: "ready"},
		},
		{
			name:  "envelope payload",
			input: `{"type":"stage_changed","subjectId":"B","payload":{"newStage":"ready"}}`,
			want:  StageChanged{SubjectID: "B", NewStage: "ready"},
		},
		{
			name:  "bad timestamp ignored",
			input: `{"type":"kds_stage_update","kds_id":"C","stage":"new","timestamp":"yesterday"}`,
			want:  StageChanged{SubjectID: "C", NewStage: "new"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			got, ok := msg.(StageChanged)
			if !ok {
				t.Fatalf("message type = %T, want StageChanged", msg)
			}
			if got.SubjectID != tt.want.SubjectID || got.NewStage != tt.want.NewStage || !got.Timestamp.Equal(tt.want.Timestamp) {
				t.Errorf("StageChanged = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecode_OrderMutated(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"order_update","order_id":42,"state":"done","cancelled":false,"ref_ticket":"T-9"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m, ok := msg.(OrderMutated)
	if !ok {
		t.Fatalf("message type = %T, want OrderMutated", msg)
	}
	if m.OrderID != "42" {
		t.Errorf("OrderID = %q, want 42", m.OrderID)
	}
	if m.State == nil || *m.State != "done" {
		t.Errorf("State = %v, want done", m.State)
	}
	if m.Cancelled == nil || *m.Cancelled {
		t.Errorf("Cancelled = %v, want false", m.Cancelled)
	}
	if m.Ticket == nil || *m.Ticket != "T-9" {
		t.Errorf("Ticket = %v, want T-9", m.Ticket)
	}

	// Absent fields stay nil; false ticket means none.
	msg, err = Decode([]byte(`{"type":"order_mutated","orderId":"7","ticket":false}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m = msg.(OrderMutated)
	if m.State != nil || m.Cancelled != nil || m.Ticket != nil {
		t.Errorf("expected no fields present, got %+v", m)
	}
}

func TestDecode_NewOrderAndAck(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"new_order","order_id":5}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if no, ok := msg.(NewOrder); !ok || no.OrderID != "5" {
		t.Errorf("message = %+v, want NewOrder{5}", msg)
	}

	msg, err = Decode([]byte(`{"type":"order_created","subjectId":"9"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Kind() != TypeNewOrder {
		t.Errorf("Kind() = %s, want %s", msg.Kind(), TypeNewOrder)
	}

	msg, err = Decode([]byte(`{"type":"join_success","channel":"kds_update","message":"Joined channel: kds_update"}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ack, ok := msg.(Ack); !ok || ack.Channel != "kds_update" {
		t.Errorf("message = %+v, want join ack", msg)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"not json", `{{`, ErrMalformed},
		{"no type", `{"subjectId":"A"}`, ErrMissingField},
		{"unknown type", `{"type":"price_update"}`, ErrUnknownType},
		{"stage changed without id", `{"type":"stage_changed","newStage":"ready"}`, ErrMissingField},
		{"stage changed without stage", `{"type":"kds_update","kds_id":"A"}`, ErrMissingField},
		{"mutated without id", `{"type":"order_update","state":"done"}`, ErrMissingField},
		{"ticket wrong type", `{"type":"order_update","order_id":1,"ref_ticket":12}`, ErrMalformed},
		{"payload not object", `{"type":"stage_changed","payload":"x"}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if !IsProtocolError(err) {
				t.Errorf("expected protocol error, got %T", err)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	state := "done"
	ticket := "A-12"
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

	msgs := []Message{
		NewOrder{OrderID: "3", Timestamp: at},
		StageChanged{SubjectID: "kds-1", NewStage: "ready", Timestamp: at},
		OrderMutated{OrderID: "3", State: &state, Ticket: &ticket},
	}

	for _, want := range msgs {
		data, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode(%T) failed: %v", want, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s) failed: %v", data, err)
		}
		if got.Kind() != want.Kind() {
			t.Errorf("Kind() = %s, want %s", got.Kind(), want.Kind())
		}
	}
}

func TestEnvelope_Decode(t *testing.T) {
	env := Envelope{
		Type:      TypeOrderMutated,
		SubjectID: "11",
		Payload:   json.RawMessage(`{"state":"cancel","cancelled":true}`),
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m := msg.(OrderMutated)
	if m.OrderID != model.ID("11") {
		t.Errorf("OrderID = %q, want 11", m.OrderID)
	}
	if m.Cancelled == nil || !*m.Cancelled {
		t.Errorf("Cancelled = %v, want true", m.Cancelled)
	}
}
