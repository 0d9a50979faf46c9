package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FrameType identifies a relay control frame.
type FrameType string

const (
	FrameJoin         FrameType = "join"
	FrameLeave        FrameType = "leave"
	FrameJoinSuccess  FrameType = "join_success"
	FrameLeaveSuccess FrameType = "leave_success"
)

// DefaultChannel is the channel displays join for board updates.
const DefaultChannel = "kds_update"

// ClientFrame is a membership request sent by a display to the relay.
type ClientFrame struct {
	Type      FrameType `json:"type"`
	ChannelID string    `json:"channelId"`
	Content   string    `json:"content,omitempty"`
}

// JoinFrame builds the handshake a display sends once per open connection.
func JoinFrame(channel string) ClientFrame {
	return ClientFrame{Type: FrameJoin, ChannelID: channel, Content: "loggedin"}
}

// DecodeClientFrame parses and validates a frame received by the relay.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, newError("", fmt.Errorf("%w: %v", ErrMalformed, err))
	}

	switch f.Type {
	case FrameJoin, FrameLeave:
	default:
		return ClientFrame{}, newError(string(f.Type), ErrUnknownType)
	}

	f.ChannelID = strings.TrimSpace(f.ChannelID)
	if f.ChannelID == "" {
		return ClientFrame{}, newError(string(f.Type), ErrEmptyChannel)
	}

	return f, nil
}

// Ack is the relay's reply to a join or leave frame.
type Ack struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel"`
	Message string    `json:"message,omitempty"`
}

func (Ack) isMessage()          {}
func (a Ack) Kind() MessageType { return MessageType(a.Type) }

// NewAck builds the acknowledgement for a processed client frame.
func NewAck(req FrameType, channel string) Ack {
	if req == FrameLeave {
		return Ack{Type: FrameLeaveSuccess, Channel: channel, Message: "Left channel: " + channel}
	}
	return Ack{Type: FrameJoinSuccess, Channel: channel, Message: "Joined channel: " + channel}
}
