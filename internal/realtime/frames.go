package realtime

import (
	"encoding/json"
)

// Inbound frame types.
const (
	FrameSend      = "send"
	FrameEdit      = "edit"
	FrameDelete    = "delete"
	FramePresence  = "presence"
	FrameHeartbeat = "heartbeat"
	FrameAsk       = "ask"
)

// Outbound frame types.
const (
	FrameSnapshot       = "snapshot"
	FrameMessage        = "message"
	FrameMessageRemoved = "message_removed"
	FramePresenceList   = "presence"
	FrameSession        = "session"
	FrameError          = "error"
	FrameAck            = "ack"
)

// Inbound is a client request. Ref is echoed back on the ack or error frame
// that answers it.
type Inbound struct {
	Type      string         `json:"type"`
	Ref       string         `json:"ref,omitempty"`
	Content   string         `json:"content,omitempty"`
	MessageID int64          `json:"message_id,omitempty"`
	ReplyTo   *int64         `json:"reply_to,omitempty"`
	Status    string         `json:"status,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Outbound wraps a payload with its frame type.
type Outbound struct {
	Type string `json:"type"`
	Ref  string `json:"ref,omitempty"`
	Data any    `json:"data,omitempty"`
}

type ErrorData struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func Encode(frameType, ref string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Type: frameType, Ref: ref, Data: data})
}

func Decode(payload []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(payload, &in)
	return in, err
}
