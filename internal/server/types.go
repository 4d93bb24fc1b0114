// Package server defines the wire envelopes exchanged between clients and
// the relay, plus utility helpers reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Event type discriminators carried in the "type" field of every frame.
const (
	eventSubmit  = "submit"
	eventAck     = "ack"
	eventMessage = "message"
)

// Structured error codes reported to the submitter. Clients branch on these,
// never on free text.
const (
	ErrCodeInvalidMessageType  = "INVALID_MESSAGE_TYPE"
	ErrCodeMessageTooLong      = "MESSAGE_TOO_LONG"
	ErrCodeMessageExistsNoID   = "MESSAGE_EXISTS_NO_ID"
	ErrCodeDuplicateLookupFail = "DUPLICATE_LOOKUP_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// Envelope is the client-to-server frame. Content stays raw so the
// submission handler can reject non-string payloads instead of silently
// coercing them. Seq correlates the ack; a submission without Seq gets no
// ack but is still processed.
type Envelope struct {
	Type        string          `json:"type"`
	Seq         *int64          `json:"seq,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	ClientToken *string         `json:"clientToken,omitempty"`
}

// Ack is the server's response to a single submission.
type Ack struct {
	Type         string `json:"type"`
	Seq          int64  `json:"seq"`
	OK           bool   `json:"ok"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	ServerOffset int64  `json:"serverOffset,omitempty"`
	Error        string `json:"error,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

// Delivery is a persisted message pushed to a client. Broadcast and replay
// use the identical shape so the client cannot distinguish the two.
type Delivery struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
