package accountstream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
)

// Message is one decoded inbound frame: *ErrorMessage, *StatusMessage or
// *AccountMessage.
type Message interface {
	Kind() string
}

// ErrorMessage is the server's reply to a rejected action.
type ErrorMessage struct {
	Status             string `json:"status"`
	Action             string `json:"action"`
	WebSocketSessionID string `json:"web-socket-session-id"`
	Message            string `json:"message"`
}

func (*ErrorMessage) Kind() string { return "error" }

// StatusMessage acknowledges an action.
type StatusMessage struct {
	Status             string      `json:"status"`
	Action             string      `json:"action"`
	WebSocketSessionID string      `json:"web-socket-session-id"`
	RequestID          json.Number `json:"request-id"`
}

func (*StatusMessage) Kind() string { return "status" }

// MessageType tags an account notification envelope.
type MessageType string

const (
	TypeOrder               MessageType = "Order"
	TypeAccountBalance      MessageType = "AccountBalance"
	TypeCurrentPosition     MessageType = "CurrentPosition"
	TypeOrderChain          MessageType = "OrderChain"
	TypeExternalTransaction MessageType = "ExternalTransaction"
)

// AccountMessage is an account notification. At most one payload field is
// set, matching Type; OrderChain and ExternalTransaction carry none.
type AccountMessage struct {
	Type            MessageType                 `json:"type"`
	Order           *tastytrade.LiveOrderRecord `json:"order,omitempty"`
	AccountBalance  *tastytrade.Balance         `json:"account-balance,omitempty"`
	CurrentPosition *tastytrade.Position        `json:"current-position,omitempty"`
}

func (m *AccountMessage) Kind() string { return string(m.Type) }

var (
	errorShape  = []string{"status", "action", "web-socket-session-id", "message"}
	statusShape = []string{"status", "action", "web-socket-session-id", "request-id"}
)

// Decode classifies one inbound frame. Shapes are tried in a fixed order:
// error, status, then the {type,data} envelope.
func Decode(raw []byte) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, newProtocolError(raw, err)
	}

	if hasAll(fields, errorShape) {
		var m ErrorMessage
		if err := json.Unmarshal(raw, &m); err == nil {
			return &m, nil
		}
	}
	if hasAll(fields, statusShape) {
		var m StatusMessage
		if err := json.Unmarshal(raw, &m); err == nil {
			return &m, nil
		}
	}
	if typ, ok := fields["type"]; ok {
		var t MessageType
		if err := json.Unmarshal(typ, &t); err == nil {
			return decodeEnvelope(raw, t, fields["data"])
		}
	}
	return nil, newProtocolError(raw, ErrUnrecognizedMessage)
}

func decodeEnvelope(raw []byte, t MessageType, data json.RawMessage) (Message, error) {
	m := &AccountMessage{Type: t}
	var target any
	switch t {
	case TypeOrder:
		m.Order = new(tastytrade.LiveOrderRecord)
		target = m.Order
	case TypeAccountBalance:
		m.AccountBalance = new(tastytrade.Balance)
		target = m.AccountBalance
	case TypeCurrentPosition:
		m.CurrentPosition = new(tastytrade.Position)
		target = m.CurrentPosition
	case TypeOrderChain, TypeExternalTransaction:
		return m, nil
	default:
		return nil, newProtocolError(raw, fmt.Errorf("%w: type %q", ErrUnrecognizedMessage, t))
	}

	if isNull(data) {
		return nil, newProtocolError(raw, fmt.Errorf("%w: %s without data", ErrUnrecognizedMessage, t))
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, newProtocolError(raw, fmt.Errorf("%s data: %w", t, err))
	}
	return m, nil
}

func hasAll(fields map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; !ok {
			return false
		}
	}
	return true
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}
