package protocol

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrMalformedPayload indicates bytes that are not a JSON object.
var ErrMalformedPayload = errors.New("malformed payload")

// Kind classifies an inbound message by the fields it carries.
type Kind int

const (
	// KindInvalid is a JSON object matching no known message shape.
	KindInvalid Kind = iota
	// KindRequest is a server-initiated request (method and id).
	KindRequest
	// KindNotification is a server notification (method, no id).
	KindNotification
	// KindResponse is a reply to a client request (id, no method).
	KindResponse
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Incoming is a decoded inbound message. Presence flags distinguish an
// explicit null value from an absent key, which matters when validating
// that a response carries exactly one of result and error.
type Incoming struct {
	Kind   Kind
	ID     int64
	Method string
	Params json.RawMessage

	Result    json.RawMessage
	HasResult bool
	Error     *RPCError
	HasError  bool
}

// Valid reports whether a response carries exactly one of result and error.
// It is meaningless for other kinds.
func (m *Incoming) Valid() bool {
	return m.HasResult != m.HasError
}

// Decode parses raw bytes into an Incoming message and classifies it.
// Classification follows key presence, not values: a request has method and
// id, a notification has method only, a response has id only.
func Decode(raw []byte) (*Incoming, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedPayload
	}

	method := gjson.GetBytes(raw, "method")
	id := gjson.GetBytes(raw, "id")
	result := gjson.GetBytes(raw, "result")
	errVal := gjson.GetBytes(raw, "error")

	msg := &Incoming{
		ID:        id.Int(),
		Method:    method.String(),
		HasResult: result.Exists(),
		HasError:  errVal.Exists(),
	}

	switch {
	case method.Exists() && id.Exists():
		msg.Kind = KindRequest
	case method.Exists():
		msg.Kind = KindNotification
	case id.Exists():
		msg.Kind = KindResponse
	default:
		msg.Kind = KindInvalid
		return msg, nil
	}

	if params := gjson.GetBytes(raw, "params"); params.Exists() {
		msg.Params = json.RawMessage(params.Raw)
	}
	if msg.HasResult {
		msg.Result = json.RawMessage(result.Raw)
	}
	if msg.HasError && errVal.IsObject() {
		var rpcErr RPCError
		if err := json.Unmarshal([]byte(errVal.Raw), &rpcErr); err == nil {
			msg.Error = &rpcErr
		}
	}

	return msg, nil
}
