// Package jsonrpc implements the JSON-RPC 2.0 envelopes exchanged with tool clients.
// file: internal/jsonrpc/types.go
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/mcperror"
)

// Version is the JSON-RPC version string.
const Version = "2.0"

// NullID is the id used when the request id could not be recovered.
var NullID = json.RawMessage("null")

// ErrNoUsableID is the cause of the protocol error for well-formed envelopes
// whose id is missing or null.
var ErrNoUsableID = errors.New("request has no usable id")

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Error returns the error message, implementing the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Request represents an inbound JSON-RPC request.
// ID keeps the raw bytes so it is echoed back exactly as received.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	idPresent       bool
	idExplicitNull  bool
	idInvalidFormat bool
}

// UnmarshalJSON captures whether id was present, null, or of the wrong type.
// Any non-null id keeps its raw bytes so it can be echoed back.
func (r *Request) UnmarshalJSON(data []byte) error {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(data, &object); err != nil {
		return err
	}

	*r = Request{}
	if v, ok := object["jsonrpc"]; ok {
		if err := json.Unmarshal(v, &r.JSONRPC); err != nil {
			r.JSONRPC = string(v)
		}
	}
	if v, ok := object["method"]; ok {
		// A non-string method is reported as an unknown method later.
		if err := json.Unmarshal(v, &r.Method); err != nil {
			r.Method = string(v)
		}
	}
	if v, ok := object["params"]; ok {
		r.Params = v
	}

	rawID, ok := object["id"]
	r.idPresent = ok
	if !ok {
		return nil
	}
	trimmed := bytes.TrimSpace(rawID)
	if bytes.Equal(trimmed, []byte("null")) {
		r.idExplicitNull = true
		return nil
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	r.ID = append(json.RawMessage(nil), trimmed...)
	switch parsed.(type) {
	case string, float64:
	default:
		r.idInvalidFormat = true
	}
	return nil
}

// HasID reports whether the request carries a non-null id that can be echoed.
func (r *Request) HasID() bool {
	return r.idPresent && !r.idExplicitNull
}

// ValidID reports whether the id is a string or a number.
func (r *Request) ValidID() bool {
	return r.HasID() && !r.idInvalidFormat
}

// IDString formats the id for logs.
func (r *Request) IDString() string {
	if !r.HasID() {
		return "null"
	}
	return string(r.ID)
}

// ParseRequest decodes a raw envelope. Malformed JSON, a non-object payload, or a
// missing or null id yields a protocol error: no response envelope can be built.
// An id of the wrong type still parses; callers check ValidID and answer with an
// error envelope echoing it. Use IsMissingID to tell id-less envelopes (such as
// notifications) from garbage.
func ParseRequest(raw []byte) (*Request, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, mcperror.NewProtocolError("message is not a JSON object", nil,
			map[string]interface{}{"preview": Preview(raw)})
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, mcperror.NewProtocolError("malformed JSON", errors.Wrap(err, "unmarshal request"),
			map[string]interface{}{"preview": Preview(raw)})
	}
	if !req.HasID() {
		return nil, mcperror.NewProtocolError("request has no usable id", ErrNoUsableID,
			map[string]interface{}{"method": req.Method})
	}
	return &req, nil
}

// IsMissingID reports whether err came from a well-formed envelope without a usable id.
func IsMissingID(err error) bool {
	return errors.Is(err, ErrNoUsableID)
}

// Response represents a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a success response carrying result.
func NewResult(id json.RawMessage, result interface{}) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal result of type %T", result)
	}
	return &Response{JSONRPC: Version, ID: echoID(id), Result: data}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, code int, message string, data map[string]interface{}) *Response {
	if len(data) == 0 {
		data = nil
	}
	return &Response{
		JSONRPC: Version,
		ID:      echoID(id),
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// ErrorResponseFrom maps err onto a JSON-RPC error response.
func ErrorResponseFrom(id json.RawMessage, err error) *Response {
	code, message, data := mcperror.MapToJSONRPC(err)
	return NewErrorResponse(id, code, message, data)
}

// NewParseErrorResponse builds the id:null response used when no request id is recoverable.
func NewParseErrorResponse(err error) *Response {
	_, _, data := mcperror.MapToJSONRPC(err)
	return NewErrorResponse(NullID, int(mcperror.ErrParseError), "Parse error.", data)
}

func echoID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return NullID
	}
	return id
}

// IsError reports whether the response carries an error.
func (r *Response) IsError() bool {
	return r != nil && r.Error != nil
}

// Marshal encodes the response as a single line of JSON.
func (r *Response) Marshal() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal response")
	}
	return data, nil
}

// Preview returns a short printable excerpt of data for logs.
func Preview(data []byte) string {
	const maxPreviewLen = 100
	truncated := len(data) > maxPreviewLen
	if truncated {
		data = data[:maxPreviewLen]
	}
	printable := bytes.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return '.'
		}
		return r
	}, data)
	if truncated {
		return string(printable) + "..."
	}
	return string(printable)
}
