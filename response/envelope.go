// Package response builds the uniform result envelope returned by every
// CRUD operation.
package response

import jsoniter "github.com/json-iterator/go"

// Result codes carried by an Envelope.
const (
	CodeOK         = 200
	CodeBadRequest = 400
	CodeNotFound   = 404
	CodeInternal   = 500
)

type entry struct {
	status  string
	message string
}

var table = map[int]entry{
	CodeOK:         {"OK", "The request has succeeded."},
	CodeBadRequest: {"Bad Request", "The server could not understand the request due to invalid syntax."},
	CodeNotFound:   {"Not Found", "The server can not find requested resource."},
	CodeInternal:   {"Internal Server Error", "The server has encountered a situation it doesn't know how to handle."},
}

var unknown = entry{"ERROR", "Unknown error!"}

// Envelope is the tagged result of an operation. Status and Message are
// derived from Code.
type Envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Build returns the envelope for data and code.
func Build(data any, code int) Envelope {
	e, ok := table[code]
	if !ok {
		e = unknown
	}
	return Envelope{
		Code:    code,
		Data:    data,
		Message: e.message,
		Status:  e.status,
	}
}

// OK reports whether the envelope carries a 200 code.
func (e Envelope) OK() bool { return e.Code == CodeOK }

// MarshalJSON renders error payloads as their message.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type plain Envelope
	p := plain(e)
	if err, ok := p.Data.(error); ok {
		p.Data = err.Error()
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(p)
}
