// Package errs provides types and support related to web v1 functionality.
package errs

import (
	"encoding/json"
	"errors"
)

// Response is the form used for API responses from failures in the API.
// Context values are written next to the error at the top level.
type Response struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Context map[string]any    `json:"-"`
}

// MarshalJSON flattens the context into the response object. The fixed
// fields win over a context value with the same name.
func (r Response) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Context)+3)
	for k, v := range r.Context {
		m[k] = v
	}

	m["error"] = r.Error
	if r.Code != "" {
		m["code"] = r.Code
	}
	if len(r.Fields) > 0 {
		m["fields"] = r.Fields
	}

	return json.Marshal(m)
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err     error
	Status  int
	Code    string
	Context map[string]any
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{Err: err, Status: status}
}

// NewTrustedCode wraps a provided error with an HTTP status code, a
// machine readable code and extra values for the client.
func NewTrustedCode(err error, status int, code string, context map[string]any) error {
	return &Trusted{Err: err, Status: status, Code: code, Context: context}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (re *Trusted) Error() string {
	return re.Err.Error()
}

// Unwrap provides access to the wrapped error.
func (re *Trusted) Unwrap() error {
	return re.Err
}

// Response converts the trusted error into the response sent to the client.
func (re *Trusted) Response() Response {
	return Response{
		Error:   re.Err.Error(),
		Code:    re.Code,
		Context: re.Context,
	}
}

// IsTrusted checks if an error of type Trusted exists.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns a copy of the Trusted pointer.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}
