package tastytrade

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedInstrument is returned by StreamerSymbol for instrument types
// without a lookup endpoint.
var ErrUnsupportedInstrument = errors.New("tastytrade: unsupported instrument type")

// ErrEmptyResponse is returned when a success envelope carries no data.
var ErrEmptyResponse = errors.New("tastytrade: empty response")

// InnerError is one entry of APIError.Errors.
type InnerError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// APIError is the {"error": {...}} envelope, plus the HTTP status.
type APIError struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code,omitempty"`
	Message    string       `json:"message"`
	Errors     []InnerError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tastytrade: api error (http %d)", e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	for _, inner := range e.Errors {
		fmt.Fprintf(&b, "; %s", inner.Message)
	}
	return b.String()
}

// Temporary reports whether the request may succeed on retry.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
