package controller

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse marks a 2xx reply whose body could not be understood.
var ErrMalformedResponse = errors.New("malformed controller response")

// ErrRequest marks a request that could not be built locally (bad base URL,
// unencodable body).  It never reached the controller.
var ErrRequest = errors.New("controller request not built")

// APIError is the single failure type returned by Client.  StatusCode is 0
// when no HTTP response was received (unreachable, TLS failure, timeout).
type APIError struct {
	Op         string
	StatusCode int
	Code       string // UniFi envelope code, when the body carried one
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case errors.Is(e.Err, ErrRequest):
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.StatusCode == 0:
		return fmt.Sprintf("%s: controller unreachable: %s", e.Op, e.Message)
	case e.Code != "":
		return fmt.Sprintf("%s: HTTP %d %s: %s", e.Op, e.StatusCode, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// Outage reports whether the controller itself looks down, as opposed to
// rejecting this particular request.
func (e *APIError) Outage() bool {
	if errors.Is(e.Err, ErrRequest) {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}
