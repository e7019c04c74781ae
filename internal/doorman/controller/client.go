// Package controller talks to the UniFi Access developer API.  Every
// operation is a single HTTP request; retries are left to the caller.
package controller

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/n1ghtBl00d/801DoorBot/internal/doorman/types"
	"github.com/n1ghtBl00d/801DoorBot/internal/logging"
)

const (
	emergencyPath = "/developer/doors/settings/emergency"
	doorsPath     = "/developer/doors"

	// maxResponseBody caps how much of a reply is read.  Door listings for a
	// single site are a few KiB.
	maxResponseBody = 1 << 20

	successCode = "SUCCESS"
)

type Options struct {
	BaseURL   string // e.g. https://10.0.0.5:12445/api/v1
	Token     string
	VerifyTLS bool
	Timeout   time.Duration
	Logger    *slog.Logger

	// HTTPClient overrides the transport built from VerifyTLS/Timeout.
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		// Controllers ship with self-signed certificates.
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: !opts.VerifyTLS} //nolint:gosec
		hc = &http.Client{Transport: tr, Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    hc,
		logger:  logger,
	}
}

type emergencySettings struct {
	Lockdown   bool `json:"lockdown"`
	Evacuation bool `json:"evacuation"`
}

// SetEvacuationMode turns evacuation on (all doors unlocked) or off (normal
// locked operation).  Lockdown is always sent as false.
func (c *Client) SetEvacuationMode(ctx context.Context, enabled bool) error {
	body, err := json.Marshal(emergencySettings{Lockdown: false, Evacuation: enabled})
	if err != nil {
		return &APIError{Op: "set evacuation mode", Message: "encode body: " + err.Error(), Err: fmt.Errorf("%w: %v", ErrRequest, err)}
	}
	_, _, err = c.do(ctx, "set evacuation mode", http.MethodPut, emergencyPath, body)
	return err
}

// GetStatus fetches the evacuation flag and maps it to a door state.
func (c *Client) GetStatus(ctx context.Context) (types.DoorState, error) {
	const op = "get status"
	raw, status, err := c.do(ctx, op, http.MethodGet, emergencyPath, nil)
	if err != nil {
		return types.Locked, err
	}
	evac, err := decodeEvacuation(raw)
	if err != nil {
		return types.Locked, &APIError{Op: op, StatusCode: status, Message: err.Error(), Err: err}
	}
	return types.DoorStateFromEvacuation(evac), nil
}

// ListDoors returns every door the controller manages.
func (c *Client) ListDoors(ctx context.Context) ([]types.Door, error) {
	const op = "list doors"
	raw, status, err := c.do(ctx, op, http.MethodGet, doorsPath, nil)
	if err != nil {
		return nil, err
	}
	var doors []types.Door
	if err := json.Unmarshal(raw, &doors); err != nil {
		return nil, &APIError{Op: op, StatusCode: status,
			Message: "door list is not an array", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return doors, nil
}

// envelope is the wrapper UniFi Access puts around every payload.  Some
// firmware (and test doubles) return the payload bare, so Data may be empty.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// do performs one request and returns the payload (the envelope's data when
// present, the whole body otherwise) with the HTTP status.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (json.RawMessage, int, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, 0, &APIError{Op: op, Message: "build request: " + err.Error(), Err: fmt.Errorf("%w: %v", ErrRequest, err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("controller request", "op", op, "method", method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &APIError{Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, &APIError{Op: op, StatusCode: resp.StatusCode, Message: "read body: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("controller returned non-2xx",
			"op", op, "status", resp.StatusCode, "body", truncate(string(raw), 512))
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Code != "" {
			apiErr.Code = env.Code
			if env.Msg != "" {
				apiErr.Message = env.Msg
			}
		}
		return nil, resp.StatusCode, apiErr
	}

	c.logger.Debug("controller response", "op", op, "status", resp.StatusCode, "bytes", len(raw))

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, resp.StatusCode, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A bare JSON array (or anything else that is valid JSON) is a payload.
		if json.Valid(raw) {
			return raw, resp.StatusCode, nil
		}
		return nil, resp.StatusCode, &APIError{Op: op, StatusCode: resp.StatusCode,
			Message: "invalid JSON body", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if env.Code != "" && env.Code != successCode {
		msg := env.Msg
		if msg == "" {
			msg = "controller rejected the request"
		}
		return nil, resp.StatusCode, &APIError{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data, resp.StatusCode, nil
	}
	return raw, resp.StatusCode, nil
}

// decodeEvacuation accepts {"evacuation_mode":b}, {"evacuation":b}, and
// either of those nested under the envelope's data (already unwrapped).
func decodeEvacuation(raw json.RawMessage) (bool, error) {
	var v struct {
		EvacuationMode *bool `json:"evacuation_mode"`
		Evacuation     *bool `json:"evacuation"`
	}
	if len(raw) == 0 {
		return false, fmt.Errorf("%w: empty status body", ErrMalformedResponse)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch {
	case v.EvacuationMode != nil:
		return *v.EvacuationMode, nil
	case v.Evacuation != nil:
		return *v.Evacuation, nil
	}
	return false, fmt.Errorf("%w: no evacuation flag in status body", ErrMalformedResponse)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsAPIError unwraps err into an *APIError.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
