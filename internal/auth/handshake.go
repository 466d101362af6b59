// Package auth implements the REST login handshake against the broker
// gateway and tracks the resulting session cookies.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the production REST gateway.
	DefaultBaseURL = "https://api.traderepublic.com"

	loginPath = "/api/v1/auth/web/login"

	// Both handshake calls are bounded by this timeout.
	requestTimeout = 10 * time.Second
)

// Doer is the injected HTTP client seam.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HandshakeConfig configures the handshake client. Zero values select
// production defaults.
type HandshakeConfig struct {
	BaseURL string
	Client  Doer
	Logger  zerolog.Logger
}

// HandshakeClient performs the two-step login dance and owns the resulting
// session and authentication state.
type HandshakeClient struct {
	baseURL string
	client  Doer
	log     zerolog.Logger

	state atomic.Int32

	mu        sync.Mutex
	processID string
	creds     Credentials
	session   *Session
}

// NewHandshakeClient creates a handshake client.
func NewHandshakeClient(cfg HandshakeConfig) *HandshakeClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: requestTimeout}
	}
	return &HandshakeClient{
		baseURL: cfg.BaseURL,
		client:  cfg.Client,
		log:     cfg.Logger,
	}
}

// State returns the current authentication state.
func (c *HandshakeClient) State() State {
	return State(c.state.Load())
}

// Session returns the current cookie jar, or nil before the first login step.
func (c *HandshakeClient) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Reset drops the session and returns to StateUnauthenticated. Used for
// explicit user-driven re-login.
func (c *HandshakeClient) Reset() {
	c.mu.Lock()
	c.processID = ""
	c.creds = Credentials{}
	c.session = nil
	c.mu.Unlock()
	c.state.Store(int32(StateUnauthenticated))
}

// BeginLogin posts the credentials and returns a SecondFactorRequired signal
// carrying the masked phone number so the caller can prompt for the code.
// State moves to StateAwaitingSecondFactor on success.
func (c *HandshakeClient) BeginLogin(ctx context.Context, creds Credentials) (*SecondFactorRequired, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	body := map[string]string{
		"phoneNumber": creds.PhoneNumber,
		"pin":         creds.PIN,
	}

	var result struct {
		ProcessID string `json:"processId"`
	}
	cookies, err := c.post(ctx, loginPath, body, &result)
	if err != nil {
		c.fail()
		return nil, err
	}
	if result.ProcessID == "" {
		c.fail()
		return nil, &Error{Message: "login response did not include a process id"}
	}

	c.mu.Lock()
	c.processID = result.ProcessID
	c.creds = creds
	c.session = NewSession(cookies)
	c.mu.Unlock()
	c.state.Store(int32(StateAwaitingSecondFactor))

	c.log.Info().
		Str("phone", creds.MaskedPhone()).
		Msg("Login accepted, waiting for second factor")

	return &SecondFactorRequired{
		ProcessID:   result.ProcessID,
		MaskedPhone: creds.MaskedPhone(),
	}, nil
}

// CompleteLogin submits the four-digit second-factor code. On success the
// cookie jar is refreshed and state becomes StateAuthenticated.
func (c *HandshakeClient) CompleteLogin(ctx context.Context, code string) (*Session, error) {
	if c.State() != StateAwaitingSecondFactor {
		return nil, &Error{Code: "NOT_AWAITING_2FA", Message: "no login in progress"}
	}
	if !pinPattern.MatchString(code) {
		return nil, &Error{Code: "2FA_INVALID", Message: "second-factor code must be exactly 4 digits"}
	}

	c.mu.Lock()
	processID := c.processID
	c.mu.Unlock()

	path := fmt.Sprintf("%s/%s/%s", loginPath, processID, code)
	cookies, err := c.post(ctx, path, nil, nil)
	if err != nil {
		c.fail()
		return nil, err
	}

	c.mu.Lock()
	c.session.Merge(cookies)
	session := c.session
	c.mu.Unlock()
	c.state.Store(int32(StateAuthenticated))

	c.log.Info().Msg("Authenticated with broker")
	return session, nil
}

// fail returns to StateUnauthenticated after any handshake failure.
func (c *HandshakeClient) fail() {
	c.state.Store(int32(StateUnauthenticated))
}

// post performs a handshake POST, decodes 2xx bodies into out (when non-nil),
// and translates non-2xx bodies through the broker error-response shape.
func (c *HandshakeClient) post(ctx context.Context, path string, body any, out any) ([]*http.Cookie, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Message: "failed to encode request", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: "handshake request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return nil, decodeError(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &Error{Message: "failed to decode response", Err: err}
		}
	}
	return resp.Cookies(), nil
}

// errorEntry is one element of the errors array response shape.
type errorEntry struct {
	ErrorCode    string         `json:"errorCode"`
	ErrorMessage string         `json:"errorMessage"`
	Meta         map[string]any `json:"meta"`
}

// errorResponse covers both broker error shapes: the legacy flat form and the
// errors array form.
type errorResponse struct {
	ErrorCode    string       `json:"errorCode"`
	ErrorMessage string       `json:"errorMessage"`
	Message      string       `json:"message"`
	Errors       []errorEntry `json:"errors"`
}

// decodeError extracts the most specific message available, in priority
// order: errors[0].errorMessage, errors[0].errorCode, message, errorMessage,
// errorCode.
func decodeError(status int, body []byte) *Error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return &Error{Message: fmt.Sprintf("handshake failed with status %d", status)}
	}

	var first errorEntry
	if len(er.Errors) > 0 {
		first = er.Errors[0]
	}

	code := er.ErrorCode
	if first.ErrorCode != "" {
		code = first.ErrorCode
	}

	for _, msg := range []string{first.ErrorMessage, first.ErrorCode, er.Message, er.ErrorMessage, er.ErrorCode} {
		if msg != "" {
			return &Error{Code: code, Message: msg}
		}
	}
	return &Error{Code: code, Message: fmt.Sprintf("handshake failed with status %d", status)}
}
