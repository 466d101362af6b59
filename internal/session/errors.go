package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTimeout is returned when an await pattern's timer fires before any
// relevant message arrives.
var ErrTimeout = errors.New("timed out waiting for broker response")

// SubscriptionError is a business failure the broker returned as an E frame
// for an active subscription (unknown ISIN, insufficient permissions, order
// rejected).
type SubscriptionError struct {
	ID      int
	Code    string
	Message string
}

func (e *SubscriptionError) Error() string {
	if e.Code != "" && e.Message != "" && e.Code != e.Message {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("subscription %d failed", e.ID)
}

// NotSupportedError marks operations the broker's API does not permit, so
// callers know to cancel-and-replace instead of retrying.
type NotSupportedError struct {
	Op string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("NOT_SUPPORTED: %s", e.Op)
}

// errorPayload is the broker's E frame body. It reuses the REST error shapes.
type errorPayload struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Message      string `json:"message"`
	Errors       []struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"errors"`
}

// subscriptionError extracts the most specific message from an E frame
// payload.
func subscriptionError(id int, payload json.RawMessage) *SubscriptionError {
	var ep errorPayload
	if err := json.Unmarshal(payload, &ep); err != nil {
		return &SubscriptionError{ID: id, Message: string(payload)}
	}

	code := ep.ErrorCode
	if len(ep.Errors) > 0 && ep.Errors[0].ErrorCode != "" {
		code = ep.Errors[0].ErrorCode
	}

	var first struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if len(ep.Errors) > 0 {
		first = ep.Errors[0]
	}

	for _, msg := range []string{first.ErrorMessage, first.ErrorCode, ep.Message, ep.ErrorMessage, ep.ErrorCode} {
		if msg != "" {
			return &SubscriptionError{ID: id, Code: code, Message: msg}
		}
	}
	return &SubscriptionError{ID: id, Code: code, Message: string(payload)}
}
