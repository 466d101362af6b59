package auth

import "fmt"

// Error is an authentication failure: invalid PIN, invalid second-factor
// code, handshake network failure, or a gated call made while not
// authenticated. Code carries the broker's error code when one was returned
// (e.g. PIN_INVALID, 2FA_INVALID).
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Message != "":
		return e.Message
	case e.Code != "":
		return e.Code
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "authentication failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// SecondFactorRequired signals that the broker accepted the credentials and
// sent a second-factor code out-of-band. It is a prompt for the caller, not a
// failure to log.
type SecondFactorRequired struct {
	ProcessID   string
	MaskedPhone string
}

func (e *SecondFactorRequired) Error() string {
	return fmt.Sprintf("second factor required: code sent to %s", e.MaskedPhone)
}
