package auth

import (
	"fmt"
	"regexp"
)

var (
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	pinPattern   = regexp.MustCompile(`^\d{4}$`)
)

// Credentials are held only in memory and never persisted.
type Credentials struct {
	PhoneNumber string
	PIN         string
}

// Validate checks the phone number (E.164) and the 4-digit PIN.
func (c Credentials) Validate() error {
	if !phonePattern.MatchString(c.PhoneNumber) {
		return &Error{Code: "INVALID_PHONE_NUMBER", Message: "phone number must be in E.164 format, e.g. +4917012345678"}
	}
	if !pinPattern.MatchString(c.PIN) {
		return &Error{Code: "INVALID_PIN", Message: "pin must be exactly 4 digits"}
	}
	return nil
}

// MaskedPhone returns the phone number in diagnostic form:
// first 6 characters, "***", last 2 characters. Short numbers keep only the
// first 3 characters.
func (c Credentials) MaskedPhone() string {
	return MaskPhone(c.PhoneNumber)
}

// MaskPhone masks an arbitrary phone number string for logs and prompts.
func MaskPhone(phone string) string {
	switch {
	case len(phone) >= 9:
		return fmt.Sprintf("%s***%s", phone[:6], phone[len(phone)-2:])
	case len(phone) >= 5:
		return fmt.Sprintf("%s***%s", phone[:3], phone[len(phone)-2:])
	default:
		return "***"
	}
}
