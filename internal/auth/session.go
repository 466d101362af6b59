package auth

import (
	"net/http"
	"strings"
)

// Session is the opaque cookie jar captured from the handshake. Cookies are
// stored verbatim and rendered into a single Cookie header for the socket
// upgrade. Nominal broker-side validity is around 290 seconds; the core does
// not refresh it.
type Session struct {
	cookies []*http.Cookie
}

// NewSession creates a session from an initial cookie set.
func NewSession(cookies []*http.Cookie) *Session {
	s := &Session{}
	s.Merge(cookies)
	return s
}

// Merge applies a refreshed cookie set, replacing cookies with the same name
// and appending new ones.
func (s *Session) Merge(cookies []*http.Cookie) {
	for _, c := range cookies {
		replaced := false
		for i, existing := range s.cookies {
			if existing.Name == c.Name {
				s.cookies[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			s.cookies = append(s.cookies, c)
		}
	}
}

// CookieHeader renders the jar as a single Cookie header value.
func (s *Session) CookieHeader() string {
	pairs := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// Cookies returns the stored cookies.
func (s *Session) Cookies() []*http.Cookie {
	return s.cookies
}
