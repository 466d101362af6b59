package auth

// State tracks progress through the login flow. Any failure drops back to
// StateUnauthenticated.
type State int32

const (
	StateUnauthenticated State = iota
	StateAwaitingSecondFactor
	StateAuthenticated
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAwaitingSecondFactor:
		return "AWAITING_SECOND_FACTOR"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}
