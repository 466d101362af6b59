package event

// Status of an event wait.
const (
	StatusTriggered = "triggered"
	StatusTimeout   = "timeout"
)

// Result is the single outcome of an event wait: either the first predicate
// hit, or a timeout carrying the last snapshot seen per instrument.
type Result struct {
	Status string `json:"status"`

	// Set when Status is StatusTriggered.
	ISIN                string         `json:"isin,omitempty"`
	Snapshot            *Snapshot      `json:"snapshot,omitempty"`
	TriggeredConditions []ConditionHit `json:"triggeredConditions,omitempty"`

	// Set when Status is StatusTimeout: every instrument that delivered at
	// least one snapshot, keyed by ISIN.
	LastTickers map[string]Snapshot `json:"lastTickers,omitempty"`

	DurationSeconds float64 `json:"duration"`
}
