package event

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the derived view of one ticker payload. Last is nil when the
// broker did not report a last trade.
type Snapshot struct {
	Bid           float64  `json:"bid"`
	Ask           float64  `json:"ask"`
	Mid           float64  `json:"mid"`
	Last          *float64 `json:"last,omitempty"`
	Spread        float64  `json:"spread"`
	SpreadPercent float64  `json:"spreadPercent"`
}

// tickerPayload matches the broker's ticker topic shape.
type tickerPayload struct {
	Bid  *struct{ Price float64 `json:"price"` } `json:"bid"`
	Ask  *struct{ Price float64 `json:"price"` } `json:"ask"`
	Last *struct{ Price float64 `json:"price"` } `json:"last"`
}

// ParseTicker derives a snapshot from a raw ticker payload.
func ParseTicker(raw json.RawMessage) (*Snapshot, error) {
	var t tickerPayload
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to parse ticker payload: %w", err)
	}
	if t.Bid == nil || t.Ask == nil {
		return nil, fmt.Errorf("ticker payload is missing bid or ask")
	}

	snap := &Snapshot{
		Bid: t.Bid.Price,
		Ask: t.Ask.Price,
	}
	snap.Mid = (snap.Bid + snap.Ask) / 2
	snap.Spread = snap.Ask - snap.Bid
	if snap.Mid > 0 {
		snap.SpreadPercent = snap.Spread / snap.Mid * 100
	}
	if t.Last != nil {
		last := t.Last.Price
		snap.Last = &last
	}
	return snap, nil
}

// FieldValue returns the snapshot value for a field. ok is false when the
// field is unavailable (absent last).
func (s *Snapshot) FieldValue(f Field) (float64, bool) {
	switch f {
	case FieldBid:
		return s.Bid, true
	case FieldAsk:
		return s.Ask, true
	case FieldMid:
		return s.Mid, true
	case FieldLast:
		if s.Last == nil {
			return 0, false
		}
		return *s.Last, true
	case FieldSpread:
		return s.Spread, true
	case FieldSpreadPercent:
		return s.SpreadPercent, true
	default:
		return 0, false
	}
}
