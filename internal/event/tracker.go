package event

// ConditionHit is a triggered condition together with the value that
// triggered it.
type ConditionHit struct {
	Condition   Condition `json:"condition"`
	ActualValue float64   `json:"actualValue"`
}

// Tracker evaluates one subscription's conditions against successive
// snapshots, remembering prior values for crossing detection. Prior values
// are scoped to the tracker, never shared across subscriptions. A tracker is
// owned by a single goroutine.
type Tracker struct {
	sub  Subscription
	prev map[Field]float64
}

// NewTracker creates a tracker for one subscription.
func NewTracker(sub Subscription) *Tracker {
	return &Tracker{
		sub:  sub,
		prev: make(map[Field]float64),
	}
}

// ISIN returns the tracked instrument.
func (t *Tracker) ISIN() string { return t.sub.ISIN }

// Evaluate runs the subscription's conditions against snap. It returns the
// triggered conditions when the subscription fires per its logic, or nil.
// After a non-triggering evaluation, prior values are refreshed for every
// field present in the snapshot.
func (t *Tracker) Evaluate(snap *Snapshot) []ConditionHit {
	var hits []ConditionHit

	for _, cond := range t.sub.Conditions {
		value, ok := snap.FieldValue(cond.Field)
		if !ok {
			// Unavailable field: the condition is skipped, not failed.
			continue
		}
		if t.matches(cond, value) {
			hits = append(hits, ConditionHit{Condition: cond, ActualValue: value})
		}
	}

	fired := false
	switch t.sub.Logic {
	case LogicAll:
		fired = len(hits) == len(t.sub.Conditions)
	default: // LogicAny
		fired = len(hits) >= 1
	}

	if !fired {
		t.remember(snap)
		return nil
	}
	return hits
}

// matches evaluates a single condition against the current value.
func (t *Tracker) matches(cond Condition, value float64) bool {
	switch cond.Operator {
	case OpGT:
		return value > cond.Threshold
	case OpGTE:
		return value >= cond.Threshold
	case OpLT:
		return value < cond.Threshold
	case OpLTE:
		return value <= cond.Threshold
	case OpCrossAbove:
		prev, ok := t.prev[cond.Field]
		return ok && prev <= cond.Threshold && value > cond.Threshold
	case OpCrossBelow:
		prev, ok := t.prev[cond.Field]
		return ok && prev >= cond.Threshold && value < cond.Threshold
	default:
		return false
	}
}

// remember refreshes prior values for every field present in the snapshot.
func (t *Tracker) remember(snap *Snapshot) {
	for _, f := range []Field{FieldBid, FieldAsk, FieldMid, FieldLast, FieldSpread, FieldSpreadPercent} {
		if v, ok := snap.FieldValue(f); ok {
			t.prev[f] = v
		}
	}
}
