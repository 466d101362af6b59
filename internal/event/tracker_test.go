package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(bid, ask float64) *Snapshot {
	s := &Snapshot{Bid: bid, Ask: ask}
	s.Mid = (bid + ask) / 2
	s.Spread = ask - bid
	if s.Mid > 0 {
		s.SpreadPercent = s.Spread / s.Mid * 100
	}
	return s
}

func TestThresholdOperators(t *testing.T) {
	tests := []struct {
		name      string
		op        Operator
		threshold float64
		bid       float64
		fires     bool
	}{
		{"gt above", OpGT, 100, 100.5, true},
		{"gt equal", OpGT, 100, 100, false},
		{"gte equal", OpGTE, 100, 100, true},
		{"gte below", OpGTE, 100, 99.9, false},
		{"lt below", OpLT, 100, 99.9, true},
		{"lt equal", OpLT, 100, 100, false},
		{"lte equal", OpLTE, 100, 100, true},
		{"lte above", OpLTE, 100, 100.1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(Subscription{
				ISIN:       "US0378331005",
				Conditions: []Condition{{Field: FieldBid, Operator: tt.op, Threshold: tt.threshold}},
				Logic:      LogicAny,
			})

			hits := tracker.Evaluate(snapshotAt(tt.bid, tt.bid+1))
			if tt.fires {
				require.Len(t, hits, 1)
				assert.Equal(t, tt.bid, hits[0].ActualValue)
			} else {
				assert.Nil(t, hits)
			}
		})
	}
}

func TestCrossAboveNeverFiresOnFirstObservation(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN:       "US0378331005",
		Conditions: []Condition{{Field: FieldBid, Operator: OpCrossAbove, Threshold: 100}},
		Logic:      LogicAny,
	})

	// First tick is already above the threshold, but with no prior value
	// there is no crossing to detect.
	assert.Nil(t, tracker.Evaluate(snapshotAt(105, 106)))

	// Still above: no transition happened.
	assert.Nil(t, tracker.Evaluate(snapshotAt(107, 108)))
}

func TestCrossAbove(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN:       "US0378331005",
		Conditions: []Condition{{Field: FieldBid, Operator: OpCrossAbove, Threshold: 100}},
		Logic:      LogicAny,
	})

	assert.Nil(t, tracker.Evaluate(snapshotAt(99, 100)))

	hits := tracker.Evaluate(snapshotAt(100.5, 101))
	require.Len(t, hits, 1)
	assert.Equal(t, OpCrossAbove, hits[0].Condition.Operator)
	assert.Equal(t, 100.5, hits[0].ActualValue)
}

func TestCrossAboveFromExactThreshold(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN:       "US0378331005",
		Conditions: []Condition{{Field: FieldBid, Operator: OpCrossAbove, Threshold: 100}},
		Logic:      LogicAny,
	})

	// prev == threshold counts as "at or below": the move above it fires.
	assert.Nil(t, tracker.Evaluate(snapshotAt(100, 101)))
	hits := tracker.Evaluate(snapshotAt(100.1, 101))
	require.Len(t, hits, 1)
}

func TestCrossBelow(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN:       "US0378331005",
		Conditions: []Condition{{Field: FieldAsk, Operator: OpCrossBelow, Threshold: 50}},
		Logic:      LogicAny,
	})

	assert.Nil(t, tracker.Evaluate(snapshotAt(50, 51)))
	assert.Nil(t, tracker.Evaluate(snapshotAt(49.5, 50)))

	hits := tracker.Evaluate(snapshotAt(48, 49.5))
	require.Len(t, hits, 1)
	assert.Equal(t, 49.5, hits[0].ActualValue)
}

func TestLogicAllRequiresEveryCondition(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN: "US0378331005",
		Conditions: []Condition{
			{Field: FieldBid, Operator: OpGT, Threshold: 100},
			{Field: FieldSpreadPercent, Operator: OpLT, Threshold: 1},
		},
		Logic: LogicAll,
	})

	// Bid is above 100 but the spread is far too wide.
	assert.Nil(t, tracker.Evaluate(snapshotAt(101, 111)))

	hits := tracker.Evaluate(snapshotAt(101, 101.5))
	require.Len(t, hits, 2)
}

func TestLogicAnyFiresOnOneCondition(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN: "US0378331005",
		Conditions: []Condition{
			{Field: FieldBid, Operator: OpGT, Threshold: 1000},
			{Field: FieldAsk, Operator: OpLT, Threshold: 100},
		},
		Logic: LogicAny,
	})

	hits := tracker.Evaluate(snapshotAt(50, 51))
	require.Len(t, hits, 1)
	assert.Equal(t, FieldAsk, hits[0].Condition.Field)
}

func TestUnavailableFieldIsSkipped(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN: "US0378331005",
		Conditions: []Condition{
			{Field: FieldLast, Operator: OpGT, Threshold: 0},
			{Field: FieldBid, Operator: OpGT, Threshold: 100},
		},
		Logic: LogicAll,
	})

	// No last trade in the snapshot: the last condition neither matches nor
	// fails, so ALL cannot be satisfied with it unmet.
	assert.Nil(t, tracker.Evaluate(snapshotAt(101, 102)))

	last := 5.0
	snap := snapshotAt(101, 102)
	snap.Last = &last
	hits := tracker.Evaluate(snap)
	require.Len(t, hits, 2)
}

func TestPriorValueRefreshedAfterNonTrigger(t *testing.T) {
	tracker := NewTracker(Subscription{
		ISIN:       "US0378331005",
		Conditions: []Condition{{Field: FieldBid, Operator: OpCrossAbove, Threshold: 100}},
		Logic:      LogicAny,
	})

	// Climb below the threshold across several ticks, then cross.
	assert.Nil(t, tracker.Evaluate(snapshotAt(95, 96)))
	assert.Nil(t, tracker.Evaluate(snapshotAt(98, 99)))
	assert.Nil(t, tracker.Evaluate(snapshotAt(99.9, 100.5)))

	hits := tracker.Evaluate(snapshotAt(100.2, 100.8))
	require.Len(t, hits, 1)
}

func TestTrackersDoNotShareState(t *testing.T) {
	sub := Subscription{
		ISIN:       "US0378331005",
		Conditions: []Condition{{Field: FieldBid, Operator: OpCrossAbove, Threshold: 100}},
		Logic:      LogicAny,
	}
	a := NewTracker(sub)
	b := NewTracker(sub)

	// Prime only tracker a below the threshold.
	assert.Nil(t, a.Evaluate(snapshotAt(99, 100)))

	// b has no prior value, so the same tick does not fire for it.
	require.Len(t, a.Evaluate(snapshotAt(101, 102)), 1)
	assert.Nil(t, b.Evaluate(snapshotAt(101, 102)))
}
