package eventstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

func record(seq SequenceNumberUint, eventType string, payload string) EventRecord {
	return EventRecord{SequenceNumber: seq, EventType: eventType, Payload: MustParseValue(payload)}
}

func Test_MatchesFilter(t *testing.T) {
	lent := record(1, "BookCopyLentToReader", `{"BookID":"b1","ReaderID":"r1"}`)

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{name: "empty_filter_matches_everything", filter: CreateFilter(nil), expected: true},
		{name: "event_type_matches", filter: CreateFilter([]string{"X", "BookCopyLentToReader"}), expected: true},
		{name: "event_type_does_not_match", filter: CreateFilter([]string{"X"}), expected: false},
		{name: "any_predicate_matches", filter: CreateFilter(nil, P("BookID", String("b2")), P("ReaderID", String("r1"))), expected: true},
		{name: "no_predicate_matches", filter: CreateFilter(nil, P("BookID", String("b2"))), expected: false},
		{
			name:     "event_type_and_predicate_must_both_match",
			filter:   CreateFilter([]string{"BookCopyReturnedByReader"}, P("BookID", String("b1"))),
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, MatchesFilter(lent, tc.filter))
		})
	}
}

func Test_MatchesQuery_When_QueryIsEmpty_NothingMatches(t *testing.T) {
	// act & assert
	assert.False(t, MatchesQuery(record(1, "A", `{}`), CreateQuery()))
}

func Test_FilterRecordsByQuery_IsAnORAcrossFilters_AndKeepsTheOrder(t *testing.T) {
	// arrange
	records := EventRecords{
		record(1, "A", `{"x":1}`),
		record(2, "B", `{"y":2}`),
		record(3, "A", `{"x":2}`),
		record(4, "C", `{"x":1}`),
		record(5, "B", `{"y":3}`),
	}

	query := BuildEventQuery().
		Matching().
		AnyEventTypeOf("A").
		AndAnyPredicateOf(P("x", Number(1))).
		OrMatching().
		AnyEventTypeOf("B").
		Finalize()

	// act
	filtered := FilterRecordsByQuery(records, query)

	// assert
	assert.Len(t, filtered, 3)
	assert.Equal(t, SequenceNumberUint(1), filtered[0].SequenceNumber)
	assert.Equal(t, SequenceNumberUint(2), filtered[1].SequenceNumber)
	assert.Equal(t, SequenceNumberUint(5), filtered[2].SequenceNumber)
}

func Test_ExtractMaxSequenceNumber(t *testing.T) {
	// act & assert
	assert.Equal(t, MaxSequenceNumberUint(0), ExtractMaxSequenceNumber(nil))
	assert.Equal(t, MaxSequenceNumberUint(0), NewQueryResult(EventRecords{}).MaxSequenceNumber)
	assert.Equal(
		t,
		MaxSequenceNumberUint(7),
		ExtractMaxSequenceNumber(EventRecords{record(3, "A", `{}`), record(7, "A", `{}`)}),
	)
}
