package eventstore

import (
	"slices"
)

// MatchesFilter reports whether the record matches the Filter's event types AND any of its payload predicates.
func MatchesFilter(record EventRecord, filter Filter) bool {
	return matchesEventType(record.EventType, filter.eventTypes) &&
		matchesPredicates(record.Payload, filter.payloadPredicates)
}

// MatchesQuery reports whether the record matches ANY Filter of the Query.
func MatchesQuery(record EventRecord, query Query) bool {
	return slices.ContainsFunc(query.filters, func(f Filter) bool {
		return MatchesFilter(record, f)
	})
}

// FilterRecordsByQuery returns the records matching the Query, keeping their order.
func FilterRecordsByQuery(records EventRecords, query Query) EventRecords {
	filtered := make(EventRecords, 0, len(records))

	for _, record := range records {
		if MatchesQuery(record, query) {
			filtered = append(filtered, record)
		}
	}

	return filtered
}

func matchesEventType(eventType string, eventTypes []FilterEventTypeString) bool {
	if len(eventTypes) == 0 {
		return true
	}

	return slices.Contains(eventTypes, eventType)
}

func matchesPredicates(payload Value, predicates []Value) bool {
	if len(predicates) == 0 {
		return true
	}

	return slices.ContainsFunc(predicates, func(predicate Value) bool {
		return IsSubset(payload, predicate)
	})
}
