package eventstore

import (
	"bytes"
	"slices"
)

type FilterEventTypeString = string

/***** FilterCriteria *****/

// FilterCriteria is either a single Filter or a Query. A bare Filter is treated as a Query with only that Filter.
type FilterCriteria interface {
	asQuery() Query
}

// NormalizeCriteria turns FilterCriteria into a Query. Nil criteria stay nil (ok == false), meaning "no criteria".
func NormalizeCriteria(criteria FilterCriteria) (query Query, ok bool) {
	if criteria == nil {
		return Query{}, false
	}

	return criteria.asQuery(), true
}

/***** Query *****/

// Query is a disjunction of Filter(s): an event matches a Query if it matches ANY of its filters.
// A Query without filters matches nothing.
type Query struct {
	filters []Filter
}

// CreateQuery creates a Query from the given filters, keeping them as they are.
func CreateQuery(filters ...Filter) Query {
	return Query{filters: slices.Clone(filters)}
}

func (q Query) Filters() []Filter {
	return q.filters
}

// IsEmpty reports whether the Query has no filters.
func (q Query) IsEmpty() bool {
	return len(q.filters) == 0
}

// EventTypes returns the union of the event types of all filters, sorted and without duplicates.
// It returns nil if any filter accepts all event types, since then no event type can be excluded.
func (q Query) EventTypes() []FilterEventTypeString {
	var eventTypes []FilterEventTypeString

	for _, f := range q.filters {
		if len(f.eventTypes) == 0 {
			return nil
		}

		eventTypes = append(eventTypes, f.eventTypes...)
	}

	slices.Sort(eventTypes)

	return slices.Compact(eventTypes)
}

func (q Query) asQuery() Query {
	return q
}

/***** Filter *****/

// Filter matches events whose type is one of its event types (any type, if there are none)
// AND whose payload contains ANY of its payload predicates (any payload, if there are none).
type Filter struct {
	eventTypes        []FilterEventTypeString
	payloadPredicates []Value
}

// CreateFilter creates a Filter from the given event types and payload predicates, keeping them as they are.
func CreateFilter(eventTypes []FilterEventTypeString, payloadPredicates ...Value) Filter {
	return Filter{
		eventTypes:        slices.Clone(eventTypes),
		payloadPredicates: slices.Clone(payloadPredicates),
	}
}

func (f Filter) EventTypes() []FilterEventTypeString {
	return f.eventTypes
}

func (f Filter) PayloadPredicates() []Value {
	return f.payloadPredicates
}

func (f Filter) asQuery() Query {
	return Query{filters: []Filter{f}}
}

/***** QueryBuilder *****/

// QueryBuilder builds a Query out of one or multiple Filter(s), which are combined with OR.
// Within a Filter the event types and the payload predicates are combined with AND.
//
//   - (eventType)
//   - (eventType OR eventType...)
//   - (predicate)
//   - (predicate OR predicate...)
//   - (eventType AND predicate)
//   - ((eventType OR eventType...) AND (predicate OR predicate...))
//   - ((eventType AND predicate) OR (eventType AND predicate)...) -> multiple Filter(s)
type QueryBuilder interface {
	// Matching starts a new Filter.
	Matching() EmptyFilterBuilder

	// MatchingAnyEvent directly creates a Query with one empty Filter, which matches all events.
	MatchingAnyEvent() Query
}

type EmptyFilterBuilder interface {
	// AnyEventTypeOf adds one or multiple EventTypes to the current Filter.
	//
	// It sanitizes the input:
	//	- removing empty EventTypes ("")
	//	- sorting the EventTypes
	//	- removing duplicate EventTypes
	AnyEventTypeOf(eventType FilterEventTypeString, eventTypes ...FilterEventTypeString) FilterBuilderLackingPredicates

	// AnyPredicateOf adds one or multiple payload predicates to the current Filter.
	//
	// It sanitizes the input:
	//	- removing absent predicates (nil or Null)
	//	- sorting the predicates by their JSON representation
	//	- removing duplicate predicates
	AnyPredicateOf(predicate Value, predicates ...Value) FilterBuilderLackingEventTypes
}

type FilterBuilderLackingPredicates interface {
	// AndAnyPredicateOf adds one or multiple payload predicates to the current Filter.
	AndAnyPredicateOf(predicate Value, predicates ...Value) CompletedFilterBuilder

	// OrMatching finalizes the current Filter and starts a new one.
	OrMatching() EmptyFilterBuilder

	// Finalize returns the Query.
	Finalize() Query
}

type FilterBuilderLackingEventTypes interface {
	// AndAnyEventTypeOf adds one or multiple EventTypes to the current Filter.
	AndAnyEventTypeOf(eventType FilterEventTypeString, eventTypes ...FilterEventTypeString) CompletedFilterBuilder

	// OrMatching finalizes the current Filter and starts a new one.
	OrMatching() EmptyFilterBuilder

	// Finalize returns the Query.
	Finalize() Query
}

type CompletedFilterBuilder interface {
	// OrMatching finalizes the current Filter and starts a new one.
	OrMatching() EmptyFilterBuilder

	// Finalize returns the Query.
	Finalize() Query
}

// queryBuilder implements all the interfaces of QueryBuilder
type queryBuilder struct {
	query         Query
	currentFilter Filter
}

// BuildEventQuery creates a QueryBuilder which must eventually be finalized with Finalize() or MatchingAnyEvent().
func BuildEventQuery() QueryBuilder {
	return queryBuilder{}
}

// Matching starts a new Filter.
func (qb queryBuilder) Matching() EmptyFilterBuilder {
	qb.currentFilter = Filter{}

	return qb
}

// AnyEventTypeOf adds one or multiple EventTypes to the current Filter expecting ANY EventType to match.
func (qb queryBuilder) AnyEventTypeOf(
	eventType FilterEventTypeString,
	eventTypes ...FilterEventTypeString,
) FilterBuilderLackingPredicates {

	qb.currentFilter.eventTypes = qb.sanitizeEventTypes(
		append(slices.Clone(qb.currentFilter.eventTypes), append([]FilterEventTypeString{eventType}, eventTypes...)...),
	)

	return qb
}

// AndAnyEventTypeOf adds one or multiple EventTypes to the current Filter expecting ANY EventType to match.
func (qb queryBuilder) AndAnyEventTypeOf(
	eventType FilterEventTypeString,
	eventTypes ...FilterEventTypeString,
) CompletedFilterBuilder {

	return qb.AnyEventTypeOf(eventType, eventTypes...)
}

func (qb queryBuilder) sanitizeEventTypes(allEventTypes []FilterEventTypeString) []FilterEventTypeString {
	allEventTypes = slices.DeleteFunc(
		allEventTypes,
		func(e FilterEventTypeString) bool {
			return e == ""
		})
	slices.Sort(allEventTypes)
	allEventTypes = slices.Compact(allEventTypes)
	allEventTypes = slices.Clip(allEventTypes)

	return allEventTypes
}

// AnyPredicateOf adds one or multiple payload predicates to the current Filter expecting ANY predicate to match.
func (qb queryBuilder) AnyPredicateOf(
	predicate Value,
	predicates ...Value,
) FilterBuilderLackingEventTypes {

	qb.currentFilter.payloadPredicates = qb.sanitizePredicates(
		append(slices.Clone(qb.currentFilter.payloadPredicates), append([]Value{predicate}, predicates...)...),
	)

	return qb
}

// AndAnyPredicateOf adds one or multiple payload predicates to the current Filter expecting ANY predicate to match.
func (qb queryBuilder) AndAnyPredicateOf(
	predicate Value,
	predicates ...Value,
) CompletedFilterBuilder {

	return qb.AnyPredicateOf(predicate, predicates...)
}

func (qb queryBuilder) sanitizePredicates(allPredicates []Value) []Value {
	type keyedPredicate struct {
		key       []byte
		predicate Value
	}

	keyed := make([]keyedPredicate, 0, len(allPredicates))

	for _, p := range allPredicates {
		if IsAbsent(p) {
			continue
		}

		key, err := MarshalValue(p)
		if err != nil {
			// not representable as JSON (e.g. NaN), kept but never deduplicated
			key = nil
		}

		keyed = append(keyed, keyedPredicate{key: key, predicate: p})
	}

	slices.SortStableFunc(keyed, func(a, b keyedPredicate) int {
		return bytes.Compare(a.key, b.key)
	})

	keyed = slices.CompactFunc(keyed, func(a, b keyedPredicate) bool {
		return a.key != nil && bytes.Equal(a.key, b.key)
	})

	sanitized := make([]Value, 0, len(keyed))
	for _, k := range keyed {
		sanitized = append(sanitized, k.predicate)
	}

	return sanitized
}

// OrMatching finalizes the current Filter and starts a new one.
func (qb queryBuilder) OrMatching() EmptyFilterBuilder {
	qb.query.filters = append(slices.Clone(qb.query.filters), qb.currentFilter)
	qb.currentFilter = Filter{}

	return qb
}

// MatchingAnyEvent directly creates a Query with one empty Filter.
func (qb queryBuilder) MatchingAnyEvent() Query {
	return Query{filters: []Filter{{}}}
}

// Finalize returns the Query with all Filter(s) collected so far, including the current one.
func (qb queryBuilder) Finalize() Query {
	qb.query.filters = append(slices.Clone(qb.query.filters), qb.currentFilter)

	return qb.query
}
