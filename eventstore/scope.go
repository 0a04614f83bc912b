package eventstore

// ScopeKind tells whether an append is checked against a max sequence number or not.
type ScopeKind int

const (
	// UnscopedKind appends unconditionally, no concurrency check happens.
	UnscopedKind ScopeKind = iota

	// ScopedKind appends only if the max sequence number of the scope is still the expected one.
	ScopedKind
)

func (k ScopeKind) String() string {
	switch k {
	case UnscopedKind:
		return "unscoped"
	case ScopedKind:
		return "scoped"
	default:
		return "unknown"
	}
}

// AppendScope describes which part of the event log an append is conditioned on.
//
// Build it with one of:
//   - Unscoped()
//   - ScopedTo(criteria).ExpectingMaxSequenceNumber(maxSeq)
//
// The zero value is unscoped.
type AppendScope struct {
	criteria       FilterCriteria
	expected       MaxSequenceNumberUint
	expectedWasSet bool
}

// Unscoped returns an AppendScope for unconditional appends.
func Unscoped() AppendScope {
	return AppendScope{}
}

// ScopedTo returns an AppendScope bound to the given Filter or Query.
// It must be completed with ExpectingMaxSequenceNumber, otherwise Append fails with ErrMissingExpectedMaxSequenceNumber.
func ScopedTo(criteria FilterCriteria) AppendScope {
	return AppendScope{criteria: criteria}
}

// ExpectingMaxSequenceNumber sets the max sequence number the caller observed with a Query on the same scope.
func (s AppendScope) ExpectingMaxSequenceNumber(expected MaxSequenceNumberUint) AppendScope {
	s.expected = expected
	s.expectedWasSet = true

	return s
}

// ResolvedScope is the normalized form of an AppendScope.
type ResolvedScope struct {
	Kind     ScopeKind
	Query    Query
	Expected MaxSequenceNumberUint
}

// Resolve normalizes the AppendScope.
//
// Criteria that resolve to a Query without filters can't bound anything, so they resolve to an unscoped append.
// Criteria with filters but without an expected max sequence number are a usage error.
func (s AppendScope) Resolve() (ResolvedScope, error) {
	query, ok := NormalizeCriteria(s.criteria)
	if !ok || query.IsEmpty() {
		return ResolvedScope{Kind: UnscopedKind}, nil
	}

	if !s.expectedWasSet {
		return ResolvedScope{}, ErrMissingExpectedMaxSequenceNumber
	}

	return ResolvedScope{Kind: ScopedKind, Query: query, Expected: s.expected}, nil
}
