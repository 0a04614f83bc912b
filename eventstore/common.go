package eventstore

import (
	"errors"
)

// Configuration errors, returned by constructors before any I/O happens.
var (
	ErrNilDatabaseConnection = errors.New("database connection is nil")
	ErrEmptyEventsTableName  = errors.New("empty eventTableName supplied")
	ErrUnsupportedDialect    = errors.New("unsupported sql dialect")
	ErrNilNotifier           = errors.New("event stream notifier is nil")
)

// Usage errors, returned before a transaction is opened.
var (
	ErrMissingExpectedMaxSequenceNumber = errors.New("scoped append requires an expected max sequence number")
	ErrEmptyEventType                   = errors.New("event type must not be empty")
	ErrInvalidPayloadJSON               = errors.New("payload json is not valid")
	ErrUnsupportedPayloadValue          = errors.New("payload value can not be represented as json")
)

// ErrConcurrencyConflict is returned by Append when the max sequence number of the append scope moved
// since the caller queried it.
var ErrConcurrencyConflict = errors.New("concurrency error, the max sequence number of the append scope has changed")

// Backend errors, each naming the phase in which the backend failed.
var (
	ErrAcquiringSessionFailed     = errors.New("acquiring database session failed")
	ErrBuildingQueryFailed        = errors.New("building query failed")
	ErrQueryingEventsFailed       = errors.New("querying events failed")
	ErrAppendingEventFailed       = errors.New("appending the event failed")
	ErrBeginTransactionFailed     = errors.New("beginning the transaction failed")
	ErrCommitTransactionFailed    = errors.New("committing the transaction failed")
	ErrRollbackTransactionFailed  = errors.New("rolling back the transaction failed")
	ErrScanningDBRowFailed        = errors.New("scanning the database row failed")
	ErrInitializingDatabaseFailed = errors.New("initializing the database schema failed")
)

// Notifier errors.
var (
	ErrNotifierClosed             = errors.New("event stream notifier is closed")
	ErrNotifyingSubscribersFailed = errors.New("notifying subscribers failed")
)

// SequenceNumberUint is the type of the sequence number the backend assigns to each persisted event.
type SequenceNumberUint = uint64

// MaxSequenceNumberUint is a type alias for SequenceNumberUint, representing the highest sequence number
// within the scope of a query.
type MaxSequenceNumberUint = SequenceNumberUint
