package eventstore

import (
	"time"
)

// Events is an alias type for a slice of Event
type Events = []Event

// Event is a DTO (data transfer object) used by the EventStore to append events.
//
// While its properties are exported, it should be constructed with one of the supplied factory methods:
//   - BuildEvent
//   - BuildEventFromValue
type Event struct {
	EventType string
	Payload   Value
}

// BuildEvent is a factory method for Event.
//
// Returns an error if eventType is empty or payloadJSON is not valid JSON.
func BuildEvent(eventType string, payloadJSON []byte) (Event, error) {
	if eventType == "" {
		return Event{}, ErrEmptyEventType
	}

	payload, err := ParseValue(payloadJSON)
	if err != nil {
		return Event{}, err
	}

	return Event{EventType: eventType, Payload: payload}, nil
}

// BuildEventFromValue is a factory method for Event with an already structured payload.
//
// Any Go value that ValueOf accepts can be used as payload.
func BuildEventFromValue(eventType string, payload any) (Event, error) {
	if eventType == "" {
		return Event{}, ErrEmptyEventType
	}

	value, err := ValueOf(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{EventType: eventType, Payload: value}, nil
}

// Validate checks an Event that was constructed without a factory method.
func (e Event) Validate() error {
	if e.EventType == "" {
		return ErrEmptyEventType
	}

	return nil
}

// EventRecords is an alias type for a slice of EventRecord
type EventRecords = []EventRecord

// EventRecord is a persisted Event together with the sequence number and the timestamp the backend assigned to it.
type EventRecord struct {
	SequenceNumber SequenceNumberUint
	Timestamp      time.Time
	EventType      string
	Payload        Value
}

// QueryResult holds the (precisely filtered) records of a query in ascending sequence number order,
// and the max sequence number among them.
type QueryResult struct {
	Events            EventRecords
	MaxSequenceNumber MaxSequenceNumberUint
}

// NewQueryResult wraps records that are ordered by ascending sequence number.
func NewQueryResult(records EventRecords) QueryResult {
	return QueryResult{
		Events:            records,
		MaxSequenceNumber: ExtractMaxSequenceNumber(records),
	}
}

// ExtractMaxSequenceNumber returns the sequence number of the last record, or 0 if there are no records.
// The records must be ordered by ascending sequence number.
func ExtractMaxSequenceNumber(records EventRecords) MaxSequenceNumberUint {
	if len(records) == 0 {
		return 0
	}

	return records[len(records)-1].SequenceNumber
}
