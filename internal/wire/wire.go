// Package wire holds the JSON documents exchanged by the HTTP API and the CLI,
// and their conversion from and to eventstore types.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrInvalidRequest = errors.New("invalid request")

// Filter is one OR branch of a query. Missing eventTypes or payloadPredicates match anything.
type Filter struct {
	EventTypes        []string          `json:"eventTypes,omitempty"`
	PayloadPredicates []json.RawMessage `json:"payloadPredicates,omitempty"`
}

// QueryRequest selects events. A request without filters selects the whole log,
// an empty filters array selects nothing.
type QueryRequest struct {
	Filters []Filter `json:"filters"`
}

// Event is an event to append.
type Event struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// AppendRequest appends events, optionally guarded by a scope and the max sequence number
// the caller observed for it.
type AppendRequest struct {
	Events                    []Event       `json:"events"`
	Scope                     *QueryRequest `json:"scope,omitempty"`
	ExpectedMaxSequenceNumber *uint64       `json:"expectedMaxSequenceNumber,omitempty"`
}

// AppendResponse reports how many events were appended.
type AppendResponse struct {
	Appended int `json:"appended"`
}

// Record is a persisted event.
type Record struct {
	SequenceNumber uint64    `json:"sequenceNumber" yaml:"sequenceNumber"`
	OccurredAt     time.Time `json:"occurredAt" yaml:"occurredAt"`
	EventType      string    `json:"eventType" yaml:"eventType"`
	Payload        any       `json:"payload" yaml:"payload"`
}

// QueryResponse is the result of a query.
type QueryResponse struct {
	Events            []Record `json:"events" yaml:"events"`
	MaxSequenceNumber uint64   `json:"maxSequenceNumber" yaml:"maxSequenceNumber"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DecodeQueryRequest decodes a query document. Empty input is a request without filters.
func DecodeQueryRequest(raw []byte) (QueryRequest, error) {
	var req QueryRequest
	if len(raw) == 0 {
		return req, nil
	}

	if err := jsonAPI.Unmarshal(raw, &req); err != nil {
		return QueryRequest{}, errors.Join(ErrInvalidRequest, err)
	}

	return req, nil
}

// DecodeAppendRequest decodes an append document.
func DecodeAppendRequest(raw []byte) (AppendRequest, error) {
	var req AppendRequest
	if err := jsonAPI.Unmarshal(raw, &req); err != nil {
		return AppendRequest{}, errors.Join(ErrInvalidRequest, err)
	}

	return req, nil
}

// Criteria converts the request. Nil criteria select the whole log.
func (r QueryRequest) Criteria() (eventstore.FilterCriteria, error) {
	if r.Filters == nil {
		return nil, nil
	}

	return r.Query()
}

// Query converts the filters into an eventstore.Query. Nil filters give an empty query.
func (r QueryRequest) Query() (eventstore.Query, error) {
	filters := make([]eventstore.Filter, 0, len(r.Filters))

	for i, f := range r.Filters {
		predicates := make([]eventstore.Value, 0, len(f.PayloadPredicates))

		for j, raw := range f.PayloadPredicates {
			predicate, err := eventstore.ParseValue(raw)
			if err != nil {
				return eventstore.Query{}, errors.Join(
					ErrInvalidRequest,
					fmt.Errorf("filters[%d].payloadPredicates[%d]", i, j),
					err,
				)
			}

			predicates = append(predicates, predicate)
		}

		filters = append(filters, eventstore.CreateFilter(f.EventTypes, predicates...))
	}

	return eventstore.CreateQuery(filters...), nil
}

// BuildEvents validates and converts the events. An event without payload gets an empty object.
func (r AppendRequest) BuildEvents() (eventstore.Events, error) {
	events := make(eventstore.Events, 0, len(r.Events))

	for i, e := range r.Events {
		payload := []byte(e.Payload)
		if len(payload) == 0 {
			payload = []byte("{}")
		}

		event, err := eventstore.BuildEvent(e.EventType, payload)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("events[%d]", i), err)
		}

		events = append(events, event)
	}

	return events, nil
}

// AppendScope converts scope and expected max sequence number. Without a scope the append is unscoped.
func (r AppendRequest) AppendScope() (eventstore.AppendScope, error) {
	if r.Scope == nil {
		return eventstore.Unscoped(), nil
	}

	query, err := r.Scope.Query()
	if err != nil {
		return eventstore.AppendScope{}, err
	}

	scope := eventstore.ScopedTo(query)
	if r.ExpectedMaxSequenceNumber != nil {
		scope = scope.ExpectingMaxSequenceNumber(*r.ExpectedMaxSequenceNumber)
	}

	return scope, nil
}

// FromRecords converts records, turning payloads into plain Go values.
func FromRecords(records eventstore.EventRecords) []Record {
	out := make([]Record, 0, len(records))

	for _, record := range records {
		out = append(out, Record{
			SequenceNumber: record.SequenceNumber,
			OccurredAt:     record.Timestamp,
			EventType:      record.EventType,
			Payload:        eventstore.ToNative(record.Payload),
		})
	}

	return out
}

// FromQueryResult converts a query result.
func FromQueryResult(result eventstore.QueryResult) QueryResponse {
	return QueryResponse{
		Events:            FromRecords(result.Events),
		MaxSequenceNumber: result.MaxSequenceNumber,
	}
}
