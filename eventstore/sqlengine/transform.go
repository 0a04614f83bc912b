package sqlengine

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// transformRow deserializes a persisted row into an eventstore.EventRecord.
func transformRow(row Row) (eventstore.EventRecord, error) {
	sequenceNumber, err := toSequenceNumber(row[colSequenceNumber])
	if err != nil {
		return eventstore.EventRecord{}, columnError(colSequenceNumber, err)
	}

	timestamp, err := toTimestamp(row[colOccurredAt])
	if err != nil {
		return eventstore.EventRecord{}, columnError(colOccurredAt, err)
	}

	eventType, err := toText(row[colEventType])
	if err != nil {
		return eventstore.EventRecord{}, columnError(colEventType, err)
	}

	payload, err := toPayload(row[colPayload])
	if err != nil {
		return eventstore.EventRecord{}, columnError(colPayload, err)
	}

	return eventstore.EventRecord{
		SequenceNumber: sequenceNumber,
		Timestamp:      timestamp,
		EventType:      eventType,
		Payload:        payload,
	}, nil
}

func transformRows(rows []Row) (eventstore.EventRecords, error) {
	records := make(eventstore.EventRecords, 0, len(rows))

	for _, row := range rows {
		record, err := transformRow(row)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func columnError(column string, err error) error {
	return errors.Join(eventstore.ErrScanningDBRowFailed, fmt.Errorf("column %s: %w", column, err))
}

func toSequenceNumber(v any) (eventstore.SequenceNumberUint, error) {
	switch n := v.(type) {
	case int64:
		return nonNegative(n)
	case int32:
		return nonNegative(int64(n))
	case int:
		return nonNegative(int64(n))
	case uint64:
		return n, nil
	case float64:
		if n < 0 || n != math.Trunc(n) {
			return 0, fmt.Errorf("not a sequence number: %v", n)
		}

		return eventstore.SequenceNumberUint(n), nil
	case []byte:
		return strconv.ParseUint(string(n), 10, 64)
	case string:
		return strconv.ParseUint(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func nonNegative(n int64) (eventstore.SequenceNumberUint, error) {
	if n < 0 {
		return 0, fmt.Errorf("negative sequence number: %d", n)
	}

	return eventstore.SequenceNumberUint(n), nil
}

func toTimestamp(v any) (time.Time, error) {
	var s string

	switch t := v.(type) {
	case time.Time:
		return t, nil
	case []byte:
		s = string(t)
	case string:
		s = t
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unsupported timestamp format %q", s)
}

func toText(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

// toPayload parses serialized payloads and converts payloads the driver already decoded, e.g. pgx for JSONB.
func toPayload(v any) (eventstore.Value, error) {
	switch p := v.(type) {
	case []byte:
		return eventstore.ParseValue(p)
	case string:
		return eventstore.ParseValue([]byte(p))
	default:
		return eventstore.ValueOf(p)
	}
}
