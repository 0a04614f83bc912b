package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/AntonStoeckl/scoped-eventstore-go/eventstore"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/config"
	"github.com/AntonStoeckl/scoped-eventstore-go/internal/wire"
)

// Exit codes of the eventstore binary.
const (
	ExitSuccess  = 0 // Successful execution
	ExitFailure  = 1 // Backend or runtime failure
	ExitUsage    = 2 // Invalid flags, configuration, or input documents
	ExitConflict = 3 // The append scope changed since it was read
)

// Output formats of the query command.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// ValidOutputs defines the allowed output formats.
var ValidOutputs = []string{OutputText, OutputJSON, OutputYAML}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitErrorFor classifies err from decoding input or calling the store.
func exitErrorFor(message string, err error) *ExitError {
	switch {
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		return WrapExitError(ExitConflict, message, err)

	case errors.Is(err, wire.ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrReadingConfigFileFailed),
		errors.Is(err, eventstore.ErrMissingExpectedMaxSequenceNumber),
		errors.Is(err, eventstore.ErrEmptyEventType),
		errors.Is(err, eventstore.ErrInvalidPayloadJSON),
		errors.Is(err, eventstore.ErrUnsupportedPayloadValue):
		return WrapExitError(ExitUsage, message, err)

	default:
		return WrapExitError(ExitFailure, message, err)
	}
}

func isValidOutput(output string) bool {
	return slices.Contains(ValidOutputs, output)
}

// writeQueryResponse renders response in the given output format.
func writeQueryResponse(w io.Writer, output string, response wire.QueryResponse) error {
	switch output {
	case OutputJSON:
		encoder := jsonAPI.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)

	case OutputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return encoder.Close()

	default:
		for _, record := range response.Events {
			payload, err := jsonAPI.Marshal(record.Payload)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
				record.SequenceNumber,
				record.OccurredAt.UTC().Format(time.RFC3339Nano),
				record.EventType,
				payload,
			)
			if err != nil {
				return err
			}
		}

		_, err := fmt.Fprintf(w, "max sequence number: %d\n", response.MaxSequenceNumber)
		return err
	}
}
