package errors

import "fmt"

// SinkError is a storage error raised by one of the reporting sinks
type SinkError struct {
	*AppError
	Sink      string `json:"sink,omitempty"`      // "influxdb", "redis", "postgres", ...
	Target    string `json:"target,omitempty"`    // bucket, stream or table
	Operation string `json:"operation,omitempty"` // "connect", "write_round", "write_summary"
}

// Unwrap exposes the embedded AppError so errors.Is sees its code
func (se *SinkError) Unwrap() error {
	return se.AppError
}

// NewSinkConnectionError creates a connection error for a sink
func NewSinkConnectionError(sink, target string, err error) *SinkError {
	return &SinkError{
		AppError: WrapError(err, ErrorTypeStorage, CodeConnectionFailed,
			fmt.Sprintf("failed to connect to %s", sink)),
		Sink:      sink,
		Target:    target,
		Operation: "connect",
	}
}

// WrapSinkError wraps a failed write to a sink
func WrapSinkError(err error, sink, target, operation string) *SinkError {
	if err == nil {
		return nil
	}
	return &SinkError{
		AppError: WrapError(err, ErrorTypeStorage, CodeWriteFailed,
			fmt.Sprintf("%s %s failed", sink, operation)),
		Sink:      sink,
		Target:    target,
		Operation: operation,
	}
}
