package types

import "errors"

// Configuration and request level errors.
var (
	ErrUnknownMethod      = errors.New("UnknownMethod")
	ErrBackendUnavailable = errors.New("BackendUnavailable")
	ErrInvalidStrength    = errors.New("InvalidStrength")
	ErrIncompatibleMode   = errors.New("IncompatibleMode")
	ErrInvalidPath        = errors.New("InvalidPath")
)

// Per-image errors. The runner records these and keeps going.
var (
	ErrDecode     = errors.New("DecodeError")
	ErrProcessing = errors.New("ProcessingError")
	ErrTimeout    = errors.New("Timeout")
	ErrOutput     = errors.New("OutputError")
)

// ReasonCancelled marks tasks that were never dispatched.
const ReasonCancelled = "Cancelled"

var taxonomy = []error{
	ErrUnknownMethod,
	ErrBackendUnavailable,
	ErrInvalidStrength,
	ErrIncompatibleMode,
	ErrInvalidPath,
	ErrDecode,
	ErrProcessing,
	ErrTimeout,
	ErrOutput,
}

// Reason returns the taxonomy name of err, falling back to ProcessingError
// for errors that carry no known sentinel.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return ErrProcessing.Error()
}

// IsPerImage reports whether err is recoverable at the task level.
func IsPerImage(err error) bool {
	return errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrProcessing) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrOutput)
}
