package convert

import (
	"errors"
	"fmt"
)

var (
	ErrOutputExists  = errors.New("output file already exists (use --overwrite)")
	ErrUnknownMethod = errors.New("no scaling coefficients for method")
	ErrEmptyRange    = errors.New("volume holds no samples to measure")
	ErrInvertedRange = errors.New("calibration minimum is above maximum")
	ErrUnsupported   = errors.New("unsupported input file")
)

// ConfigError is an invalid option detected before any file is touched.
type ConfigError struct {
	Field   string      // flag name without dashes
	Value   interface{} // the invalid value (nil if missing)
	Message string
	Hint    string // optional
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// FileError is a failure while converting one input. State is the last
// state the conversion reached.
type FileError struct {
	Path  string
	State State
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
