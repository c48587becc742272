package audio

import (
	"errors"
	"fmt"
)

// ErrNoSegments is returned when Concatenate is called with nothing to join.
var ErrNoSegments = errors.New("no audio segments")

// ErrUnsupportedFormat is returned when no conversion path exists for a file.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// TranscodeError reports a failed engine invocation.
type TranscodeError struct {
	Op     string // "transcode" | "concat"
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }
