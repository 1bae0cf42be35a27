// Package mediaerr defines the error kinds the Media Engine surfaces per
// spec §7: sentinels callers can match with errors.Is, plus a wrapping type
// that records which operation failed.
package mediaerr

import (
	"errors"
	"fmt"
)

// Sentinel error kinds (§7). Workers and the Command Queue wrap one of
// these with context via OpError; callers match the underlying kind with
// errors.Is.
var (
	// ErrOpenFailure means the Container refused to open the source: bad
	// URL, unsupported format, permission denied.
	ErrOpenFailure = errors.New("mediaengine: open failure")

	// ErrNoStreams means the Container opened but reported no playable
	// component.
	ErrNoStreams = errors.New("mediaengine: no playable streams")

	// ErrDecodeFailure is recoverable: log and skip the packet/frame. It
	// becomes fatal after N consecutive failures on a stream, at which
	// point the stream is disabled.
	ErrDecodeFailure = errors.New("mediaengine: decode failure")

	// ErrSeekFailure is recoverable: the caller may retry near the target.
	ErrSeekFailure = errors.New("mediaengine: seek failure")

	// ErrRendererFailure is recoverable: the failing renderer is disabled
	// and other streams continue; fatal only if all renderers fail.
	ErrRendererFailure = errors.New("mediaengine: renderer failure")

	// ErrCancelled means a command was aborted; this is not surfaced to the
	// user as an error condition.
	ErrCancelled = errors.New("mediaengine: command cancelled")

	// ErrFatal is unrecoverable: the engine transitions to Close and emits
	// OnMediaFailed.
	ErrFatal = errors.New("mediaengine: fatal")

	// ErrInvalidArgument is returned for out-of-range transport arguments,
	// e.g. a speed ratio outside (0, 8].
	ErrInvalidArgument = errors.New("mediaengine: invalid argument")
)

// OpError wraps one of the sentinel kinds with the operation and optional
// detail that produced it, matching the teacher's moq.ParseError
// wrap-with-context idiom.
type OpError struct {
	Op     string
	Kind   error
	Detail string
}

func (e *OpError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("mediaengine: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("mediaengine: %s: %v: %s", e.Op, e.Kind, e.Detail)
}

func (e *OpError) Unwrap() error { return e.Kind }

// Wrap builds an OpError. kind should be one of the sentinels above.
func Wrap(op string, kind error, detail string) error {
	return &OpError{Op: op, Kind: kind, Detail: detail}
}
