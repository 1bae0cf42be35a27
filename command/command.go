// Package command implements the Media Engine's Command Queue (spec §4.H):
// reified transport commands with priority, cancellation, and a completion
// handle callers can await, serialized against a single executor.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies a transport command kind.
type Type int

const (
	Open Type = iota
	Close
	Play
	Pause
	Stop
	Seek
	ChangeMedia
	SetSpeedRatio
)

// String renders the command type for logging.
func (t Type) String() string {
	switch t {
	case Open:
		return "open"
	case Close:
		return "close"
	case Play:
		return "play"
	case Pause:
		return "pause"
	case Stop:
		return "stop"
	case Seek:
		return "seek"
	case ChangeMedia:
		return "change_media"
	case SetSpeedRatio:
		return "set_speed_ratio"
	default:
		return "unknown"
	}
}

// Class groups command types by the queue's execution policy (§4.H):
// Direct commands coalesce duplicates and cancel a not-yet-started Seek;
// Priority (Seek) replaces any queued Seek with the newest target and
// cancels in-flight work; Blocking commands drain the queue and stop all
// workers before running exclusively.
type Class int

const (
	ClassDirect Class = iota
	ClassPriority
	ClassBlocking
)

// ClassOf returns the execution class for a command type.
func ClassOf(t Type) Class {
	switch t {
	case Seek:
		return ClassPriority
	case Open, Close, ChangeMedia:
		return ClassBlocking
	default:
		return ClassDirect
	}
}

// SeekArgs carries a Seek command's target time.
type SeekArgs struct {
	Target time.Duration
}

// OpenArgs carries an Open/ChangeMedia command's source reference. The
// concrete source type lives in package container; command stays
// independent of it by carrying an opaque payload the executor knows how to
// interpret.
type OpenArgs struct {
	Payload any
}

// SpeedRatioArgs carries a SetSpeedRatio command's target ratio.
type SpeedRatioArgs struct {
	Ratio float64
}

// Command is a reified transport operation placed on the Queue. ID
// correlates a Command with its Handle, grounded on the
// uuid.NewString()-keyed pending-channel pattern used for message
// acknowledgement in the reference corpus's P2P message queue.
type Command struct {
	ID       string
	Type     Type
	Args     any
	ctx      context.Context
	cancel   context.CancelCauseFunc
	resultCh chan Result
}

// Result is what a Command's Handle resolves to: either an error (possibly
// mediaerr.ErrCancelled) or nil on success.
type Result struct {
	Err error
}

// New creates a Command of the given type and args, deriving its
// cancellation context from parent.
func New(parent context.Context, t Type, args any) *Command {
	ctx, cancel := context.WithCancelCause(parent)
	return &Command{
		ID:       uuid.NewString(),
		Type:     t,
		Args:     args,
		ctx:      ctx,
		cancel:   cancel,
		resultCh: make(chan Result, 1),
	}
}

// Context returns the command's cancellation context; the executor
// observes it between discrete steps (§5 "Commands are cancellable between
// coarse steps").
func (c *Command) Context() context.Context { return c.ctx }

// Cancel aborts the command with the given cause (typically
// mediaerr.ErrCancelled, or a newer Seek superseding this one).
func (c *Command) Cancel(cause error) { c.cancel(cause) }

// complete delivers the final result and releases the cancel context. It
// must be called exactly once by the executor.
func (c *Command) complete(res Result) {
	c.cancel(nil)
	c.resultCh <- res
}

// Handle is the completion handle returned to the caller that enqueued a
// Command (§4.H "each command returns a completion handle the caller may
// await").
type Handle struct {
	cmd *Command
}

// Wait blocks until the command completes or ctx is done, whichever comes
// first.
func (h Handle) Wait(ctx context.Context) error {
	select {
	case res := <-h.cmd.resultCh:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID returns the underlying command's correlation ID.
func (h Handle) ID() string { return h.cmd.ID }
