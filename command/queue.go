package command

import (
	"context"
	"log/slog"
	"sync"

	"github.com/zsiec/mediaengine/container/mediaerr"
)

// Handler executes one command's effect. It receives the command's
// cancellation context and must observe it between discrete steps (§5).
// The engine supplies this; package command only sequences commands.
type Handler func(cmd *Command) error

// Stepper lets the Blocking-command path stop workers to idle before
// running exclusively, and restart them afterward (§4.H "drain the queue,
// stop all workers to idle, execute exclusively, restart workers").
type Stepper interface {
	StopWorkers(ctx context.Context) error
	StartWorkers()
}

// Queue is the single-executor Command Queue (§4.H). At most one command
// runs at a time; Submit enqueues according to the command's Class and
// returns a Handle the caller can Wait on.
type Queue struct {
	log     *slog.Logger
	handler Handler
	stepper Stepper

	mu         sync.Mutex
	direct     []*Command
	pendingSeek *Command
	blocking   []*Command
	current    *Command
	wake       chan struct{}
	closed     bool
}

// New creates a Queue. If log is nil, slog.Default() is used, matching the
// teacher's nil-logger-falls-back-to-default constructor convention.
func New(handler Handler, stepper Stepper, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		log:     log.With("component", "command-queue"),
		handler: handler,
		stepper: stepper,
		wake:    make(chan struct{}, 1),
	}
}

func (q *Queue) wakeLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Submit enqueues cmd per its Class and returns a completion Handle.
func (q *Queue) Submit(cmd *Command) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		cmd.complete(Result{Err: mediaerr.Wrap(cmd.Type.String(), mediaerr.ErrCancelled, "queue closed")})
		return Handle{cmd: cmd}
	}

	switch ClassOf(cmd.Type) {
	case ClassBlocking:
		// Drain everything queued: direct commands and a not-yet-started
		// seek are superseded by a blocking operation (Open/Close/ChangeMedia).
		q.cancelAllQueuedLocked()
		q.blocking = append(q.blocking, cmd)

	case ClassPriority:
		// Replace any queued-but-not-started seek with the newest target;
		// an in-flight seek is cancelled so its decode loop aborts at the
		// next frame boundary (§5), and this new seek is queued to run
		// once that happens.
		if q.pendingSeek != nil {
			q.pendingSeek.Cancel(mediaerr.ErrCancelled)
		}
		q.pendingSeek = cmd
		if q.current != nil && q.current.Type == Seek {
			q.current.Cancel(mediaerr.ErrCancelled)
		}

	default: // ClassDirect
		// Coalesce consecutive duplicates: a newer Play/Pause/Stop/
		// SetSpeedRatio supersedes one of the same type still waiting.
		if n := len(q.direct); n > 0 && q.direct[n-1].Type == cmd.Type {
			q.direct[n-1].Cancel(mediaerr.ErrCancelled)
			q.direct[n-1] = cmd
		} else {
			q.direct = append(q.direct, cmd)
		}
		// Direct commands pre-empt a queued Seek that hasn't started yet.
		// (A seek that has already started is promoted to q.current and
		// q.pendingSeek is nil by then, so this only ever affects one still
		// waiting in the queue.)
		if q.pendingSeek != nil {
			q.pendingSeek.Cancel(mediaerr.ErrCancelled)
			q.pendingSeek = nil
		}
	}

	q.wakeLocked()
	return Handle{cmd: cmd}
}

func (q *Queue) cancelAllQueuedLocked() {
	for _, c := range q.direct {
		c.Cancel(mediaerr.ErrCancelled)
	}
	q.direct = nil
	if q.pendingSeek != nil {
		q.pendingSeek.Cancel(mediaerr.ErrCancelled)
		q.pendingSeek = nil
	}
}

// next pops the next command to run, in priority order: Blocking > Seek >
// Direct FIFO. Returns (nil, false) if nothing is queued.
func (q *Queue) next() (*Command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.blocking) > 0 {
		cmd := q.blocking[0]
		q.blocking = q.blocking[1:]
		q.current = cmd
		return cmd, true
	}
	if q.pendingSeek != nil {
		cmd := q.pendingSeek
		q.pendingSeek = nil
		q.current = cmd
		return cmd, true
	}
	if len(q.direct) > 0 {
		cmd := q.direct[0]
		q.direct = q.direct[1:]
		q.current = cmd
		return cmd, true
	}
	return nil, false
}

// Run is the single-executor loop: it pops the next command and runs the
// Handler, looping until ctx is cancelled. Blocking commands stop/restart
// workers via the Stepper around the handler call.
func (q *Queue) Run(ctx context.Context) error {
	for {
		cmd, ok := q.next()
		if !ok {
			select {
			case <-ctx.Done():
				q.drainOnShutdown()
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}

		q.log.Debug("executing command", "type", cmd.Type.String(), "id", cmd.ID)
		err := q.execute(cmd)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()

		cmd.complete(Result{Err: err})
	}
}

func (q *Queue) execute(cmd *Command) error {
	select {
	case <-cmd.ctx.Done():
		return mediaerr.Wrap(cmd.Type.String(), mediaerr.ErrCancelled, "cancelled before execution")
	default:
	}

	if ClassOf(cmd.Type) == ClassBlocking && q.stepper != nil {
		if err := q.stepper.StopWorkers(cmd.ctx); err != nil {
			return err
		}
		defer q.stepper.StartWorkers()
	}

	return q.handler(cmd)
}

// drainOnShutdown cancels every still-queued command when Run's context is
// done, so callers awaiting a Handle don't block forever.
func (q *Queue) drainOnShutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cancelAllQueuedLocked()
}
