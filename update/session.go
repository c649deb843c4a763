package update

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Session events
const (
	eventBegin  = "begin"
	eventFail   = "fail"
	eventCommit = "commit"
)

// Session tracks the one firmware write a device can have in flight.
//
// The session is created once by whatever drives the transport and passed to
// every upload handler. An upload restarts it by delivering a chunk at offset
// zero, which also abandons any earlier upload still writing.
type Session struct {
	mu      sync.Mutex
	storage Storage
	trigger Scheduler
	logger  *slog.Logger
	machine *fsm.FSM
	writer  chunkWriter
	now     func() time.Time

	id       uuid.UUID
	filename string
	lastErr  ErrorKind
	cause    error
	started  time.Time
	finished time.Time

	hooks []func(Status)
}

// NewSession returns an idle session writing to storage. trigger may be nil,
// in which case a successful commit does not restart anything.
func NewSession(storage Storage, trigger Scheduler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		storage: storage,
		trigger: trigger,
		logger:  logger,
		now:     time.Now,
	}
	s.machine = fsm.NewFSM(
		Idle.String(),
		fsm.Events{
			{Name: eventBegin, Src: []string{Idle.String()}, Dst: Writing.String()},
			{Name: eventFail, Src: []string{Writing.String()}, Dst: Failed.String()},
			{Name: eventCommit, Src: []string{Writing.String()}, Dst: Finalized.String()},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.logger.Debug("ota:state",
					slog.String("from", e.Src),
					slog.String("to", e.Dst),
				)
			},
		},
	)
	return s
}

// OnChange registers fn to be called after every state transition. fn runs
// outside the session lock and must not block.
func (s *Session) OnChange(fn func(Status)) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Consume applies one chunk of an upload and returns the resulting status.
//
// A chunk at offset zero starts a new write. Any other chunk must continue
// exactly where the previous one ended; a gap or overlap fails the session
// without touching storage. A chunk tagged with another write's id is
// dropped. Once failed, or when no write is in progress,
// chunks are discarded so the transport can finish reading the body.
func (s *Session) Consume(filename string, c Chunk) Status {
	s.mu.Lock()
	before := s.state()
	s.consume(filename, c)
	changed := c.Offset == 0 || s.state() != before
	st := s.status()
	hooks := s.hooks
	s.mu.Unlock()

	if changed {
		for _, fn := range hooks {
			fn(st)
		}
	}
	return st
}

func (s *Session) consume(filename string, c Chunk) {
	if c.Offset == 0 {
		s.begin(filename)
		if s.state() != Writing {
			return
		}
	} else if c.Session != "" && c.Session != s.id.String() {
		s.logger.Debug("ota:drain-stale",
			slog.String("chunk_session", c.Session),
			slog.Uint64("offset", uint64(c.Offset)),
		)
		return
	} else if s.state() != Writing {
		s.logger.Debug("ota:drain",
			slog.String("state", s.state().String()),
			slog.Uint64("offset", uint64(c.Offset)),
			slog.Int("len", len(c.Data)),
		)
		return
	}

	if c.Offset != s.writer.written {
		s.fail(WriteFailed, fmt.Errorf("%w: chunk at offset %d, expected %d",
			ErrWriteFailed, c.Offset, s.writer.written))
		return
	}
	if _, err := s.writer.write(c.Data); err != nil {
		s.fail(WriteFailed, err)
		return
	}
	if c.Final {
		s.finalize()
	}
}

// begin discards whatever the session held and starts a new write.
func (s *Session) begin(filename string) {
	if s.state() == Writing {
		s.logger.Warn("ota:preempted",
			slog.String("session", s.id.String()),
			slog.Uint64("bytes", uint64(s.writer.written)),
		)
		s.abortStorage()
	}
	s.machine.SetState(Idle.String())

	s.id = uuid.New()
	s.filename = filename
	s.lastErr = ErrNone
	s.cause = nil
	s.started = s.now()
	s.finished = time.Time{}
	s.writer = chunkWriter{storage: s.storage}
	s.event(eventBegin)

	s.logger.Info("ota:begin",
		slog.String("session", s.id.String()),
		slog.String("file", filename),
	)

	capacity, err := ResolveCapacity(s.storage)
	if err != nil {
		s.fail(NoStorageBackend, err)
		return
	}
	if err := s.storage.Begin(capacity); err != nil {
		s.fail(AllocationFailed, fmt.Errorf("%w: %w", ErrAllocationFailed, err))
		return
	}
	s.writer.capacity = capacity
	s.logger.Info("ota:allocated",
		slog.String("session", s.id.String()),
		slog.Uint64("capacity", uint64(capacity)),
	)
}

// fail records err, releases storage and moves to Failed.
func (s *Session) fail(kind ErrorKind, err error) {
	s.lastErr = kind
	s.cause = err
	s.finished = s.now()
	s.abortStorage()
	s.event(eventFail)
	s.logger.Error("ota:failed",
		slog.String("session", s.id.String()),
		slog.String("kind", kind.String()),
		slog.Uint64("bytes", uint64(s.writer.written)),
		slog.String("err", err.Error()),
	)
}

func (s *Session) abortStorage() {
	if s.storage == nil {
		return
	}
	if err := s.storage.Abort(); err != nil {
		s.logger.Warn("ota:abort-failed", slog.String("err", err.Error()))
	}
}

func (s *Session) event(name string) {
	if err := s.machine.Event(context.Background(), name); err != nil {
		s.logger.Error("ota:transition-rejected",
			slog.String("event", name),
			slog.String("state", s.machine.Current()),
			slog.String("err", err.Error()),
		)
	}
}

// Reset returns the session to Idle, discarding any write in progress.
func (s *Session) Reset() {
	s.mu.Lock()
	s.reset()
	st := s.status()
	hooks := s.hooks
	s.mu.Unlock()

	s.logger.Info("ota:reset")
	for _, fn := range hooks {
		fn(st)
	}
}

func (s *Session) reset() {
	if s.state() == Writing {
		s.abortStorage()
	}
	s.machine.SetState(Idle.String())
	s.writer = chunkWriter{storage: s.storage}
	s.id = uuid.Nil
	s.filename = ""
	s.lastErr = ErrNone
	s.cause = nil
	s.started = time.Time{}
	s.finished = time.Time{}
}

func (s *Session) state() State {
	return parseState(s.machine.Current())
}

func (s *Session) status() Status {
	st := Status{
		State:        s.state(),
		BytesWritten: s.writer.written,
		Capacity:     s.writer.capacity,
		Filename:     s.filename,
		LastError:    s.lastErr,
		Err:          s.cause,
		Started:      s.started,
		Finished:     s.finished,
	}
	if s.id != uuid.Nil {
		st.ID = s.id.String()
	}
	return st
}

// Snapshot returns a copy of the session's current status.
func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

// BytesWritten returns the bytes committed to storage by the current write.
func (s *Session) BytesWritten() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.written
}

// Err returns the error that failed the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}
