// Package session implements the client side of a remote coding-assistant
// session: the current session identity, the chat transcript, the send-message
// state machine and the repository file selection.
//
// All state is owned by a Controller and mutated only on its processing loop.
// User commands, backend response continuations and realtime events are
// queued onto that loop in arrival order, so no state is shared between
// goroutines.
package session

import (
	"context"
	"sync"
	"time"

	"aider-web/internal/logging"
	"aider-web/internal/protocol"
	"aider-web/internal/settings"

	"go.uber.org/zap"
)

const defaultQueueSize = 256

// Backend is the request/response surface of the remote service.
type Backend interface {
	StartSession(ctx context.Context, req protocol.StartSessionRequest) (*protocol.StartSessionResponse, error)
	ListFiles(ctx context.Context, sessionID string) ([]string, error)
	AddFiles(ctx context.Context, sessionID string, paths []string) ([]string, error)
	SendMessage(ctx context.Context, sessionID, message string) (string, error)
	CommitChanges(ctx context.Context, sessionID, message string) (*protocol.CommitChangesResponse, error)
}

// SettingsStore loads and saves user settings.
type SettingsStore interface {
	Load() (settings.Settings, error)
	Save(settings.Settings) error
}

// Session is the identity of the active remote session.
type Session struct {
	ID string
	// RepoPath is the path the session was requested for; empty when none.
	RepoPath string
	// DisplayRepo is the repository description reported by the backend.
	DisplayRepo string
	Model       string
	ModelConfig protocol.ModelConfig
	StartedAt   time.Time
}

// Snapshot is a copy of the controller state for rendering and tests.
type Snapshot struct {
	Session       *Session
	Transcript    []Entry
	Catalog       []string
	Active        []string
	SelectionOpen bool
	Candidates    []string
	Sending       bool
	Draft         string
}

// Observer is called on the processing loop after a task changed state.
// It must not call blocking Controller methods.
type Observer func(Snapshot)

type state struct {
	session     *Session
	generation  uint64
	startSeq    uint64
	transcript  *Transcript
	files       *FileSelection
	sending     bool
	placeholder Handle
	draft       string
}

// Controller owns the session state and its processing loop.
type Controller struct {
	backend  Backend
	settings SettingsStore
	logger   *zap.Logger

	tasks   chan func()
	stopped chan struct{}
	ctx     context.Context

	idleMu      sync.Mutex
	idle        *sync.Cond
	outstanding int
	halted      bool

	observers    []Observer
	sessionHooks []func(Session)

	st state
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithSettings sets the store used for model settings and ActionSaveSettings.
func WithSettings(s SettingsStore) Option {
	return func(c *Controller) { c.settings = s }
}

// WithObserver registers a state change observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithSessionHook registers a callback run on the loop after each
// successful session start.
func WithSessionHook(fn func(Session)) Option {
	return func(c *Controller) { c.sessionHooks = append(c.sessionHooks, fn) }
}

// New creates a controller. Call Run to start processing.
func New(b Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: b,
		tasks:   make(chan func(), defaultQueueSize),
		stopped: make(chan struct{}),
		ctx:     context.Background(),
		st: state{
			transcript: NewTranscript(),
			files:      NewFileSelection(),
		},
	}
	c.idle = sync.NewCond(&c.idleMu)
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// Run processes queued tasks until ctx is cancelled. Backend calls issued by
// the controller use ctx and are abandoned when it ends.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	defer c.halt()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.tasks:
			before := c.revision()
			fn()
			if c.revision() != before {
				c.notify()
			}
			c.done()
		}
	}
}

func (c *Controller) halt() {
	close(c.stopped)
	c.idleMu.Lock()
	c.halted = true
	c.idleMu.Unlock()
	c.idle.Broadcast()
}

func (c *Controller) revision() uint64 {
	return c.st.transcript.rev + c.st.files.rev + c.st.generation
}

func (c *Controller) notify() {
	if len(c.observers) == 0 {
		return
	}
	snap := c.snapshot()
	for _, o := range c.observers {
		o(snap)
	}
}

func (c *Controller) begin() {
	c.idleMu.Lock()
	c.outstanding++
	c.idleMu.Unlock()
}

func (c *Controller) done() {
	c.idleMu.Lock()
	c.outstanding--
	if c.outstanding == 0 {
		c.idle.Broadcast()
	}
	c.idleMu.Unlock()
}

// enqueue schedules fn on the processing loop. It reports false once the
// loop has stopped.
func (c *Controller) enqueue(fn func()) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	c.begin()
	select {
	case c.tasks <- fn:
		return true
	case <-c.stopped:
		c.done()
		return false
	}
}

// offer schedules fn without waiting for queue space. It reports false when
// the queue is full or the loop has stopped.
func (c *Controller) offer(fn func()) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	c.begin()
	select {
	case c.tasks <- fn:
		return true
	default:
		c.done()
		return false
	}
}

// async runs call off the loop and queues the continuation it returns.
// Must be called from the loop.
func (c *Controller) async(call func(ctx context.Context) func()) {
	ctx := c.ctx
	c.begin()
	go func() {
		defer c.done()
		cont := call(ctx)
		if cont != nil {
			c.enqueue(cont)
		}
	}()
}

// WaitIdle blocks until no task is queued and no backend call is in flight,
// or the loop has stopped.
func (c *Controller) WaitIdle() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	for c.outstanding > 0 && !c.halted {
		c.idle.Wait()
	}
}

// Dispatch queues cmd without waiting for it to run.
func (c *Controller) Dispatch(cmd Command) error {
	h, ok := handlers[cmd.Action]
	if !ok {
		return ErrUnknownAction
	}
	if !c.enqueue(func() { _ = h(c, cmd) }) {
		return ErrStopped
	}
	return nil
}

// Execute runs cmd on the loop and returns its local outcome. Backend
// results arrive later and are applied to the transcript.
func (c *Controller) Execute(ctx context.Context, cmd Command) error {
	h, ok := handlers[cmd.Action]
	if !ok {
		return ErrUnknownAction
	}
	result := make(chan error, 1)
	if !c.enqueue(func() { result <- h(c, cmd) }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	result := make(chan Snapshot, 1)
	if !c.enqueue(func() { result <- c.snapshot() }) {
		return Snapshot{}, ErrStopped
	}
	select {
	case s := <-result:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.stopped:
		return Snapshot{}, ErrStopped
	}
}

// RequireSession returns the active session or ErrNoActiveSession.
func (c *Controller) RequireSession(ctx context.Context) (Session, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return Session{}, err
	}
	if snap.Session == nil {
		return Session{}, ErrNoActiveSession
	}
	return *snap.Session, nil
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Transcript:    c.st.transcript.Entries(),
		Catalog:       c.st.files.Catalog(),
		Active:        c.st.files.Active(),
		SelectionOpen: c.st.files.IsOpen(),
		Candidates:    c.st.files.Candidates(),
		Sending:       c.st.sending,
		Draft:         c.st.draft,
	}
	if c.st.session != nil {
		sess := *c.st.session
		s.Session = &sess
	}
	return s
}

// requireSession guards every session-scoped operation. On failure it
// surfaces the local notice; the caller must not contact the backend.
func (c *Controller) requireSession() (*Session, error) {
	if c.st.session == nil {
		c.st.transcript.AppendSystem(NoticeNoSession)
		return nil, ErrNoActiveSession
	}
	return c.st.session, nil
}

// current reports whether a response issued during generation gen still
// belongs to the active session.
func (c *Controller) current(gen uint64, op string) bool {
	if gen == c.st.generation {
		return true
	}
	c.logger.Debug("dropping stale response",
		zap.String("op", op),
		zap.Uint64("issued_generation", gen),
		zap.Uint64("generation", c.st.generation))
	return false
}

// HandleEvent queues a realtime event without blocking; the event is dropped
// when the queue is full. Tool output is applied only when it belongs to the
// active session.
func (c *Controller) HandleEvent(ev protocol.RealtimeEvent) {
	queued := c.offer(func() {
		switch ev.Kind {
		case protocol.EventConnected:
			c.st.transcript.AppendSystem(NoticeConnected)
		case protocol.EventDisconnected:
			c.st.transcript.AppendSystem(NoticeDisconnected)
		case protocol.EventToolOutput:
			if c.st.session == nil || ev.SessionID != c.st.session.ID {
				c.logger.Debug("dropping realtime event for inactive session",
					zap.String("session", ev.SessionID))
				return
			}
			c.st.transcript.AppendSystem(ev.Output)
		default:
			c.logger.Warn("unknown realtime event", zap.String("kind", string(ev.Kind)))
		}
	})
	if !queued && !c.isStopped() {
		c.logger.Warn("task queue full, dropping realtime event",
			zap.String("kind", string(ev.Kind)),
			zap.String("session", ev.SessionID))
	}
}

func (c *Controller) isStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}
