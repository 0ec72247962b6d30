package devserver

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"aider-web/internal/logging"
	"aider-web/internal/protocol"
	"aider-web/internal/watcher"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultModel            = "gpt-4o"
	defaultSubscriberBufCap = 100
	commitHashLen           = 7
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoRepository    = errors.New("no repository is associated with this session")
)

// Registry holds the reference backend's in-memory sessions and fans their
// tool output out to subscribers.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*managedSession
	order       []string
	maxSessions int
	historySize int
	responder   Responder
	watcher     *watcher.Watcher
	logger      *zap.Logger

	seq         atomic.Uint64
	subMu       sync.RWMutex
	subscribers map[string]chan OutputEvent
}

type managedSession struct {
	mu      sync.Mutex
	Session *Session
	output  *outputLog
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithResponder replaces the default echo responder.
func WithResponder(r Responder) RegistryOption {
	return func(reg *Registry) { reg.responder = r }
}

func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(reg *Registry) { reg.logger = l }
}

// NewRegistry creates a registry holding at most maxSessions sessions and
// buffering historySize tool output lines per session. Creating a session
// beyond the limit evicts the oldest one.
func NewRegistry(maxSessions, historySize int, opts ...RegistryOption) *Registry {
	if maxSessions < 1 {
		maxSessions = 1
	}
	r := &Registry{
		sessions:    make(map[string]*managedSession),
		maxSessions: maxSessions,
		historySize: historySize,
		responder:   ResponderFunc(echo),
		subscribers: make(map[string]chan OutputEvent),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)
	r.watcher = watcher.New(r.onRepoChange, watcher.WithLogger(r.logger))
	return r
}

// echo is the default responder: it quotes the message back as markdown.
func echo(sess *Session, message string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Echo from **%s**:\n\n", sess.Model)
	for _, line := range strings.Split(message, "\n") {
		b.WriteString("> " + line + "\n")
	}
	if len(sess.Files) > 0 {
		fmt.Fprintf(&b, "\nFiles in chat: `%s`\n", strings.Join(sess.Files, "`, `"))
	}
	return b.String(), nil
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create starts a session. An empty repoPath creates a session without a
// repository; otherwise repoPath must be an existing directory.
func (r *Registry) Create(repoPath, model string, cfg *protocol.ModelConfig) (*Session, error) {
	if repoPath != "" {
		info, err := os.Stat(repoPath)
		if err != nil {
			return nil, fmt.Errorf("repository path does not exist: %s", repoPath)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("repository path is not a directory: %s", repoPath)
		}
	}
	if model == "" {
		model = defaultModel
	}

	r.mu.Lock()
	var evicted []string
	for len(r.order) >= r.maxSessions {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.sessions, oldest)
		evicted = append(evicted, oldest)
	}

	sess := &Session{
		ID:        newID(),
		Model:     model,
		RepoPath:  repoPath,
		CreatedAt: time.Now().UTC(),
	}
	if cfg != nil {
		sess.ModelConfig = *cfg
	}
	r.sessions[sess.ID] = &managedSession{
		Session: sess,
		output:  newOutputLog(r.historySize),
	}
	r.order = append(r.order, sess.ID)
	r.mu.Unlock()

	for _, id := range evicted {
		r.watcher.Unwatch(id)
		r.logger.Info("session evicted", zap.String("session", id))
	}

	if repoPath != "" {
		if err := r.watcher.Watch(sess.ID, repoPath); err != nil {
			r.logger.Warn("watch repository", zap.String("session", sess.ID), zap.Error(err))
		}
	}

	r.logger.Info("session created",
		zap.String("session", sess.ID),
		zap.String("model", model),
		zap.String("repo", repoPath))
	r.emit(sess.ID, fmt.Sprintf("Model: %s with %s edit format", model, editFormat(sess.ModelConfig)))
	return sess, nil
}

func editFormat(cfg protocol.ModelConfig) string {
	if cfg.EditFormat == "" {
		return "whole"
	}
	return cfg.EditFormat
}

func (r *Registry) lookup(id string) (*managedSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ms, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

// Get returns a copy of a session.
func (r *Registry) Get(id string) (Session, error) {
	ms, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	s := *ms.Session
	s.Files = append([]string(nil), s.Files...)
	s.History = append([]Turn(nil), s.History...)
	return s, nil
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RepoFiles lists the files of the session's repository. A session without
// a repository has no files.
func (r *Registry) RepoFiles(id string) ([]string, error) {
	ms, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if ms.Session.RepoPath == "" {
		return nil, nil
	}
	return watcher.ListFiles(ms.Session.RepoPath), nil
}

// AddFiles adds repository files to the chat and returns the ones added.
// Paths that are absolute, escape the repository or do not exist are skipped.
func (r *Registry) AddFiles(id string, paths []string) ([]string, error) {
	ms, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	repo := ms.Session.RepoPath
	if repo == "" {
		return nil, ErrNoRepository
	}

	ms.mu.Lock()
	present := make(map[string]bool, len(ms.Session.Files))
	for _, f := range ms.Session.Files {
		present[f] = true
	}
	var added, skipped []string
	for _, p := range paths {
		rel, ok := cleanRel(p)
		if !ok {
			skipped = append(skipped, p)
			continue
		}
		info, err := os.Stat(filepath.Join(repo, filepath.FromSlash(rel)))
		if err != nil || info.IsDir() {
			skipped = append(skipped, p)
			continue
		}
		if !present[rel] {
			present[rel] = true
			ms.Session.Files = append(ms.Session.Files, rel)
		}
		added = append(added, rel)
	}
	ms.mu.Unlock()

	for _, p := range skipped {
		r.emit(id, "Skipping "+p+": not a file in the repository")
	}
	for _, p := range added {
		r.emit(id, "Added "+p+" to the chat")
	}
	return added, nil
}

// cleanRel normalises a repository-relative path and rejects paths that
// leave the repository.
func cleanRel(p string) (string, bool) {
	p = strings.TrimSpace(filepath.ToSlash(p))
	if p == "" || path.IsAbs(p) {
		return "", false
	}
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}

// Send records a user message and returns the assistant reply.
func (r *Registry) Send(id, message string) (string, error) {
	ms, err := r.lookup(id)
	if err != nil {
		return "", err
	}

	ms.mu.Lock()
	ms.Session.History = append(ms.Session.History, Turn{Role: "user", Content: message})
	snapshot := *ms.Session
	ms.mu.Unlock()

	r.emit(id, fmt.Sprintf("Sending %d messages to %s", len(snapshot.History), snapshot.Model))

	reply, err := r.responder.Respond(&snapshot, message)
	if err != nil {
		return "", err
	}

	ms.mu.Lock()
	ms.Session.History = append(ms.Session.History, Turn{Role: "assistant", Content: reply})
	ms.mu.Unlock()
	return reply, nil
}

// Commit records a commit and returns its hash. It returns an empty hash
// when the session has no repository.
func (r *Registry) Commit(id, message string) (string, error) {
	ms, err := r.lookup(id)
	if err != nil {
		return "", err
	}
	if ms.Session.RepoPath == "" {
		return "", nil
	}
	hash := newID()[:commitHashLen]
	r.emit(id, fmt.Sprintf("Commit %s %s", hash, message))
	return hash, nil
}

func (r *Registry) onRepoChange(id string, files []string) {
	r.emit(id, fmt.Sprintf("Repository changed: %d files", len(files)))
}

// emit buffers a tool output line and delivers it to every subscriber.
func (r *Registry) emit(id, output string) {
	ms, err := r.lookup(id)
	if err != nil {
		return
	}
	event := OutputEvent{
		SessionID: id,
		Output:    output,
		Timestamp: time.Now().UTC(),
	}
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	event.Seq = r.seq.Add(1)
	ms.output.Append(event)
	for subID, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			r.logger.Debug("subscriber full, dropping tool output",
				zap.String("subscriber", subID),
				zap.String("session", id))
		}
	}
}

// Subscribe registers a subscriber for the tool output of every session.
// It returns the subscription id, the live channel and the buffered history
// of all sessions in the order it was emitted.
func (r *Registry) Subscribe() (string, <-chan OutputEvent, []OutputEvent) {
	subID := uuid.NewString()
	ch := make(chan OutputEvent, defaultSubscriberBufCap)

	// Take the history under the subscriber lock so no event is both
	// replayed and delivered live.
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.mu.RLock()
	logs := make([]*outputLog, 0, len(r.order))
	for _, id := range r.order {
		logs = append(logs, r.sessions[id].output)
	}
	r.mu.RUnlock()
	history := replay(logs)

	r.subscribers[subID] = ch
	return subID, ch, history
}

// Unsubscribe removes a subscriber and closes its channel.
func (r *Registry) Unsubscribe(subID string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if ch, ok := r.subscribers[subID]; ok {
		close(ch)
		delete(r.subscribers, subID)
	}
}

// Shutdown stops repository watches and closes all subscriptions.
func (r *Registry) Shutdown() {
	r.watcher.Shutdown()

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for subID, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, subID)
	}
}
