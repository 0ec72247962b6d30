package session

import (
	"context"
	"errors"
	"sync"

	"aider-web/internal/backend"
	"aider-web/internal/protocol"
	"aider-web/internal/settings"
)

// fakeBackend records calls and answers with programmable results. A gate,
// when set for an operation, holds the call until the test releases it.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}

	startResp []*protocol.StartSessionResponse
	startErr  error
	lastStart protocol.StartSessionRequest

	files     []string
	filesErr  error
	listedFor []string

	added    []string
	addErr   error
	addedFor []string

	reply   string
	sendErr error
	sentFor []string

	commitResp *protocol.CommitChangesResponse
	commitErr  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls: make(map[string]int),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeBackend) gate(op string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[op] = ch
	return ch
}

func (f *fakeBackend) enter(op string) {
	f.mu.Lock()
	f.calls[op]++
	g := f.gates[op]
	delete(f.gates, op)
	f.mu.Unlock()
	if g != nil {
		<-g
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

func (f *fakeBackend) StartSession(ctx context.Context, req protocol.StartSessionRequest) (*protocol.StartSessionResponse, error) {
	f.enter("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStart = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	if len(f.startResp) == 0 {
		return nil, errors.New("no scripted start response")
	}
	resp := f.startResp[0]
	f.startResp = f.startResp[1:]
	return resp, nil
}

func (f *fakeBackend) ListFiles(ctx context.Context, sessionID string) ([]string, error) {
	f.enter("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listedFor = append(f.listedFor, sessionID)
	if f.filesErr != nil {
		return nil, f.filesErr
	}
	return f.files, nil
}

func (f *fakeBackend) AddFiles(ctx context.Context, sessionID string, paths []string) ([]string, error) {
	f.enter("add")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addedFor = append(f.addedFor, sessionID)
	if f.addErr != nil {
		return nil, f.addErr
	}
	return f.added, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, sessionID, message string) (string, error) {
	f.enter("send")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentFor = append(f.sentFor, sessionID)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.reply, nil
}

func (f *fakeBackend) CommitChanges(ctx context.Context, sessionID, message string) (*protocol.CommitChangesResponse, error) {
	f.enter("commit")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	return f.commitResp, nil
}

func started(id, model, repo string) *protocol.StartSessionResponse {
	return &protocol.StartSessionResponse{
		Status:    protocol.Status{Status: protocol.StatusSuccess},
		SessionID: id,
		Model:     model,
		RepoPath:  repo,
	}
}

func apiError(op, msg string) error {
	return &backend.APIError{Op: op, Message: msg, StatusCode: 400}
}

func transportError(op string) error {
	return &backend.TransportError{Op: op, Err: errors.New("connection refused")}
}

// memSettings is an in-memory SettingsStore.
type memSettings struct {
	mu      sync.Mutex
	s       settings.Settings
	saveErr error
	saved   int
}

func (m *memSettings) Load() (settings.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *memSettings) Save(s settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.s = s
	m.saved++
	return nil
}
