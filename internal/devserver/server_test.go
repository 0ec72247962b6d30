package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"aider-web/internal/protocol"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *Registry) {
	t.Helper()
	reg := newTestRegistry(t)
	return New(reg, nil), reg
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func TestServer_StartSessionWithoutRepo(t *testing.T) {
	srv, _ := newTestServer(t)
	w := post(t, srv.Handler(), protocol.PathStartSession, `{"model_name":"gpt-4","repo_path":""}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp protocol.StartSessionResponse
	decodeBody(t, w, &resp)
	if !resp.OK() || resp.SessionID == "" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.RepoPath != protocol.NoRepository {
		t.Errorf("expected repo_path %q, got %q", protocol.NoRepository, resp.RepoPath)
	}
	if resp.Model != "gpt-4" {
		t.Errorf("expected model gpt-4, got %s", resp.Model)
	}
}

func TestServer_StartSessionBadRepo(t *testing.T) {
	srv, _ := newTestServer(t)
	w := post(t, srv.Handler(), protocol.PathStartSession, `{"repo_path":"/nonexistent/xyz"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	var resp protocol.Status
	decodeBody(t, w, &resp)
	if resp.Status != protocol.StatusError || !strings.Contains(resp.Message, "/nonexistent/xyz") {
		t.Errorf("unexpected error body %+v", resp)
	}
}

func TestServer_BadBody(t *testing.T) {
	srv, _ := newTestServer(t)
	paths := []string{
		protocol.PathStartSession,
		protocol.PathGetRepoFiles,
		protocol.PathAddFiles,
		protocol.PathSendMessage,
		protocol.PathCommitChanges,
	}
	for _, p := range paths {
		w := post(t, srv.Handler(), p, "invalid json")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", p, w.Code)
		}
	}
}

func TestServer_InvalidSession(t *testing.T) {
	srv, _ := newTestServer(t)
	bodies := map[string]string{
		protocol.PathGetRepoFiles:  `{"session_id":"nope"}`,
		protocol.PathAddFiles:      `{"session_id":"nope","file_paths":["a.py"]}`,
		protocol.PathSendMessage:   `{"session_id":"nope","message":"hi"}`,
		protocol.PathCommitChanges: `{"session_id":"nope","commit_message":"x"}`,
	}
	for p, body := range bodies {
		w := post(t, srv.Handler(), p, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", p, w.Code)
		}
		var resp protocol.Status
		decodeBody(t, w, &resp)
		if resp.Message != msgInvalidSession {
			t.Errorf("%s: expected %q, got %q", p, msgInvalidSession, resp.Message)
		}
	}
}

func TestServer_RepoLifecycle(t *testing.T) {
	srv, reg := newTestServer(t)
	h := srv.Handler()
	repo := newRepo(t, "a.py", "b.py")

	sess, err := reg.Create(repo, "gpt-4", nil)
	if err != nil {
		t.Fatal(err)
	}

	w := post(t, h, protocol.PathGetRepoFiles, `{"session_id":"`+sess.ID+`"}`)
	var files protocol.RepoFilesResponse
	decodeBody(t, w, &files)
	if !files.OK() || strings.Join(files.Files, ",") != "a.py,b.py" {
		t.Errorf("unexpected files response %+v", files)
	}

	w = post(t, h, protocol.PathAddFiles, `{"session_id":"`+sess.ID+`","file_paths":["a.py"]}`)
	var added protocol.AddFilesResponse
	decodeBody(t, w, &added)
	if !added.OK() || len(added.AddedFiles) != 1 || added.AddedFiles[0] != "a.py" {
		t.Errorf("unexpected add response %+v", added)
	}

	w = post(t, h, protocol.PathSendMessage, `{"session_id":"`+sess.ID+`","message":"refactor"}`)
	var sent protocol.SendMessageResponse
	decodeBody(t, w, &sent)
	if !sent.OK() || !strings.Contains(sent.Response, "> refactor") {
		t.Errorf("unexpected send response %+v", sent)
	}

	w = post(t, h, protocol.PathCommitChanges, `{"session_id":"`+sess.ID+`","commit_message":"Refactor"}`)
	var committed protocol.CommitChangesResponse
	decodeBody(t, w, &committed)
	if !committed.OK() || committed.Message != "Changes committed with hash: "+committed.CommitHash {
		t.Errorf("unexpected commit response %+v", committed)
	}
}

func TestServer_NoRepoErrors(t *testing.T) {
	srv, reg := newTestServer(t)
	h := srv.Handler()
	sess, _ := reg.Create("", "gpt-4", nil)

	w := post(t, h, protocol.PathGetRepoFiles, `{"session_id":"`+sess.ID+`"}`)
	var resp protocol.Status
	decodeBody(t, w, &resp)
	if w.Code != http.StatusBadRequest || resp.Message != msgNoRepoFiles {
		t.Errorf("unexpected get_repo_files error %d %+v", w.Code, resp)
	}

	w = post(t, h, protocol.PathCommitChanges, `{"session_id":"`+sess.ID+`","commit_message":"x"}`)
	decodeBody(t, w, &resp)
	if w.Code != http.StatusBadRequest || resp.Message != msgNothingCommitted {
		t.Errorf("unexpected commit error %d %+v", w.Code, resp)
	}
}

func dial(t *testing.T, httpSrv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + protocol.PathRealtime
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read message failed: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return &msg
}

func TestServer_WebSocketReplayAndLive(t *testing.T) {
	srv, reg := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()
	defer srv.Close()

	sess, _ := reg.Create("", "gpt-4", nil)

	ws := dial(t, httpSrv)
	defer ws.Close()

	msg := readMessage(t, ws)
	ev, err := protocol.ToolOutputEvent(msg)
	if err != nil {
		t.Fatal(err)
	}
	if ev.SessionID != sess.ID || !strings.HasPrefix(ev.Output, "Model: gpt-4") {
		t.Errorf("unexpected replayed event %+v", ev)
	}

	reg.Send(sess.ID, "hi")
	msg = readMessage(t, ws)
	ev, err = protocol.ToolOutputEvent(msg)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Output != "Sending 1 messages to gpt-4" {
		t.Errorf("unexpected live event %+v", ev)
	}
}

func TestServer_WebSocketIsReceiveOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()
	defer srv.Close()

	ws := dial(t, httpSrv)
	defer ws.Close()

	tests := []struct {
		frame string
		code  string
	}{
		{"not json", protocol.ErrInvalidMessage},
		{`{"type":"send_message","payload":{}}`, protocol.ErrReceiveOnly},
	}
	for _, tt := range tests {
		ws.WriteMessage(websocket.TextMessage, []byte(tt.frame))
		msg := readMessage(t, ws)
		if msg.Type != protocol.TypeError {
			t.Fatalf("expected error type, got %s", msg.Type)
		}
		var p protocol.ErrorPayload
		json.Unmarshal(msg.Payload, &p)
		if p.Code != tt.code {
			t.Errorf("frame %q: expected code %s, got %s", tt.frame, tt.code, p.Code)
		}
	}
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	srv, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	ws := dial(t, httpSrv)
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", srv.ClientCount())
	}

	srv.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("expected read error after server close")
	}
	deadline = time.Now().Add(2 * time.Second)
	for srv.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", srv.ClientCount())
	}
}

func TestServer_CORSHeaders(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest("OPTIONS", protocol.PathStartSession, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS Allow-Origin header")
	}
}
