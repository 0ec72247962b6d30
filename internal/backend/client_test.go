package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aider-web/internal/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(t *testing.T, wantPath string, status int, body interface{}, capture interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, wantPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if capture != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

func TestStartSession(t *testing.T) {
	var got protocol.StartSessionRequest
	srv := httptest.NewServer(jsonHandler(t, protocol.PathStartSession, http.StatusOK, map[string]string{
		"status":     "success",
		"session_id": "s1",
		"model":      "gpt-4",
		"repo_path":  "/repo",
	}, &got))
	defer srv.Close()

	c := New(srv.URL + "/")
	cfg := protocol.ModelConfig{EditFormat: "diff", Streaming: true}
	resp, err := c.StartSession(context.Background(), protocol.StartSessionRequest{
		RepoPath:    "/repo",
		ModelName:   "gpt-4",
		ModelConfig: &cfg,
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "gpt-4", resp.Model)
	assert.Equal(t, "/repo", resp.RepoPath)

	assert.Equal(t, "/repo", got.RepoPath)
	assert.Equal(t, "gpt-4", got.ModelName)
	require.NotNil(t, got.ModelConfig)
	assert.Equal(t, "diff", got.ModelConfig.EditFormat)
}

func TestListFiles(t *testing.T) {
	var got protocol.SessionRequest
	srv := httptest.NewServer(jsonHandler(t, protocol.PathGetRepoFiles, http.StatusOK, map[string]interface{}{
		"status": "success",
		"files":  []string{"a.py", "b.py"},
	}, &got))
	defer srv.Close()

	files, err := New(srv.URL).ListFiles(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, files)
	assert.Equal(t, "s1", got.SessionID)
}

func TestAddFiles(t *testing.T) {
	var got protocol.AddFilesRequest
	srv := httptest.NewServer(jsonHandler(t, protocol.PathAddFiles, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"added_files": []string{"a.py"},
	}, &got))
	defer srv.Close()

	added, err := New(srv.URL).AddFiles(context.Background(), "s1", []string{"a.py", "missing.py"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, added)
	assert.Equal(t, []string{"a.py", "missing.py"}, got.FilePaths)
}

func TestSendMessage(t *testing.T) {
	var got protocol.SendMessageRequest
	srv := httptest.NewServer(jsonHandler(t, protocol.PathSendMessage, http.StatusOK, map[string]string{
		"status":   "success",
		"response": "Done. See `a.py`.",
	}, &got))
	defer srv.Close()

	out, err := New(srv.URL).SendMessage(context.Background(), "s1", "refactor a.py")
	require.NoError(t, err)
	assert.Equal(t, "Done. See `a.py`.", out)
	assert.Equal(t, "refactor a.py", got.Message)
}

func TestCommitChanges(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, protocol.PathCommitChanges, http.StatusOK, map[string]string{
		"status":      "success",
		"commit_hash": "abc123",
		"message":     "Changes committed with hash: abc123",
	}, nil))
	defer srv.Close()

	resp, err := New(srv.URL).CommitChanges(context.Background(), "s1", "wip")
	require.NoError(t, err)
	assert.Equal(t, "abc123", resp.CommitHash)
	assert.Equal(t, "Changes committed with hash: abc123", resp.Message)
}

func TestBackendReportedError(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, protocol.PathSendMessage, http.StatusBadRequest, map[string]string{
		"status":  "error",
		"message": "Invalid session ID",
	}, nil))
	defer srv.Close()

	_, err := New(srv.URL).SendMessage(context.Background(), "stale", "hi")
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.False(t, IsTransportError(err))
	assert.Equal(t, "Invalid session ID", err.Error())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestErrorStatusWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(t, protocol.PathGetRepoFiles, http.StatusInternalServerError, map[string]string{
		"status": "error",
	}, nil))
	defer srv.Close()

	_, err := New(srv.URL).ListFiles(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestNonJSONResponseIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "<html>bad gateway</html>", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListFiles(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestConnectionRefusedIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, WithTimeout(2*time.Second)).SendMessage(context.Background(), "s1", "hi")
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
	assert.Contains(t, err.Error(), "send message")
}
