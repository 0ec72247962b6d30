// Package backend implements the request/response calls to the
// coding-assistant backend over HTTP and JSON.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aider-web/internal/logging"
	"aider-web/internal/protocol"

	"go.uber.org/zap"
)

const maxResponseBytes = 16 << 20

// APIError is a failure reported by the backend (status=error). Message is
// the backend-supplied text and is shown to the user verbatim.
type APIError struct {
	Op         string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return e.Message
}

// TransportError is a network or decoding failure; no backend verdict exists.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAPIError reports whether err carries a backend-reported failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsTransportError reports whether err is a transport failure.
func IsTransportError(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// Client issues backend calls. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout sets the per-request timeout on the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c
}

// StartSession creates a new remote session.
func (c *Client) StartSession(ctx context.Context, req protocol.StartSessionRequest) (*protocol.StartSessionResponse, error) {
	var resp protocol.StartSessionResponse
	if err := c.call(ctx, "start session", protocol.PathStartSession, req, &resp, &resp.Status); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListFiles returns the repository files known to a session.
func (c *Client) ListFiles(ctx context.Context, sessionID string) ([]string, error) {
	var resp protocol.RepoFilesResponse
	req := protocol.SessionRequest{SessionID: sessionID}
	if err := c.call(ctx, "list repository files", protocol.PathGetRepoFiles, req, &resp, &resp.Status); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// AddFiles attaches files to a session and returns the files the backend added.
func (c *Client) AddFiles(ctx context.Context, sessionID string, paths []string) ([]string, error) {
	var resp protocol.AddFilesResponse
	req := protocol.AddFilesRequest{SessionID: sessionID, FilePaths: paths}
	if err := c.call(ctx, "add files", protocol.PathAddFiles, req, &resp, &resp.Status); err != nil {
		return nil, err
	}
	return resp.AddedFiles, nil
}

// SendMessage sends a chat message and returns the assistant's response.
func (c *Client) SendMessage(ctx context.Context, sessionID, message string) (string, error) {
	var resp protocol.SendMessageResponse
	req := protocol.SendMessageRequest{SessionID: sessionID, Message: message}
	if err := c.call(ctx, "send message", protocol.PathSendMessage, req, &resp, &resp.Status); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// CommitChanges commits pending changes in the session's repository.
func (c *Client) CommitChanges(ctx context.Context, sessionID, message string) (*protocol.CommitChangesResponse, error) {
	var resp protocol.CommitChangesResponse
	req := protocol.CommitChangesRequest{SessionID: sessionID, CommitMessage: message}
	if err := c.call(ctx, "commit changes", protocol.PathCommitChanges, req, &resp, &resp.Status); err != nil {
		return nil, err
	}
	return &resp, nil
}

// call POSTs body to path and decodes the response into out. The backend
// answers failures with status=error and a 4xx/5xx code, so the body is
// decoded regardless of the HTTP status.
func (c *Client) call(ctx context.Context, op, path string, body, out interface{}, status *protocol.Status) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("op", op), zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("backend response not JSON",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode))
		return &TransportError{Op: op, Err: fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)}
	}

	c.logger.Debug("backend call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if !status.OK() {
		msg := status.Message
		if msg == "" {
			msg = fmt.Sprintf("%s failed (HTTP %d)", op, resp.StatusCode)
		}
		return &APIError{Op: op, Message: msg, StatusCode: resp.StatusCode}
	}
	return nil
}
