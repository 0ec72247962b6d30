package devserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"aider-web/internal/protocol"

	"go.uber.org/zap"
)

const (
	msgInvalidBody      = "invalid request body"
	msgInvalidSession   = "Invalid session ID"
	msgNoRepoFiles      = "No repository is associated with this session or no files found"
	msgNothingCommitted = "No repository is associated with this session or no changes to commit"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, protocol.ErrorResponse(message))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// sessionError maps a registry error to a response. An unknown session is
// a client error; anything else is reported as a server failure.
func (s *Server) sessionError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrSessionNotFound) {
		writeError(w, http.StatusBadRequest, msgInvalidSession)
		return
	}
	s.logger.Warn(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

var success = protocol.Status{Status: protocol.StatusSuccess}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req protocol.StartSessionRequest
	if !decode(w, r, &req) {
		return
	}

	sess, err := s.registry.Create(req.RepoPath, req.ModelName, req.ModelConfig)
	if err != nil {
		s.logger.Warn("start session failed", zap.String("repo", req.RepoPath), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	repo := sess.RepoPath
	if repo == "" {
		repo = protocol.NoRepository
	}
	writeJSON(w, http.StatusOK, protocol.StartSessionResponse{
		Status:    success,
		SessionID: sess.ID,
		Model:     sess.Model,
		RepoPath:  repo,
	})
}

func (s *Server) handleGetRepoFiles(w http.ResponseWriter, r *http.Request) {
	var req protocol.SessionRequest
	if !decode(w, r, &req) {
		return
	}

	files, err := s.registry.RepoFiles(req.SessionID)
	if err != nil {
		s.sessionError(w, "get repo files", err)
		return
	}
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, msgNoRepoFiles)
		return
	}
	writeJSON(w, http.StatusOK, protocol.RepoFilesResponse{Status: success, Files: files})
}

func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	var req protocol.AddFilesRequest
	if !decode(w, r, &req) {
		return
	}

	added, err := s.registry.AddFiles(req.SessionID, req.FilePaths)
	if err != nil {
		s.sessionError(w, "add files", err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.AddFilesResponse{Status: success, AddedFiles: added})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req protocol.SendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	reply, err := s.registry.Send(req.SessionID, req.Message)
	if err != nil {
		s.sessionError(w, "send message", err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.SendMessageResponse{Status: success, Response: reply})
}

func (s *Server) handleCommitChanges(w http.ResponseWriter, r *http.Request) {
	var req protocol.CommitChangesRequest
	if !decode(w, r, &req) {
		return
	}

	hash, err := s.registry.Commit(req.SessionID, req.CommitMessage)
	if err != nil {
		s.sessionError(w, "commit changes", err)
		return
	}
	if hash == "" {
		writeError(w, http.StatusBadRequest, msgNothingCommitted)
		return
	}
	writeJSON(w, http.StatusOK, protocol.CommitChangesResponse{
		Status:     protocol.Status{Status: protocol.StatusSuccess, Message: "Changes committed with hash: " + hash},
		CommitHash: hash,
	})
}
