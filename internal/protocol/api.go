package protocol

// REST endpoints of the backend.
const (
	PathStartSession  = "/api/start_session"
	PathGetRepoFiles  = "/api/get_repo_files"
	PathAddFiles      = "/api/add_files"
	PathSendMessage   = "/api/send_message"
	PathCommitChanges = "/api/commit_changes"

	// PathRealtime is the default websocket endpoint.
	PathRealtime = "/ws"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NoRepository is reported as repo_path when a session was started without one.
const NoRepository = "No repository selected"

// ModelConfig is the snapshot of model behavior settings sent at session start.
type ModelConfig struct {
	EditFormat       string `json:"edit_format" yaml:"edit_format"`
	WeakModelName    string `json:"weak_model_name,omitempty" yaml:"weak_model_name,omitempty"`
	UseRepoMap       bool   `json:"use_repo_map" yaml:"use_repo_map"`
	SendUndoReply    bool   `json:"send_undo_reply" yaml:"send_undo_reply"`
	Lazy             bool   `json:"lazy" yaml:"lazy"`
	Reminder         string `json:"reminder" yaml:"reminder"`
	ExamplesAsSysMsg bool   `json:"examples_as_sys_msg" yaml:"examples_as_sys_msg"`
	UseSystemPrompt  bool   `json:"use_system_prompt" yaml:"use_system_prompt"`
	UseTemperature   bool   `json:"use_temperature" yaml:"use_temperature"`
	Streaming        bool   `json:"streaming" yaml:"streaming"`
}

// Status is embedded in every response body.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the body carries status=success.
func (s Status) OK() bool {
	return s.Status == StatusSuccess
}

type StartSessionRequest struct {
	RepoPath    string       `json:"repo_path"`
	ModelName   string       `json:"model_name"`
	ModelConfig *ModelConfig `json:"model_config,omitempty"`
}

type StartSessionResponse struct {
	Status
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
	RepoPath  string `json:"repo_path,omitempty"`
}

type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type RepoFilesResponse struct {
	Status
	Files []string `json:"files,omitempty"`
}

type AddFilesRequest struct {
	SessionID string   `json:"session_id"`
	FilePaths []string `json:"file_paths"`
}

type AddFilesResponse struct {
	Status
	AddedFiles []string `json:"added_files,omitempty"`
}

type SendMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type SendMessageResponse struct {
	Status
	Response string `json:"response,omitempty"`
}

type CommitChangesRequest struct {
	SessionID     string `json:"session_id"`
	CommitMessage string `json:"commit_message"`
}

type CommitChangesResponse struct {
	Status
	CommitHash string `json:"commit_hash,omitempty"`
}

// ErrorResponse builds a status=error body.
func ErrorResponse(message string) Status {
	return Status{Status: StatusError, Message: message}
}
