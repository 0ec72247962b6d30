package session

import (
	"errors"

	"aider-web/internal/backend"
)

// Local validation failures. None of them contacts the backend.
var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrEmptySelection     = errors.New("no files selected")
	ErrEmptyRepoPath      = errors.New("repository path is empty")
	ErrEmptyCommitMessage = errors.New("commit message is empty")
	ErrSendInFlight       = errors.New("a message is already being processed")
	ErrUnknownFile        = errors.New("file is not in the catalog")
	ErrNoSettings         = errors.New("no settings to save")
	ErrUnknownAction      = errors.New("unknown action")
	ErrStopped            = errors.New("controller stopped")
)

var localErrors = []error{
	ErrNoActiveSession,
	ErrEmptyMessage,
	ErrEmptySelection,
	ErrEmptyRepoPath,
	ErrEmptyCommitMessage,
	ErrSendInFlight,
	ErrUnknownFile,
	ErrNoSettings,
	ErrUnknownAction,
}

// ErrorClass groups failures by how they were detected.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassLocalValidation
	ClassBackendReported
	ClassTransportFailure
)

func (c ErrorClass) String() string {
	switch c {
	case ClassLocalValidation:
		return "LOCAL_VALIDATION"
	case ClassBackendReported:
		return "BACKEND_REPORTED"
	case ClassTransportFailure:
		return "TRANSPORT_FAILURE"
	default:
		return "NONE"
	}
}

// Classify maps err onto the error taxonomy. Errors of unknown origin are
// treated as transport failures.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	if backend.IsAPIError(err) {
		return ClassBackendReported
	}
	for _, local := range localErrors {
		if errors.Is(err, local) {
			return ClassLocalValidation
		}
	}
	return ClassTransportFailure
}

// Notice texts appended to the transcript.
const (
	NoticeNoSession          = "No active session. Please start a new session first."
	NoticeNoFilesSelected    = "No files selected"
	NoticeEnterRepoPath      = "Please enter a repository path"
	NoticeEnterCommitMessage = "Please enter a commit message"
	NoticeProcessing         = "Processing..."
	NoticeConnected          = "Connected to server"
	NoticeDisconnected       = "Disconnected from server"
	NoticeSettingsSaved      = "Settings saved"
)

func errorNotice(err error) string {
	return "Error: " + err.Error()
}
