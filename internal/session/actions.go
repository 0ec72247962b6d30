package session

import (
	"context"
	"strings"
	"time"

	"aider-web/internal/protocol"
	"aider-web/internal/settings"

	"go.uber.org/zap"
)

// Action names a user-initiated operation.
type Action string

const (
	ActionStartSession    Action = "start_session"
	ActionLoadRepository  Action = "load_repository"
	ActionRefreshFiles    Action = "refresh_files"
	ActionToggleFile      Action = "toggle_file"
	ActionOpenSelection   Action = "open_selection"
	ActionCloseSelection  Action = "close_selection"
	ActionCommitSelection Action = "commit_selection"
	ActionSetDraft        Action = "set_draft"
	ActionSendMessage     Action = "send_message"
	ActionCommitChanges   Action = "commit_changes"
	ActionSaveSettings    Action = "save_settings"
)

// Command is one dispatched action with its arguments.
type Command struct {
	Action Action
	// Text is the repository path, message, file path or commit message,
	// depending on the action.
	Text string
	// Paths are the files chosen in the selection view.
	Paths []string
	// Settings overrides the stored settings for ActionStartSession and
	// carries the values for ActionSaveSettings.
	Settings *settings.Settings
}

type handlerFunc func(c *Controller, cmd Command) error

var handlers = map[Action]handlerFunc{
	ActionStartSession:    (*Controller).startSession,
	ActionLoadRepository:  (*Controller).loadRepository,
	ActionRefreshFiles:    (*Controller).refreshFiles,
	ActionToggleFile:      (*Controller).toggleFile,
	ActionOpenSelection:   (*Controller).openSelection,
	ActionCloseSelection:  (*Controller).closeSelection,
	ActionCommitSelection: (*Controller).commitSelection,
	ActionSetDraft:        (*Controller).setDraft,
	ActionSendMessage:     (*Controller).sendMessage,
	ActionCommitChanges:   (*Controller).commitChanges,
	ActionSaveSettings:    (*Controller).saveSettings,
}

// Actions lists the registered action names.
func Actions() []Action {
	out := make([]Action, 0, len(handlers))
	for a := range handlers {
		out = append(out, a)
	}
	return out
}

func (c *Controller) currentSettings(cmd Command) (settings.Settings, error) {
	if cmd.Settings != nil {
		return *cmd.Settings, nil
	}
	if c.settings == nil {
		return settings.Default(), nil
	}
	return c.settings.Load()
}

// startSession replaces the current session on success. On failure the
// prior session and transcript are left untouched.
func (c *Controller) startSession(cmd Command) error {
	repoPath := strings.TrimSpace(cmd.Text)

	s, err := c.currentSettings(cmd)
	if err != nil {
		c.st.transcript.AppendSystem(errorNotice(err))
		return err
	}
	cfg := s.ModelConfig()
	req := protocol.StartSessionRequest{
		RepoPath:    repoPath,
		ModelName:   s.Model,
		ModelConfig: &cfg,
	}

	c.st.startSeq++
	seq := c.st.startSeq
	c.async(func(ctx context.Context) func() {
		resp, err := c.backend.StartSession(ctx, req)
		return func() {
			if seq != c.st.startSeq {
				c.logger.Debug("dropping superseded start session",
					zap.String("repo", repoPath),
					zap.Uint64("issued_start", seq),
					zap.Uint64("start", c.st.startSeq))
				return
			}
			if err != nil {
				c.logger.Warn("start session failed", zap.String("repo", repoPath), zap.Error(err))
				c.st.transcript.AppendSystem(errorNotice(err))
				return
			}
			c.applySession(resp, repoPath, s.Model, cfg)
		}
	})
	return nil
}

func (c *Controller) applySession(resp *protocol.StartSessionResponse, repoPath, model string, cfg protocol.ModelConfig) {
	if resp.Model != "" {
		model = resp.Model
	}
	sess := &Session{
		ID:          resp.SessionID,
		RepoPath:    repoPath,
		DisplayRepo: resp.RepoPath,
		Model:       model,
		ModelConfig: cfg,
		StartedAt:   time.Now().UTC(),
	}

	c.st.generation++
	c.st.session = sess
	c.st.sending = false
	c.st.placeholder = ""
	c.st.transcript.Clear()
	c.st.files.Reset()

	c.st.transcript.AppendSystem("New session started with model: " + sess.Model)
	c.st.transcript.AppendSystem("Repository: " + sess.DisplayRepo)
	c.logger.Info("session started",
		zap.String("session", sess.ID),
		zap.String("model", sess.Model),
		zap.String("repo", repoPath))

	for _, hook := range c.sessionHooks {
		hook(*sess)
	}

	if repoPath != "" {
		_ = c.refreshFiles(Command{Action: ActionRefreshFiles})
	}
}

func (c *Controller) loadRepository(cmd Command) error {
	if strings.TrimSpace(cmd.Text) == "" {
		c.st.transcript.AppendSystem(NoticeEnterRepoPath)
		return ErrEmptyRepoPath
	}
	return c.startSession(cmd)
}

// refreshFiles replaces the catalog with the backend's file list. On error
// the catalog is left unchanged.
func (c *Controller) refreshFiles(Command) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	id, gen := sess.ID, c.st.generation

	c.async(func(ctx context.Context) func() {
		files, err := c.backend.ListFiles(ctx, id)
		return func() {
			if !c.current(gen, "list files") {
				return
			}
			if err != nil {
				c.st.transcript.AppendSystem(errorNotice(err))
				return
			}
			c.st.files.Replace(files)
		}
	})
	return nil
}

func (c *Controller) toggleFile(cmd Command) error {
	_, err := c.st.files.Toggle(cmd.Text)
	return err
}

func (c *Controller) openSelection(Command) error {
	if _, err := c.requireSession(); err != nil {
		return err
	}
	c.st.files.Open()
	return nil
}

func (c *Controller) closeSelection(Command) error {
	c.st.files.Close()
	return nil
}

// commitSelection attaches the chosen files. The view closes only when the
// backend confirms; the notice lists the files the backend reports as added.
func (c *Controller) commitSelection(cmd Command) error {
	if len(cmd.Paths) == 0 {
		c.st.transcript.AppendSystem(NoticeNoFilesSelected)
		return ErrEmptySelection
	}
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	id, gen := sess.ID, c.st.generation
	paths := append([]string(nil), cmd.Paths...)

	c.async(func(ctx context.Context) func() {
		added, err := c.backend.AddFiles(ctx, id, paths)
		return func() {
			if !c.current(gen, "add files") {
				return
			}
			if err != nil {
				c.st.transcript.AppendSystem(errorNotice(err))
				return
			}
			c.st.transcript.AppendSystem("Added files to chat: " + strings.Join(added, ", "))
			c.st.files.Close()
		}
	})
	return nil
}

func (c *Controller) setDraft(cmd Command) error {
	c.st.draft = cmd.Text
	return nil
}

// sendMessage runs the send state machine: IDLE → SENDING → settled → IDLE.
// The placeholder is removed on every settled path.
func (c *Controller) sendMessage(cmd Command) error {
	text := cmd.Text
	if text == "" {
		text = c.st.draft
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	if c.st.sending {
		return ErrSendInFlight
	}

	c.st.transcript.AppendUser(text)
	c.st.draft = ""
	placeholder := c.st.transcript.AppendPending(NoticeProcessing)
	c.st.placeholder = placeholder
	c.st.sending = true

	id, gen := sess.ID, c.st.generation
	c.async(func(ctx context.Context) func() {
		reply, err := c.backend.SendMessage(ctx, id, text)
		return func() {
			if !c.current(gen, "send message") {
				return
			}
			c.st.transcript.Remove(placeholder)
			c.st.placeholder = ""
			c.st.sending = false
			if err != nil {
				c.logger.Warn("send message failed",
					zap.String("session", id),
					zap.String("class", Classify(err).String()),
					zap.Error(err))
				c.st.transcript.AppendSystem(errorNotice(err))
				return
			}
			c.st.transcript.AppendAssistant(reply)
		}
	})
	return nil
}

func (c *Controller) commitChanges(cmd Command) error {
	sess, err := c.requireSession()
	if err != nil {
		return err
	}
	message := strings.TrimSpace(cmd.Text)
	if message == "" {
		c.st.transcript.AppendSystem(NoticeEnterCommitMessage)
		return ErrEmptyCommitMessage
	}
	id, gen := sess.ID, c.st.generation

	c.async(func(ctx context.Context) func() {
		resp, err := c.backend.CommitChanges(ctx, id, message)
		return func() {
			if !c.current(gen, "commit changes") {
				return
			}
			if err != nil {
				c.st.transcript.AppendSystem(errorNotice(err))
				return
			}
			c.st.transcript.AppendSystem("Changes committed: " + resp.Message)
		}
	})
	return nil
}

func (c *Controller) saveSettings(cmd Command) error {
	if cmd.Settings == nil || c.settings == nil {
		return ErrNoSettings
	}
	if err := c.settings.Save(*cmd.Settings); err != nil {
		c.st.transcript.AppendSystem(errorNotice(err))
		return err
	}
	c.st.transcript.AppendSystem(NoticeSettingsSaved)
	return nil
}
