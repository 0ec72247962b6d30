package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"aider-web/internal/session"
	"aider-web/internal/settings"

	"github.com/chzyer/readline"
	"gopkg.in/yaml.v3"
)

type replCommand struct {
	name string
	args string
	help string
}

var replCommands = []replCommand{
	{"/new", "[repo]", "start a new session, optionally on a repository"},
	{"/load", "<repo>", "start a new session on a repository"},
	{"/files", "", "refresh the repository file list"},
	{"/ls", "", "list repository files; * marks selected files"},
	{"/toggle", "<file>", "select or deselect a file"},
	{"/select", "", "open the file selection"},
	{"/add", "[n|file ...]", "add files to the chat (default: selected files)"},
	{"/cancel", "", "close the file selection"},
	{"/commit", "<message>", "commit changes in the repository"},
	{"/settings", "", "show model settings"},
	{"/set", "<key>=<value>", "change and save a model setting"},
	{"/status", "", "show the current session"},
	{"/help", "", "show commands"},
	{"/quit", "", "exit"},
}

var errQuit = errors.New("quit")

// SettingsStore is the part of the settings store the REPL edits.
type SettingsStore interface {
	Load() (settings.Settings, error)
}

type repl struct {
	ctrl    *session.Controller
	store   SettingsStore
	input   lineInput
	printer *printer
}

// Run reads lines until the user quits or input ends.
func (r *repl) Run(ctx context.Context) error {
	for {
		line, err := r.input.ReadLine(r.prompt(ctx))
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if err != nil {
			// EOF or closed input.
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		err = r.execute(ctx, line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if msg := describe(err); msg != "" {
			r.printer.Notice(msg)
		}
	}
}

func (r *repl) prompt(ctx context.Context) string {
	sess, err := r.ctrl.RequireSession(ctx)
	if err != nil {
		return "> "
	}
	return sess.Model + "> "
}

// describe returns the text for errors not already shown in the transcript.
func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrSendInFlight):
		return "A message is already being processed"
	case errors.Is(err, session.ErrUnknownFile):
		return err.Error()
	case session.Classify(err) == session.ClassLocalValidation:
		return ""
	default:
		return "Error: " + err.Error()
	}
}

// parseLine splits a REPL line into a command and its argument text. Lines
// not starting with '/' are chat messages.
func parseLine(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(line, " ")
	return cmd, strings.TrimSpace(arg)
}

func (r *repl) execute(ctx context.Context, line string) error {
	cmd, arg := parseLine(line)
	exec := func(c session.Command) error { return r.ctrl.Execute(ctx, c) }

	switch cmd {
	case "":
		if arg == "" {
			return nil
		}
		return exec(session.Command{Action: session.ActionSendMessage, Text: arg})
	case "/new":
		return exec(session.Command{Action: session.ActionStartSession, Text: arg})
	case "/load":
		return exec(session.Command{Action: session.ActionLoadRepository, Text: arg})
	case "/files":
		return exec(session.Command{Action: session.ActionRefreshFiles})
	case "/ls":
		return r.listFiles(ctx)
	case "/toggle":
		return exec(session.Command{Action: session.ActionToggleFile, Text: arg})
	case "/select":
		if err := exec(session.Command{Action: session.ActionOpenSelection}); err != nil {
			return err
		}
		return r.listFiles(ctx)
	case "/add":
		paths, err := r.selectionPaths(ctx, strings.Fields(arg))
		if err != nil {
			return err
		}
		return exec(session.Command{Action: session.ActionCommitSelection, Paths: paths})
	case "/cancel":
		return exec(session.Command{Action: session.ActionCloseSelection})
	case "/commit":
		return exec(session.Command{Action: session.ActionCommitChanges, Text: arg})
	case "/settings":
		return r.showSettings()
	case "/set":
		return r.setSetting(ctx, arg)
	case "/status":
		return r.status(ctx)
	case "/help":
		printHelp(r.printer.out)
		return nil
	case "/quit", "/exit":
		return errQuit
	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

func (r *repl) listFiles(ctx context.Context) error {
	snap, err := r.ctrl.Snapshot(ctx)
	if err != nil {
		return err
	}
	files := snap.Catalog
	if snap.SelectionOpen {
		files = snap.Candidates
	}
	r.printer.Files(files, snap.Active)
	return nil
}

// selectionPaths resolves /add arguments. Numbers index the listed files;
// other arguments are paths. With no arguments the selected files are used.
func (r *repl) selectionPaths(ctx context.Context, args []string) ([]string, error) {
	snap, err := r.ctrl.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return snap.Active, nil
	}
	listed := snap.Catalog
	if snap.SelectionOpen {
		listed = snap.Candidates
	}
	paths := make([]string, 0, len(args))
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil {
			if n < 1 || n > len(listed) {
				return nil, fmt.Errorf("no file numbered %d", n)
			}
			paths = append(paths, listed[n-1])
			continue
		}
		paths = append(paths, a)
	}
	return paths, nil
}

func (r *repl) showSettings() error {
	s, err := r.store.Load()
	if err != nil {
		return err
	}
	return writeSettingsYAML(r.printer.out, s)
}

func (r *repl) setSetting(ctx context.Context, arg string) error {
	key, value, ok := strings.Cut(arg, "=")
	if !ok {
		return errors.New("usage: /set <key>=<value>")
	}
	s, err := r.store.Load()
	if err != nil {
		return err
	}
	if err := s.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
		return err
	}
	return r.ctrl.Execute(ctx, session.Command{Action: session.ActionSaveSettings, Settings: &s})
}

func (r *repl) status(ctx context.Context) error {
	snap, err := r.ctrl.Snapshot(ctx)
	if err != nil {
		return err
	}
	r.printer.Status(snap)
	return nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	for _, c := range replCommands {
		fmt.Fprintf(out, "  %-10s %-15s %s\n", c.name, c.args, c.help)
	}
	fmt.Fprintln(out, "anything else is sent to the assistant")
}

// writeSettingsYAML prints settings with the API key masked.
func writeSettingsYAML(out io.Writer, s settings.Settings) error {
	if s.APIKey != "" {
		s.APIKey = maskKey(s.APIKey)
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
