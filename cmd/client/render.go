package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"aider-web/internal/session"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const wordWrap = 100

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pendingStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("241"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	selectedStyle  = lipgloss.NewStyle().Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// printer writes transcript entries as they appear. Observe runs on the
// controller loop while the REPL prints its own output, so writes are
// serialised.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	md      *glamour.TermRenderer
	seen    map[session.Handle]bool
	catalog int
}

func newPrinter(out io.Writer) *printer {
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		md = nil
	}
	return &printer{
		out:     out,
		md:      md,
		seen:    make(map[session.Handle]bool),
		catalog: -1,
	}
}

// Observe prints entries not printed before and reports catalog changes.
func (p *printer) Observe(snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[session.Handle]bool, len(snap.Transcript))
	for _, e := range snap.Transcript {
		seen[e.ID] = true
		if !p.seen[e.ID] {
			fmt.Fprintln(p.out, p.format(e))
		}
	}
	p.seen = seen

	if snap.Session != nil && len(snap.Catalog) != p.catalog {
		p.catalog = len(snap.Catalog)
		if p.catalog > 0 {
			fmt.Fprintln(p.out, systemStyle.Render(fmt.Sprintf("· %d files in repository (/ls to list)", p.catalog)))
		}
	}
}

func (p *printer) format(e session.Entry) string {
	switch {
	case e.Pending:
		return pendingStyle.Render("… " + e.Content)
	case e.Origin == session.OriginUser:
		return userStyle.Render("you ›") + " " + e.Content
	case e.Origin == session.OriginAssistant:
		return assistantStyle.Render("aider ›") + "\n" + p.markdown(e.Content)
	case strings.HasPrefix(e.Content, "Error: "):
		return errorStyle.Render("· " + e.Content)
	default:
		return systemStyle.Render("· " + e.Content)
	}
}

func (p *printer) markdown(content string) string {
	if p.md == nil || strings.TrimSpace(content) == "" {
		return content
	}
	rendered, err := p.md.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

// Notice prints a line that is not part of the transcript.
func (p *printer) Notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, errorStyle.Render("! "+text))
}

func (p *printer) Banner(backend string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, titleStyle.Render("aider-web")+" "+systemStyle.Render(backend))
	fmt.Fprintln(p.out, systemStyle.Render("/new [repo] starts a session, /help lists commands"))
}

// Files prints a numbered file list, marking selected files.
func (p *printer) Files(files, active []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(files) == 0 {
		fmt.Fprintln(p.out, systemStyle.Render("· no files"))
		return
	}
	marked := make(map[string]bool, len(active))
	for _, f := range active {
		marked[f] = true
	}
	for i, f := range files {
		line := fmt.Sprintf("%3d  %s", i+1, f)
		if marked[f] {
			fmt.Fprintln(p.out, selectedStyle.Render(line+" *"))
			continue
		}
		fmt.Fprintln(p.out, line)
	}
}

func (p *printer) Status(snap session.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Session == nil {
		fmt.Fprintln(p.out, systemStyle.Render("· "+session.NoticeNoSession))
		return
	}
	s := snap.Session
	fmt.Fprintf(p.out, "session   %s\n", s.ID)
	fmt.Fprintf(p.out, "model     %s (%s edit format)\n", s.Model, s.ModelConfig.EditFormat)
	fmt.Fprintf(p.out, "repo      %s\n", s.DisplayRepo)
	fmt.Fprintf(p.out, "files     %d listed, %d selected\n", len(snap.Catalog), len(snap.Active))
	if snap.Sending {
		fmt.Fprintln(p.out, pendingStyle.Render("waiting for a reply"))
	}
}
