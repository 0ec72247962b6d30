package session

import (
	"time"

	"github.com/google/uuid"
)

// Origin tags who produced a transcript entry.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
	OriginSystem    Origin = "system"
)

// Handle identifies one transcript entry.
type Handle string

// Entry is a single chat transcript line.
type Entry struct {
	ID      Handle    `json:"id"`
	Origin  Origin    `json:"origin"`
	Content string    `json:"content"`
	Pending bool      `json:"pending"`
	Time    time.Time `json:"time"`
}

// Transcript is the ordered chat log. Entries are only appended, except that
// any entry may be removed by handle and the whole log may be cleared.
// It is not safe for concurrent use; the Controller loop owns it.
type Transcript struct {
	entries []Entry
	rev     uint64
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) add(origin Origin, content string, pending bool) Handle {
	e := Entry{
		ID:      Handle(uuid.NewString()),
		Origin:  origin,
		Content: content,
		Pending: pending,
		Time:    time.Now().UTC(),
	}
	t.entries = append(t.entries, e)
	t.rev++
	return e.ID
}

func (t *Transcript) AppendUser(text string) Handle {
	return t.add(OriginUser, text, false)
}

func (t *Transcript) AppendAssistant(text string) Handle {
	return t.add(OriginAssistant, text, false)
}

// AppendSystem appends a system notice and returns its handle.
func (t *Transcript) AppendSystem(text string) Handle {
	return t.add(OriginSystem, text, false)
}

// AppendPending appends a system placeholder for work in progress.
func (t *Transcript) AppendPending(text string) Handle {
	return t.add(OriginSystem, text, true)
}

// Remove deletes exactly the entry with handle h. It reports whether an entry
// was removed; removing an absent handle is a no-op.
func (t *Transcript) Remove(h Handle) bool {
	for i, e := range t.entries {
		if e.ID == h {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			t.rev++
			return true
		}
	}
	return false
}

// Clear wipes the transcript.
func (t *Transcript) Clear() {
	t.entries = nil
	t.rev++
}

// Entries returns a copy of all entries in order.
func (t *Transcript) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	return len(t.entries)
}

// PendingCount returns the number of unresolved placeholder entries.
func (t *Transcript) PendingCount() int {
	n := 0
	for _, e := range t.entries {
		if e.Pending {
			n++
		}
	}
	return n
}
