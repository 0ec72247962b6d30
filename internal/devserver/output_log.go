package devserver

import (
	"cmp"
	"slices"
	"sync"
)

// outputLog keeps the most recent tool output of one session. Events carry a
// registry-wide sequence number so the logs of several sessions can be
// replayed in the order they were emitted.
type outputLog struct {
	mu     sync.RWMutex
	events []OutputEvent
	start  int // oldest event
	size   int
}

func newOutputLog(limit int) *outputLog {
	if limit < 1 {
		limit = 1
	}
	return &outputLog{events: make([]OutputEvent, limit)}
}

// Append adds an event, dropping the oldest once the log is full.
func (l *outputLog) Append(ev OutputEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := len(l.events)
	if l.size < limit {
		l.events[(l.start+l.size)%limit] = ev
		l.size++
		return
	}
	l.events[l.start] = ev
	l.start = (l.start + 1) % limit
}

func (l *outputLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Events returns the buffered events, oldest first.
func (l *outputLog) Events() []OutputEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]OutputEvent, l.size)
	for i := range out {
		out[i] = l.events[(l.start+i)%len(l.events)]
	}
	return out
}

// replay merges session logs into a single history in emission order.
func replay(logs []*outputLog) []OutputEvent {
	var all []OutputEvent
	for _, l := range logs {
		all = append(all, l.Events()...)
	}
	slices.SortFunc(all, func(a, b OutputEvent) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return all
}
