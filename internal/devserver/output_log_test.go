package devserver

import (
	"fmt"
	"testing"
)

func outputEvent(session string, seq uint64) OutputEvent {
	return OutputEvent{
		SessionID: session,
		Output:    fmt.Sprintf("line-%d", seq),
		Seq:       seq,
	}
}

func outputs(events []OutputEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Output
	}
	return out
}

func TestOutputLog_Empty(t *testing.T) {
	l := newOutputLog(10)
	if got := l.Events(); len(got) != 0 {
		t.Errorf("expected no events, got %v", got)
	}
	if l.Len() != 0 {
		t.Errorf("expected Len 0, got %d", l.Len())
	}
}

func TestOutputLog_KeepsNewest(t *testing.T) {
	l := newOutputLog(3)
	for seq := uint64(1); seq <= 5; seq++ {
		l.Append(outputEvent("s1", seq))
	}
	if l.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", l.Len())
	}
	got := fmt.Sprint(outputs(l.Events()))
	if got != "[line-3 line-4 line-5]" {
		t.Errorf("unexpected events %s", got)
	}
}

func TestOutputLog_LimitBelowOne(t *testing.T) {
	l := newOutputLog(0)
	l.Append(outputEvent("s1", 1))
	l.Append(outputEvent("s1", 2))
	got := l.Events()
	if len(got) != 1 || got[0].Output != "line-2" {
		t.Errorf("expected only the latest event, got %v", got)
	}
}

func TestReplay_MergesSessionsInEmissionOrder(t *testing.T) {
	a := newOutputLog(10)
	b := newOutputLog(10)
	a.Append(outputEvent("a", 1))
	b.Append(outputEvent("b", 2))
	a.Append(outputEvent("a", 3))
	b.Append(outputEvent("b", 4))

	got := fmt.Sprint(outputs(replay([]*outputLog{a, b})))
	if got != "[line-1 line-2 line-3 line-4]" {
		t.Errorf("unexpected replay order %s", got)
	}
}

func TestReplay_SkipsOverwrittenEvents(t *testing.T) {
	a := newOutputLog(1)
	b := newOutputLog(10)
	a.Append(outputEvent("a", 1))
	b.Append(outputEvent("b", 2))
	a.Append(outputEvent("a", 3))

	got := fmt.Sprint(outputs(replay([]*outputLog{a, b})))
	if got != "[line-2 line-3]" {
		t.Errorf("unexpected replay %s", got)
	}
}
