package authority

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestAuditFlushesEveryRecordedEvent: each recorded event reaches the
// JSONL sink exactly once, in sequence order starting at zero. No
// zero-value entries may appear and the final event before Stop must
// not be lost.
func TestAuditFlushesEveryRecordedEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := NewAuditLog()
	if err := l.Start(path); err != nil {
		t.Fatalf("start: %v", err)
	}

	types := []AuditEventType{AuditFire, AuditReload, AuditKill}
	for i, typ := range types {
		if !l.Record(typ, uint64(i+1), "p1", nil) {
			t.Fatalf("record %v rejected", typ)
		}
	}
	l.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad JSONL line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(events) != len(types) {
		t.Fatalf("expected %d flushed events, got %d: %+v", len(types), len(events), events)
	}
	for i, ev := range events {
		if ev.Sequence != uint64(i) {
			t.Errorf("event %d: sequence = %d, want %d", i, ev.Sequence, i)
		}
		if ev.Type != types[i] {
			t.Errorf("event %d: type = %q, want %q", i, ev.Type, types[i])
		}
		if ev.ActorID != "p1" {
			t.Errorf("event %d: actor = %q, want p1", i, ev.ActorID)
		}
	}
}

func TestAuditStatsCountPending(t *testing.T) {
	l := NewAuditLog()
	if err := l.Start(""); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer l.Stop()

	for i := 0; i < 5; i++ {
		l.Record(AuditFire, uint64(i), "p1", nil)
	}
	stats := l.Stats()
	if got := stats["total"].(uint64); got != 5 {
		t.Errorf("total = %d, want 5", got)
	}
	if got := stats["pending"].(uint64); got > 5 {
		t.Errorf("pending = %d, want at most 5", got)
	}
}
