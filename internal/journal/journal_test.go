package journal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJournal_AppendAndRead(t *testing.T) {
	p := filepath.Join(t.TempDir(), "run", "journal.log")
	j, err := Open(p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := j.Append(Entry{Event: EventDispatch, Round: 1, Index: 0, Signature: "s1"}); err != nil {
		t.Fatalf("append1: %v", err)
	}
	if err := j.Append(Entry{Event: EventConfirmed, Round: 1, Index: 0, Signature: "s1"}); err != nil {
		t.Fatalf("append2: %v", err)
	}
	if err := j.Append(Entry{Event: EventFailed, Round: 2, Index: 1, Reason: "exhausted retries"}); err != nil {
		t.Fatalf("append3: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 entries, got %d", len(got))
	}
	last := Last(got)
	if last[0].Event != EventConfirmed || last[1].Reason != "exhausted retries" {
		t.Fatalf("unexpected last entries: %+v", last)
	}
	if got[0].Time.IsZero() {
		t.Fatalf("timestamp not set")
	}
}

func TestJournal_SkipsTornLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "journal.log")
	data := `{"event":"dispatch","round":1,"index":0}` + "\n" + `{"event":"disp`
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 valid entry, got %d", len(got))
	}
}

func TestJournal_ReadMissing(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.log")); err == nil {
		t.Fatalf("want error on missing journal")
	}
}

func TestJournal_AppendAfterClose(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "j.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = j.Close()
	if err := j.Append(Entry{Event: EventDispatch}); err == nil {
		t.Fatalf("want error after close")
	}
	var nilJ *Journal
	if err := nilJ.Append(Entry{}); err != nil {
		t.Fatalf("nil journal should be a no-op: %v", err)
	}
}
