// Package journal is an append-only JSON-lines record of what a run sent and
// how each payload ended, for auditing after the fact.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zmlAEQ/pingburst/pkg/logger"
	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

type Event string

const (
	EventDispatch  Event = "dispatch"
	EventConfirmed Event = "confirmed"
	EventFailed    Event = "failed"
)

type Entry struct {
	Time      time.Time `json:"ts"`
	TraceID   string    `json:"trace_id,omitempty"`
	Event     Event     `json:"event"`
	Round     int       `json:"round"`
	Index     int       `json:"index"`
	Signature string    `json:"signature,omitempty"`
	Token     string    `json:"token,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Journal appends one JSON line per entry and syncs after each write.
type Journal struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// Open creates the file (and its directory) if needed.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Journal{path: path, f: f}, nil
}

func (j *Journal) Append(e Entry) error {
	if j == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return errors.New("journal closed")
	}
	if _, err := j.f.Write(append(b, '\n')); err != nil {
		metrics.Inc("journal_appends_total", map[string]string{"result": "error"})
		return err
	}
	if err := j.f.Sync(); err != nil {
		metrics.Inc("journal_appends_total", map[string]string{"result": "error"})
		return err
	}
	metrics.Inc("journal_appends_total", map[string]string{"result": "ok"})
	return nil
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// Read returns every valid entry in the file at path, skipping torn or
// malformed lines.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Entry
	skipped := 0
	s := bufio.NewScanner(f)
	for s.Scan() {
		var e Entry
		if json.Unmarshal(s.Bytes(), &e) != nil {
			skipped++
			continue
		}
		out = append(out, e)
	}
	if err := s.Err(); err != nil {
		return out, err
	}
	if skipped > 0 {
		logger.WarnJ("journal_read", map[string]any{"path": path, "skipped": skipped})
	}
	return out, nil
}

// Last returns the most recent entry for each batch index.
func Last(entries []Entry) map[int]Entry {
	out := make(map[int]Entry)
	for _, e := range entries {
		out[e.Index] = e
	}
	return out
}
