package statuslog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log is the append-only scheduler status file: one "Timestamp,Status" row
// per significant pipeline event.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

func (l *Log) Path() string { return l.path }

// Write appends one status line, creating the file and header on first use.
func (l *Log) Write(status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	_, statErr := os.Stat(l.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write([]string{"Timestamp", "Status"}); err != nil {
			return err
		}
	}
	if err := w.Write([]string{l.now().UTC().Format("2006-01-02 15:04:05"), status}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Entry is one parsed status line.
type Entry struct {
	Timestamp string
	Status    string
}

// ReadAll returns every entry, oldest first. A missing file yields none.
func (l *Log) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for i, r := range rows {
		if i == 0 || len(r) < 2 {
			continue
		}
		out = append(out, Entry{Timestamp: r[0], Status: r[1]})
	}
	return out, nil
}
