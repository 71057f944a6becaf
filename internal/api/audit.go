package api

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// RequestEntry is one line of the requests audit file, appended for every
// outbound call whether it succeeded or not.
type RequestEntry struct {
	Timestamp  time.Time `json:"ts"`
	URL        string    `json:"url"`
	Status     int       `json:"status,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// RequestLog appends RequestEntry records to a JSONL file.
type RequestLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func OpenRequestLog(path string) (*RequestLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open requests file: %w", err)
	}
	return &RequestLog{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

func (l *RequestLog) Append(entry RequestEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(entry)
}

func (l *RequestLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
