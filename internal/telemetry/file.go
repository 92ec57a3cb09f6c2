package telemetry

import (
	"encoding/json"
	"os"
	"sync"
)

// FilePublisher appends events to a JSONL file for later analysis.
type FilePublisher struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFilePublisher creates (truncating) the JSONL file at path.
func NewFilePublisher(path string) (*FilePublisher, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &FilePublisher{file: f, enc: json.NewEncoder(f)}, nil
}

// Broadcast appends one event line.
func (p *FilePublisher) Broadcast(event string, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(e)
}

// Close closes the underlying file.
func (p *FilePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file.Close()
}
