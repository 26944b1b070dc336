package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
)

// FileSink appends one JSON object per event to a file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry file: %w", err)
	}
	return &FileSink{file: f, enc: json.NewEncoder(f)}, nil
}

func (s *FileSink) Emit(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(ev)
}

func (s *FileSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// HTTPSink buffers events and posts them as one JSON batch on Flush.
type HTTPSink struct {
	Endpoint string
	Client   *http.Client

	mu      sync.Mutex
	pending []Event
}

func NewHTTPSink(endpoint string) *HTTPSink {
	return &HTTPSink{Endpoint: endpoint, Client: http.DefaultClient}
}

func (s *HTTPSink) Emit(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ev)
	return nil
}

func (s *HTTPSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]any{"events": batch})
	if err != nil {
		return fmt.Errorf("marshaling telemetry batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting telemetry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry endpoint returned %d", resp.StatusCode)
	}
	return nil
}
