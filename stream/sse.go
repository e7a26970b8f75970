package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter frames stream events as server-sent events, one
// "data: {...}\n\n" record per event, flushing after each so consumers see
// increments as they are produced.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for an event stream and writes the stream
// headers. Returns an error if the underlying writer cannot flush, since an
// unflushable event stream would buffer until the handler returns.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Send writes one event frame and flushes it.
func (s *SSEWriter) Send(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Drain forwards events from ch to the writer until ch closes. A write
// failure stops forwarding; remaining events are discarded so the producer
// side never blocks on a dead connection.
func (s *SSEWriter) Drain(ch <-chan Event) error {
	var writeErr error
	for event := range ch {
		if writeErr != nil {
			continue
		}
		writeErr = s.Send(event)
	}
	return writeErr
}
