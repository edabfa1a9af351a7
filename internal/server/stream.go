package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/goccy/go-json"

	"github.com/jonathan/pikflix/internal/types"
)

// NDJSONContentType is the media type of the recommendation stream.
const NDJSONContentType = "application/x-ndjson"

// NDJSONWriter writes newline-delimited JSON frames, flushing after each.
// Headers are sent with the first frame, so a request that fails before
// producing anything can still get an ordinary error response.
type NDJSONWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	frames  int
}

// NewNDJSONWriter creates a new NDJSON writer
func NewNDJSONWriter(w http.ResponseWriter) (*NDJSONWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	return &NDJSONWriter{w: w, flusher: flusher}, nil
}

// WriteFrame encodes v as one line.
func (n *NDJSONWriter) WriteFrame(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		h := n.w.Header()
		h.Set("Content-Type", NDJSONContentType)
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}
	if _, err := n.w.Write(line); err != nil {
		return err
	}
	n.flusher.Flush()
	n.frames++
	return nil
}

// Started reports whether any frame has been written.
func (n *NDJSONWriter) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

// Frames returns the number of frames written.
func (n *NDJSONWriter) Frames() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frames
}

// InitFrame opens a recommendation stream.
type InitFrame struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

// MovieFrame carries one resolved recommendation.
type MovieFrame struct {
	Type string               `json:"type"`
	Data types.Recommendation `json:"data"`
}

// Frame type values.
const (
	FrameInit  = "init"
	FrameMovie = "movie"
)

// streamFrames adapts an NDJSONWriter to pipeline.StreamHandler.
type streamFrames struct {
	w *NDJSONWriter
}

func (s *streamFrames) OnInit(query string) error {
	return s.w.WriteFrame(InitFrame{Type: FrameInit, Query: query})
}

func (s *streamFrames) OnItem(rec types.Recommendation) error {
	return s.w.WriteFrame(MovieFrame{Type: FrameMovie, Data: rec})
}
