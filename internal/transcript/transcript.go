// Package transcript records bridge traffic as JSON lines.
//
// The first line is a header object; every following line is an event array
// [time_offset, direction, frame] where direction is "i" for host -> bridge
// and "o" for bridge -> host.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Header opens a transcript.
type Header struct {
	Version    int    `json:"version"`
	Timestamp  int64  `json:"timestamp"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
}

// Event is one recorded frame.
type Event struct {
	TimeOffset float64
	Direction  string // "i" inbound, "o" outbound
	Data       string
}

// MarshalJSON encodes the event as a three-element array.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeOffset, e.Direction, e.Data})
}

// UnmarshalJSON decodes the three-element array form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	timeOffset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset type")
	}
	direction, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid direction type")
	}
	frame, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid frame type")
	}

	e.TimeOffset, e.Direction, e.Data = timeOffset, direction, frame
	return nil
}

// Recorder appends frames to a transcript.
type Recorder struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// Open creates (or appends to) the transcript at path.
func Open(path string) (*Recorder, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	return &Recorder{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}, nil
}

// NewRecorder writes a transcript to w. This is useful for testing.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		writer:    w,
		startTime: time.Now(),
	}
}

// Begin writes a header for a new connection and restarts the clock.
func (r *Recorder) Begin(remoteAddr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startTime = time.Now()
	data, err := json.Marshal(Header{
		Version:    1,
		Timestamp:  r.startTime.Unix(),
		RemoteAddr: remoteAddr,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Inbound records a frame received from the host.
func (r *Recorder) Inbound(data []byte) error {
	return r.write("i", data)
}

// Outbound records a frame sent to the host.
func (r *Recorder) Outbound(data []byte) error {
	return r.write("o", data)
}

func (r *Recorder) write(direction string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, err := json.Marshal(Event{
		TimeOffset: time.Since(r.startTime).Seconds(),
		Direction:  direction,
		Data:       string(data),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the transcript file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
