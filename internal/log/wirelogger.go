package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// WireLogger records raw protocol lines with optional file output. It is
// enabled at trace level or via --log.wire-file and is the only place the
// daemon writes untruncated wire traffic.
type WireLogger interface {
	Line(in bool, line []byte)
}

// wireLogger implements WireLogger with thread-safe output.
type wireLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWire creates a new WireLogger. If writer is nil, returns a no-op logger.
func NewWire(w io.Writer) WireLogger {
	return &wireLogger{w: w}
}

// Line emits a single wire log entry with timestamp and direction.
// in=true means client->daemon, in=false means daemon->client.
func (l *wireLogger) Line(in bool, line []byte) {
	if len(line) == 0 || l.w == nil {
		return
	}

	dir := "D->C"
	if in {
		dir = "C->D"
	}

	trimmed := bytes.TrimRight(line, "\n")
	entry := fmt.Sprintf("%s %s %s\n",
		time.Now().Format("2006/01/02 15:04:05"),
		dir,
		trimmed)

	l.mu.Lock()
	_, _ = l.w.Write([]byte(entry))
	l.mu.Unlock()
}
