// Package apiclient is the Go client for the vestd control protocol:
// line-delimited JSON over a persistent loopback TCP connection.
// Transport handles framing, req_id correlation and event interleaving;
// Client layers typed methods on top.
package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vestkit/vestd/apitypes"
)

// Config controls low-level transport behavior such as timeouts.
type Config struct {
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	// EventBuffer sizes the event channel; events beyond it are dropped
	// (they stale fast, and a slow consumer must not stall the reader).
	EventBuffer int
}

func defaultConfig() Config {
	return Config{
		DialTimeout:    3 * time.Second,
		RequestTimeout: 5 * time.Second,
		EventBuffer:    64,
	}
}

// Transport is one persistent control connection. Responses are matched
// to requests by req_id, so interleaved event broadcasts never confuse a
// pending call; they are surfaced on the Events channel instead.
type Transport struct {
	addr string
	cfg  Config
	conn net.Conn

	mu      sync.Mutex
	pending map[string]chan *apitypes.Response
	closed  bool
	readErr error

	seq    atomic.Int64
	events chan apitypes.Event
	done   chan struct{}
}

// Dial connects with default settings.
func Dial(addr string) (*Transport, error) { return DialWithConfig(addr, nil) }

// DialWithConfig connects with custom timeouts.
func DialWithConfig(addr string, cfg *Config) (*Transport, error) {
	c := defaultConfig()
	if cfg != nil {
		c = *cfg
	}
	d := &net.Dialer{Timeout: c.DialTimeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			slog.Warn("failed to set TCP_NODELAY", "error", err)
		}
	}
	t := &Transport{
		addr:    addr,
		cfg:     c,
		conn:    conn,
		pending: make(map[string]chan *apitypes.Response),
		events:  make(chan apitypes.Event, c.EventBuffer),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Events returns the stream of broadcasts received on this connection.
// The channel closes when the connection does.
func (t *Transport) Events() <-chan apitypes.Event { return t.events }

// Close shuts the connection down; pending calls fail.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

// Do sends one command and waits for the matching response. params may be
// nil, a struct or a map; its fields are merged beside cmd/req_id in the
// wire object.
func (t *Transport) Do(cmd string, params any) (*apitypes.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.RequestTimeout)
	defer cancel()
	return t.DoCtx(ctx, cmd, params)
}

// DoCtx is like Do but honors the provided context.
func (t *Transport) DoCtx(ctx context.Context, cmd string, params any) (*apitypes.Response, error) {
	reqID := fmt.Sprintf("r%06d", t.seq.Add(1))
	line, err := encodeCommand(cmd, reqID, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan *apitypes.Response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	t.pending[reqID] = ch
	_, err = t.conn.Write(append(line, '\n'))
	t.mu.Unlock()
	if err != nil {
		t.forget(reqID)
		return nil, fmt.Errorf("write: %w", err)
	}

	select {
	case res := <-ch:
		return res, nil
	case <-t.done:
		t.forget(reqID)
		if t.readErr != nil {
			return nil, fmt.Errorf("connection lost: %w", t.readErr)
		}
		return nil, fmt.Errorf("connection closed")
	case <-ctx.Done():
		t.forget(reqID)
		return nil, ctx.Err()
	}
}

func (t *Transport) forget(reqID string) {
	t.mu.Lock()
	delete(t.pending, reqID)
	t.mu.Unlock()
}

// encodeCommand merges the params object with the cmd/req_id envelope
// into one flat wire object.
func encodeCommand(cmd, reqID string, params any) ([]byte, error) {
	obj := map[string]any{}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", cmd, err)
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%s params must be an object: %w", cmd, err)
		}
	}
	obj["cmd"] = cmd
	obj["req_id"] = reqID
	return json.Marshal(obj)
}

func (t *Transport) readLoop() {
	scanner := bufio.NewScanner(t.conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		var probe struct {
			Response string `json:"response"`
			Event    string `json:"event"`
			ReqID    string `json:"req_id"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		switch {
		case probe.Event != "":
			var ev apitypes.Event
			if err := json.Unmarshal(line, &ev); err == nil {
				select {
				case t.events <- ev:
				default: // slow consumer, drop
				}
			}
		case probe.Response != "":
			var res apitypes.Response
			if err := json.Unmarshal(line, &res); err != nil {
				continue
			}
			t.mu.Lock()
			ch := t.pending[probe.ReqID]
			delete(t.pending, probe.ReqID)
			t.mu.Unlock()
			if ch != nil {
				ch <- &res
			}
		}
	}
	t.readErr = scanner.Err()
	close(t.done)
	close(t.events)
	_ = t.conn.Close()
}
