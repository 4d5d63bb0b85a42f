package broker

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// server owns the TCP listener and the per-connection reader goroutines.
type server struct {
	broker *Broker
	ln     net.Listener
}

func newServer(b *Broker) (*server, error) {
	addr := net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	b.logger.Info("listening", "addr", ln.Addr().String())
	return &server{broker: b, ln: ln}, nil
}

func (s *server) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *server) close() {
	_ = s.ln.Close()
}

func (s *server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.broker.logger.Info("listener stopped")
				return
			}
			s.broker.logger.Warn("accept", "error", err)
			return
		}
		go s.handleConn(conn)
	}
}

// handleConn runs one connection's reader loop. Commands are enqueued
// onto the broker loop in arrival order; the loop writes all responses
// and events, so per-connection FIFO holds end to end.
func (s *server) handleConn(conn net.Conn) {
	b := s.broker
	client := &Client{ID: newClientID(), conn: conn, broker: b}
	client.logger = b.logger.With("client_id", client.ID, "remote", conn.RemoteAddr().String())
	b.run(func() { b.addClient(client) })

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), b.cfg.maxLine())
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if b.wire != nil {
			b.wire.Line(true, line)
		}
		b.run(func() { b.dispatch(client, line) })
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			// Oversized line: close with no response.
			client.logger.Warn("line too long, closing connection")
		} else {
			client.logger.Debug("read", "error", err)
		}
	}
	b.run(func() { b.removeClient(client.ID) })
}
