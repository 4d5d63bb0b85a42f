package broker

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
)

// Client is one connected control socket. Writes happen only from the
// broker loop, preserving the single-writer-per-connection invariant.
type Client struct {
	ID     string
	conn   net.Conn
	broker *Broker
	logger *slog.Logger
}

func newClientID() string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// writeLine sends one wire line. Loop-goroutine only.
func (c *Client) writeLine(line []byte) error {
	if c.broker.wire != nil {
		c.broker.wire.Line(false, line)
	}
	_, err := c.conn.Write(append(line, '\n'))
	return err
}

func (c *Client) close() {
	_ = c.conn.Close()
}

// addClient registers the client and announces it. Loop-goroutine only.
func (b *Broker) addClient(c *Client) {
	b.clients[c.ID] = c
	c.logger.Info("client connected", "clients", len(b.clients))
	b.Broadcast("client_connected", map[string]any{"client_id": c.ID})
}

// removeClient drops the client and announces it; exactly one
// client_disconnected is emitted per client lifetime. Loop-goroutine only.
func (b *Broker) removeClient(id string) {
	c, ok := b.clients[id]
	if !ok {
		return
	}
	delete(b.clients, id)
	c.close()
	c.logger.Info("client disconnected", "clients", len(b.clients))
	b.Broadcast("client_disconnected", map[string]any{"client_id": id})
}
