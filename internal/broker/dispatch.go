package broker

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
)

// Request is one decoded command in flight. Raw is the full wire line;
// handlers decode their parameter struct from it.
type Request struct {
	Broker *Broker
	Client *Client
	Cmd    string
	ReqID  string
	Raw    json.RawMessage
}

// Decode unmarshals the command's parameters into v.
func (r *Request) Decode(v any) error {
	if err := json.Unmarshal(r.Raw, v); err != nil {
		return fmt.Errorf("invalid %s parameters: %v", r.Cmd, err)
	}
	return nil
}

// HandlerFunc handles one command on the broker loop. The handler fills
// res; returning an error produces an error response instead. Error
// logging is centralized in the dispatcher.
type HandlerFunc func(req *Request, res *apitypes.Response, logger *slog.Logger) error

// Handle registers a handler for a command tag. The set is closed once
// Start is called; ad-hoc registration at runtime is not supported.
func (b *Broker) Handle(cmd string, h HandlerFunc) {
	b.handlers[cmd] = h
}

// dispatch parses and executes one wire line. Loop-goroutine only.
// Handlers broadcast their events before dispatch writes the response, so
// every client (the originator included) observes the state change before
// the originator's acknowledgement.
func (b *Broker) dispatch(c *Client, line []byte) {
	var cmd apitypes.Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		c.logger.Warn("malformed command", "error", err)
		b.respond(c, errorResponse("", fmt.Sprintf("invalid JSON: %v", err)))
		return
	}
	if cmd.Cmd == "" {
		b.respond(c, errorResponse(cmd.ReqID, "missing cmd field"))
		return
	}

	h, ok := b.handlers[cmd.Cmd]
	if !ok {
		c.logger.Warn("unknown command", "cmd", cmd.Cmd)
		b.respond(c, errorResponse(cmd.ReqID, fmt.Sprintf("unknown command: %s", cmd.Cmd)))
		return
	}

	logger := c.logger.With("cmd", cmd.Cmd)
	logger.Debug("dispatch")

	req := &Request{Broker: b, Client: c, Cmd: cmd.Cmd, ReqID: cmd.ReqID, Raw: line}
	res := &apitypes.Response{}
	if err := h(req, res, logger); err != nil {
		logger.Warn("handler error", "error", err)
		b.respond(c, errorResponse(cmd.ReqID, err.Error()))
		return
	}
	if res.Response == "" {
		res.Response = "ok"
	}
	res.ReqID = cmd.ReqID
	b.respond(c, res)
}

func errorResponse(reqID, message string) *apitypes.Response {
	return &apitypes.Response{Response: "error", ReqID: reqID, Message: message}
}

// respond writes one response; a write failure removes the client.
// Loop-goroutine only.
func (b *Broker) respond(c *Client, res *apitypes.Response) {
	line, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("response marshal", "error", err)
		return
	}
	if err := c.writeLine(line); err != nil {
		b.removeClient(c.ID)
	}
}
