package handler

import (
	"log/slog"

	"github.com/vestkit/vestd/apitypes"
	"github.com/vestkit/vestd/internal/broker"
	"github.com/vestkit/vestd/internal/integration"
)

// IntegrationStart handles <game>_start. A start failure is reported with
// success:false rather than a generic error response, and leaves the
// manager stopped.
func IntegrationStart(b *broker.Broker, m integration.Manager) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		res.Response = m.Name() + "_start"
		if err := m.Start(req.Raw); err != nil {
			logger.Warn("integration start failed", "integration", m.Name(), "error", err)
			res.Success = boolp(false)
			res.Message = err.Error()
			return nil
		}
		payload := map[string]any{}
		for k, v := range m.Status().Extra {
			payload[k] = v
		}
		b.Broadcast(m.Name()+"_started", payload)
		res.Success = boolp(true)
		return nil
	}
}

// IntegrationStop handles <game>_stop.
func IntegrationStop(b *broker.Broker, m integration.Manager) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		res.Response = m.Name() + "_stop"
		if err := m.Stop(); err != nil {
			res.Success = boolp(false)
			res.Message = err.Error()
			return nil
		}
		b.Broadcast(m.Name()+"_stopped", map[string]any{})
		res.Success = boolp(true)
		return nil
	}
}

// IntegrationStatus handles <game>_status.
func IntegrationStatus(m integration.Manager) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		res.Response = m.Name() + "_status"
		res.Payload = map[string]any{"status": m.Status()}
		return nil
	}
}

// IntegrationEvent handles <game>_event: a game feeding the manager
// directly over the control socket instead of a side channel.
func IntegrationEvent(m integration.Manager) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		if err := m.HandleEvent(req.Raw); err != nil {
			return err
		}
		res.Response = m.Name() + "_event"
		res.Success = boolp(true)
		return nil
	}
}

// ListIntegrations returns the status of every registered manager.
func ListIntegrations(managers []integration.Manager) broker.HandlerFunc {
	return func(req *broker.Request, res *apitypes.Response, logger *slog.Logger) error {
		out := make([]apitypes.IntegrationStatus, 0, len(managers))
		for _, m := range managers {
			out = append(out, m.Status())
		}
		res.Response = apitypes.CmdListIntegrations
		res.Payload = map[string]any{"integrations": out}
		return nil
	}
}
