package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/connstate"
	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/vss"
)

// providerLoop serves registered actuators over one provider stream. It
// does not retry: a validation failure is permanent and a transport
// failure hands recovery to the application, which already owns the
// lifecycle of the values it streams.
func (c *Client) providerLoop(ctx context.Context) {
	sm := c.providerSM
	sm.Start()

	c.regMu.Lock()
	regs := append([]actuatorReg(nil), c.actuators...)
	c.regMu.Unlock()

	if err := c.waitForConnection(ctx); err != nil {
		sm.ConnectFailed(errors.Unavailable("databroker connection not ready", err))
		return
	}
	sm.ChannelReady()

	// All-or-nothing validation against fresh metadata. No handler is ever
	// invoked when any registration is bad, and the failure is permanent:
	// the machine rests in Failed so Status surfaces the error.
	if err := c.validateRegistrations(ctx, regs); err != nil {
		c.logger.Error("actuator validation failed", "client", c.name, "error", err)
		sm.StreamFailed(err, false)
		return
	}

	stream, err := c.rpc.OpenProviderStream(ctx)
	if err != nil {
		sm.StreamFailed(err, true)
		return
	}
	defer stream.Close()

	if len(regs) > 0 {
		claim := &broker.ProvideActuation{}
		for _, reg := range regs {
			claim.Actuators = append(claim.Actuators, broker.ActuatorClaim{
				ID:   reg.handle.ID,
				Path: reg.handle.Path,
			})
		}
		if err := stream.Send(&broker.ProviderFrame{ProvideActuation: claim}); err != nil {
			sm.StreamFailed(err, true)
			return
		}
	} else {
		// Sensor-only mode has nothing to claim.
		sm.StreamReady()
	}

	handlers := make(map[int32]func(vss.Value), len(regs))
	for _, reg := range regs {
		handlers[reg.handle.ID] = reg.fn
	}

	for {
		select {
		case <-ctx.Done():
			sm.Stop()
			return
		case frame, ok := <-stream.Frames():
			if !ok {
				if ctx.Err() != nil {
					sm.Stop()
					return
				}
				err := stream.Err()
				if err == nil {
					err = errors.Unavailable("provider stream ended", nil)
				}
				sm.StreamEnded(err)
				return
			}
			c.handleProviderFrame(sm, stream, frame, handlers)
		}
	}
}

func (c *Client) handleProviderFrame(
	sm *connstate.Machine,
	stream broker.ProviderStream,
	frame *broker.ProviderFrame,
	handlers map[int32]func(vss.Value),
) {
	switch {
	case frame.ProvideActuationAck != nil:
		if frame.ProvideActuationAck.Error != "" {
			c.logger.Error("actuator claim rejected",
				"client", c.name,
				"error", frame.ProvideActuationAck.Error)
			return
		}
		sm.StreamReady()

	case frame.BatchActuateRequest != nil:
		for _, req := range frame.BatchActuateRequest.Requests {
			fn, ok := handlers[req.SignalID]
			if !ok {
				c.logger.Warn("actuation for unregistered signal",
					"client", c.name,
					"signal_id", req.SignalID)
				continue
			}
			if c.metrics != nil {
				c.metrics.ActuationsTotal.WithLabelValues(c.name, "inbound", "ok").Inc()
			}
			fn(broker.DecodeValue(req.Value))
		}
		// Every batch request gets exactly one acknowledgement.
		if err := stream.Send(&broker.ProviderFrame{
			BatchActuateResponse: &broker.BatchActuateResponse{},
		}); err != nil {
			c.logger.Warn("failed to acknowledge actuation batch",
				"client", c.name,
				"error", err)
		}

	default:
		c.logger.Debug("unrecognized provider frame", "client", c.name)
	}
}

// validateRegistrations checks every registration against fresh broker
// metadata: the path must resolve, the id must match, and the registered
// type must be physically compatible with the declared type. Failures are
// aggregated into a single InvalidArgument.
func (c *Client) validateRegistrations(ctx context.Context, regs []actuatorReg) error {
	var problems []string
	for _, reg := range regs {
		h, err := c.resolver.Resolve(ctx, reg.handle.Path)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", reg.handle.Path, err))
			continue
		}
		if h.ID != reg.handle.ID {
			problems = append(problems, fmt.Sprintf(
				"%s: stale handle (id %d, broker has %d)", reg.handle.Path, reg.handle.ID, h.ID))
			continue
		}
		if !vss.ArePhysicallyCompatible(h.Type, vss.PhysicalType(reg.handle.Type)) {
			problems = append(problems, fmt.Sprintf(
				"%s: type %s not compatible with declared %s",
				reg.handle.Path, reg.handle.Type, h.Type))
		}
	}
	if len(problems) > 0 {
		return errors.InvalidArgument(
			"actuator registration rejected: " + strings.Join(problems, "; "))
	}
	return nil
}
