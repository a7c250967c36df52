package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol"
	"github.com/heliolux/helio-core/internal/protocol/bacnet"
	hlpclient "github.com/heliolux/helio-core/internal/protocol/hlp"
	"github.com/heliolux/helio-core/internal/protocol/modbus"
	"github.com/heliolux/helio-core/internal/protocol/mqttdev"
	"github.com/heliolux/helio-core/internal/protocol/opcua"
)

// buildClient dispatches on the device's protocol. Satisfies
// collection.ClientFactory.
func (g *Gateway) buildClient(cfg device.Config) (protocol.Client, error) {
	switch cfg.Protocol {
	case device.ProtocolModbusTCP, device.ProtocolModbusRTU:
		return modbus.NewClient(cfg, modbus.WithLogger(g.logger))

	case device.ProtocolBACnetIP:
		if g.bacnetTx == nil {
			return nil, fmt.Errorf("%w: no bacnet transport configured", protocol.ErrNotAvailable)
		}
		return bacnet.NewClient(cfg, g.bacnetTx, bacnet.WithLogger(g.logger))

	case device.ProtocolMQTT:
		if g.broker == nil {
			return nil, fmt.Errorf("%w: no mqtt broker configured", protocol.ErrNotAvailable)
		}
		return mqttdev.NewClient(cfg, g.broker, mqttdev.WithLogger(g.logger))

	case device.ProtocolOPCUA:
		return opcua.NewClient(cfg, g.opcuaSes,
			opcua.WithLogger(g.logger),
			opcua.WithPublishingInterval(time.Duration(g.cfg.Protocols.OPCUA.PublishingInterval)*time.Millisecond))

	case device.ProtocolHLP:
		return hlpclient.NewClient(cfg, hlpclient.WithLogger(g.logger))

	default:
		return nil, fmt.Errorf("%w: unsupported protocol %q", protocol.ErrConfiguration, cfg.Protocol)
	}
}

// ramper is implemented by clients that carry fade durations natively
// (HLP fixtures).
type ramper interface {
	SetIntensity(ctx context.Context, intensity float64, ramp time.Duration) error
}

// SetIntensity routes a corrective intensity write through the device's
// running collector client, so safety actions and polls serialize on
// one session. Satisfies safety.Controller.
func (g *Gateway) SetIntensity(ctx context.Context, deviceID string, intensity float64, ramp time.Duration) error {
	client, err := g.collection.Client(deviceID)
	if err != nil {
		return err
	}

	if r, ok := client.(ramper); ok {
		return r.SetIntensity(ctx, intensity, ramp)
	}

	cfg, err := g.registry.Get(deviceID)
	if err != nil {
		return err
	}

	// Register-mapped devices take the ramp on a separate point when
	// the hardware exposes one.
	if rampPt, ok := cfg.Point("ramp_time"); ok && rampPt.Writable {
		if err := client.WritePoint(ctx, rampPt, ramp.Seconds()); err != nil {
			g.logger.Warn("ramp time write failed",
				"device_id", deviceID, "error", err)
		}
	}

	var wrote bool
	for _, pt := range cfg.Points {
		if !pt.Writable || !strings.HasPrefix(pt.Name, "intensity") {
			continue
		}
		if err := client.WritePoint(ctx, pt, intensity); err != nil {
			return fmt.Errorf("device %s point %s: %w", deviceID, pt.Name, err)
		}
		wrote = true
	}
	if !wrote {
		return fmt.Errorf("%w: device %s has no writable intensity point", protocol.ErrConfiguration, deviceID)
	}
	return nil
}
