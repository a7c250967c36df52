package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol/opcua"
)

// OPCUADialer opens a session against one endpoint URL, or reports
// that nothing answers there. The default returns no session for every
// endpoint; deployments with an OPC UA stack inject a real dialer.
type OPCUADialer func(ctx context.Context, endpoint string, timeout time.Duration) (opcua.Session, error)

func defaultOPCUADialer(ctx context.Context, endpoint string, timeout time.Duration) (opcua.Session, error) {
	return nil, nil
}

// scanOPCUA tries each configured host/port combination as an OPC UA
// endpoint and records the servers that answer, with their browseable
// tags.
func (s *Scanner) scanOPCUA(ctx context.Context) ([]DiscoveredDevice, error) {
	cfg := s.cfg.OPCUA
	if len(cfg.Hosts) == 0 {
		return nil, nil
	}

	ports := cfg.Ports
	if len(ports) == 0 {
		ports = []int{4840}
	}
	timeout := time.Duration(cfg.ConnectTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var found []DiscoveredDevice
	for _, host := range cfg.Hosts {
		for _, port := range ports {
			if err := ctx.Err(); err != nil {
				return found, err
			}
			endpoint := fmt.Sprintf("opc.tcp://%s:%d", host, port)

			session, err := s.opcuaDialer(ctx, endpoint, timeout)
			if err != nil || session == nil {
				continue
			}

			rec, ok := s.describeServer(ctx, session, endpoint)
			session.Close()
			if !ok {
				continue
			}
			rec.Host = host
			rec.Port = port
			found = append(found, rec)
		}
	}
	return found, nil
}

func (s *Scanner) describeServer(ctx context.Context, session opcua.Session, endpoint string) (DiscoveredDevice, bool) {
	if err := session.Open(ctx, endpoint); err != nil {
		return DiscoveredDevice{}, false
	}

	rec := newRecord(device.ProtocolOPCUA)
	rec.Endpoint = endpoint

	if name, uri, err := session.ServerInfo(ctx); err == nil {
		rec.Model = name
		rec.NativeID = uri
	}
	if tags, err := session.BrowseTags(ctx); err == nil {
		rec.Tags = tags
	}

	s.logger.Debug("opcua server found", "endpoint", endpoint, "tags", len(rec.Tags))
	return rec, true
}
