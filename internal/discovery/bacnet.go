package discovery

import (
	"context"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/protocol/bacnet"
)

// scanBACnet broadcasts a Who-Is over the full instance range, then
// batch-fetches each responder's descriptive device-object properties.
// A responder whose property read fails is still recorded with its
// address alone.
func (s *Scanner) scanBACnet(ctx context.Context) ([]DiscoveredDevice, error) {
	if s.bacnetTx == nil {
		return nil, nil
	}

	window := s.window()
	answers, err := s.bacnetTx.WhoIs(ctx, 0, 4194303, window)
	if err != nil {
		return nil, err
	}

	found := make([]DiscoveredDevice, 0, len(answers))
	for _, iam := range answers {
		rec := newRecord(device.ProtocolBACnetIP)
		rec.Host = iam.Address.Host
		rec.Port = iam.Address.Port
		rec.Instance = iam.Address.Instance
		rec.DeviceType = "bacnet_device"

		deviceObj := bacnet.ObjectID{Type: "device", Instance: iam.Address.Instance}
		props, err := s.bacnetTx.ReadPropertyMultiple(ctx, iam.Address, deviceObj, []string{
			bacnet.PropObjectName,
			bacnet.PropVendorName,
			bacnet.PropModelName,
			bacnet.PropDescription,
			bacnet.PropLocation,
		})
		if err != nil {
			s.logger.Warn("bacnet property read failed",
				"instance", iam.Address.Instance, "error", err)
		} else {
			rec.NativeID = asString(props[bacnet.PropObjectName])
			rec.Manufacturer = asString(props[bacnet.PropVendorName])
			rec.Model = asString(props[bacnet.PropModelName])
			meta := make(map[string]string)
			if v := asString(props[bacnet.PropDescription]); v != "" {
				meta["description"] = v
			}
			if v := asString(props[bacnet.PropLocation]); v != "" {
				meta["location"] = v
			}
			if len(meta) > 0 {
				rec.Metadata = meta
			}
		}
		found = append(found, rec)

		s.logger.Debug("bacnet i-am",
			"host", iam.Address.Host,
			"instance", iam.Address.Instance,
			"vendor_id", iam.VendorID)
	}
	return found, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
