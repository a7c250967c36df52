package safety

import (
	"context"
	"fmt"

	"github.com/heliolux/helio-core/internal/device"
)

// Point names the sweep reads from the cache.
const (
	pointTemperature = "temperature"
	pointPower       = "power"
	pointIntensity   = "intensity"
)

// Sweep runs one full safety pass: per-device checks, circuit loads,
// then configured limits. Returns the events emitted this sweep (after
// debounce), mostly for the control surface and tests.
func (m *Monitor) Sweep(ctx context.Context) []Event {
	var events []Event
	events = append(events, m.checkDevices(ctx)...)
	events = append(events, m.checkCircuits(ctx)...)
	events = append(events, m.checkLimits(ctx)...)
	return events
}

// checkDevices evaluates temperature thresholds and data health for
// every zoned device with cached readings.
func (m *Monitor) checkDevices(ctx context.Context) []Event {
	var events []Event

	for _, zone := range m.cfg.Zones {
		for _, id := range zone.Devices {
			pts := m.cache.Device(id)
			if len(pts) == 0 {
				continue // not collecting yet
			}

			if !allBadOrStale(pts) {
				m.clearDebounce("failure/" + id)
			} else {
				ev := newEvent(EventDeviceFailure, SeverityWarning, ActionAlert)
				ev.DeviceID = id
				ev.ZoneID = zone.ID
				ev.Message = fmt.Sprintf("device %s has no fresh readings", id)
				if m.emit(ctx, "failure/"+id, ev) {
					events = append(events, ev)
				}
			}

			temp, ok := pointValue(pts, pointTemperature)
			if !ok {
				continue
			}
			t := m.cfg.Temperature
			sev, action, limit, hit := tier(temp, t.Warning, t.Critical, t.Emergency)
			if !hit {
				m.clearDebounce("temperature/" + id)
				continue
			}

			ev := newEvent(EventHighTemperature, sev, action)
			ev.DeviceID = id
			ev.ZoneID = zone.ID
			ev.Value = temp
			ev.Limit = limit
			ev.Unit = "°C"
			ev.Message = fmt.Sprintf("device %s at %.1f°C exceeds %.1f°C %s threshold",
				id, temp, limit, sev)
			if !m.emit(ctx, "temperature/"+id, ev) {
				continue
			}
			events = append(events, ev)

			switch action {
			case ActionReduce:
				m.reduceDevice(ctx, id, reduceTempFactor)
			case ActionShutdown:
				m.shutdownDevice(ctx, id)
			}
		}
	}
	return events
}

// checkCircuits aggregates each circuit's zone power draw against its
// breaker capacity and trips the graduated response.
func (m *Monitor) checkCircuits(ctx context.Context) []Event {
	var events []Event
	breakers := make([]CircuitBreaker, 0, len(m.cfg.Circuits))

	for _, cc := range m.cfg.Circuits {
		maxW := circuitMaxWatts(cc)
		var load float64
		for _, zoneID := range cc.Zones {
			load += m.zonePower(zoneID)
		}

		pct := 0.0
		if maxW > 0 {
			pct = load / maxW
		}
		th := m.cfg.Circuit
		sev, action, limitPct, hit := tier(pct, th.WarningPct, th.CriticalPct, th.EmergencyPct)

		status := CircuitNormal
		switch {
		case pct >= th.EmergencyPct:
			status = CircuitTripped
		case pct >= th.WarningPct:
			status = CircuitWarning
		}

		breakers = append(breakers, CircuitBreaker{
			ID:          cc.ID,
			MaxWatts:    maxW,
			Zones:       append([]string(nil), cc.Zones...),
			CurrentLoad: load,
			Status:      status,
		})
		if m.loads != nil {
			m.loads.WriteCircuitLoad(cc.ID, load, maxW, status)
		}
		if !hit {
			m.clearDebounce("circuit/" + cc.ID)
			continue
		}

		ev := newEvent(EventCircuitOverload, sev, action)
		ev.CircuitID = cc.ID
		ev.Value = load
		ev.Limit = maxW
		ev.Unit = "W"
		ev.Message = fmt.Sprintf("circuit %s at %.0fW (%.0f%% of %.0fW) exceeds %.0f%% threshold",
			cc.ID, load, pct*100, maxW, limitPct*100)
		if !m.emit(ctx, "circuit/"+cc.ID, ev) {
			continue
		}
		events = append(events, ev)

		switch action {
		case ActionReduce:
			for _, zoneID := range cc.Zones {
				m.reduceZone(ctx, zoneID, reduceCircuitFactor)
			}
		case ActionShutdown:
			for _, zoneID := range cc.Zones {
				m.shutdownZone(ctx, zoneID)
			}
		}
	}

	m.mu.Lock()
	m.breakers = breakers
	m.mu.Unlock()

	return events
}

// checkLimits evaluates the externally configured per-zone and
// per-device limits. Severity derives from the limit's priority, the
// action from its configuration.
func (m *Monitor) checkLimits(ctx context.Context) []Event {
	var events []Event

	for _, lim := range m.cfg.Limits {
		var observed float64
		var ok bool
		if lim.DeviceID != "" {
			observed, ok = pointValue(m.cache.Device(lim.DeviceID), lim.LimitType)
		} else {
			observed, ok = m.zoneObservation(lim.ZoneID, lim.LimitType)
		}
		key := "limit/" + lim.ZoneID + "/" + lim.DeviceID + "/" + lim.LimitType
		if !ok || observed <= lim.MaxValue {
			m.clearDebounce(key)
			continue
		}

		sev := prioritySeverity(lim.Priority)
		action := Action(lim.Action)

		ev := newEvent(EventPowerExceeded, sev, action)
		ev.ZoneID = lim.ZoneID
		ev.DeviceID = lim.DeviceID
		ev.Value = observed
		ev.Limit = lim.MaxValue
		ev.Unit = lim.Unit
		ev.Message = fmt.Sprintf("%s limit exceeded: %.1f > %.1f %s",
			lim.LimitType, observed, lim.MaxValue, lim.Unit)
		if !m.emit(ctx, key, ev) {
			continue
		}
		events = append(events, ev)

		targets := []string{lim.DeviceID}
		if lim.DeviceID == "" {
			targets = m.zoneDevices[lim.ZoneID]
		}
		switch action {
		case ActionReduce:
			for _, id := range targets {
				m.reduceDevice(ctx, id, reduceCircuitFactor)
			}
		case ActionShutdown:
			for _, id := range targets {
				m.shutdownDevice(ctx, id)
			}
		}
	}
	return events
}

// tier classifies a value against ascending thresholds. Crossing a
// threshold exactly counts as crossed.
func tier(v, warn, crit, emerg float64) (Severity, Action, float64, bool) {
	switch {
	case v >= emerg:
		return SeverityEmergency, ActionShutdown, emerg, true
	case v >= crit:
		return SeverityCritical, ActionReduce, crit, true
	case v >= warn:
		return SeverityWarning, ActionAlert, warn, true
	}
	return "", "", 0, false
}

func prioritySeverity(priority int) Severity {
	switch priority {
	case 1:
		return SeverityEmergency
	case 2:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// reduceDevice cuts one device to the given fraction of its current
// intensity. Repeated reductions compound: each reads the intensity the
// previous one produced.
func (m *Monitor) reduceDevice(ctx context.Context, deviceID string, factor float64) {
	cur := m.currentIntensity(deviceID)
	target := cur * factor
	if err := m.setIntensity(ctx, deviceID, target, reduceRamp); err != nil {
		m.logger.Error("intensity reduction failed",
			"device_id", deviceID, "target", target, "error", err)
		return
	}
	m.logger.Info("intensity reduced",
		"device_id", deviceID, "from", cur, "to", target, "ramp", reduceRamp.String())
}

func (m *Monitor) reduceZone(ctx context.Context, zoneID string, factor float64) {
	for _, id := range m.zoneDevices[zoneID] {
		m.reduceDevice(ctx, id, factor)
	}
}

func (m *Monitor) shutdownDevice(ctx context.Context, deviceID string) {
	if err := m.setIntensity(ctx, deviceID, 0, shutdownRamp); err != nil {
		m.logger.Error("safety shutdown write failed",
			"device_id", deviceID, "error", err)
		return
	}
	m.logger.Warn("device shut down by safety monitor", "device_id", deviceID)
}

func (m *Monitor) shutdownZone(ctx context.Context, zoneID string) {
	for _, id := range m.zoneDevices[zoneID] {
		m.shutdownDevice(ctx, id)
	}
}

// currentIntensity averages a device's cached intensity channels.
// Unknown intensity defaults to full output so a reduction always moves
// downward.
func (m *Monitor) currentIntensity(deviceID string) float64 {
	pts := m.cache.Device(deviceID)
	var sum float64
	var n int
	for name, dp := range pts {
		if !hasIntensityName(name) || dp.Quality == device.QualityBad {
			continue
		}
		if v, ok := asFloat(dp.Value); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 100
	}
	return sum / float64(n)
}

// zonePower sums the power draw of a zone's devices from the cache.
func (m *Monitor) zonePower(zoneID string) float64 {
	var sum float64
	for _, id := range m.zoneDevices[zoneID] {
		if v, ok := pointValue(m.cache.Device(id), pointPower); ok {
			sum += v
		}
	}
	return sum
}

// zoneObservation aggregates a zone reading for a limit check: power
// sums across devices, everything else takes the worst (highest) value.
func (m *Monitor) zoneObservation(zoneID string, limitType string) (float64, bool) {
	if limitType == pointPower {
		ids := m.zoneDevices[zoneID]
		if len(ids) == 0 {
			return 0, false
		}
		return m.zonePower(zoneID), true
	}

	var worst float64
	var found bool
	for _, id := range m.zoneDevices[zoneID] {
		v, ok := pointValue(m.cache.Device(id), limitType)
		if !ok {
			continue
		}
		if !found || v > worst {
			worst = v
			found = true
		}
	}
	return worst, found
}

// pointValue extracts a numeric reading, accepting good and stale
// quality. Stale still reflects the last trustworthy value; acting on
// it is safer than acting on nothing.
func pointValue(pts map[string]device.DataPoint, name string) (float64, bool) {
	dp, ok := pts[name]
	if !ok || dp.Quality == device.QualityBad {
		return 0, false
	}
	return asFloat(dp.Value)
}

func allBadOrStale(pts map[string]device.DataPoint) bool {
	for _, dp := range pts {
		if dp.Quality == device.QualityGood {
			return false
		}
	}
	return true
}

func hasIntensityName(name string) bool {
	return len(name) >= len(pointIntensity) && name[:len(pointIntensity)] == pointIntensity
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
