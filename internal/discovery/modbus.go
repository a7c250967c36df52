package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	gomodbus "github.com/goburrow/modbus"
	"github.com/panjf2000/ants/v2"

	"github.com/heliolux/helio-core/internal/device"
	"github.com/heliolux/helio-core/internal/infrastructure/config"
)

// ModbusProbe tests whether a host answers like a Modbus TCP device.
// The default dials the port; tests substitute a canned probe.
type ModbusProbe func(ctx context.Context, host string, port int, timeout time.Duration) bool

func dialProbe(ctx context.Context, host string, port int, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// ModbusRegisterReader reads one holding register from a candidate, for
// signature classification. The default opens a short-lived goburrow
// TCP client; tests substitute a canned register map.
type ModbusRegisterReader func(host string, port int, register uint16, timeout time.Duration) (uint16, error)

func readHoldingRegister(host string, port int, register uint16, timeout time.Duration) (uint16, error) {
	handler := gomodbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", host, port))
	handler.Timeout = timeout
	handler.SlaveId = 1
	if err := handler.Connect(); err != nil {
		return 0, err
	}
	defer handler.Close()

	data, err := gomodbus.NewClient(handler).ReadHoldingRegisters(register, 1)
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("discovery: short register read (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}

// modbusSignature ties a well-known identification register value to a
// device model this gateway ships point mappings for.
type modbusSignature struct {
	register     uint16
	value        uint16
	deviceType   string
	manufacturer string
	model        string
}

// modbusSignatures is probed in order; the first register that reads
// back the expected value classifies the device.
var modbusSignatures = []modbusSignature{
	{register: 0, value: 0x484C, deviceType: "led_driver", manufacturer: "HelioLux", model: "HLX-600"},
	{register: 0, value: 0x4843, deviceType: "climate_controller", manufacturer: "HelioLux", model: "HCC-200"},
	{register: 100, value: 0x1A51, deviceType: "power_meter", manufacturer: "Finder", model: "7M.24"},
}

// classifyModbus probes the signature table against a reachable host.
// Register read failures just try the next signature; a host that
// matches nothing stays an unknown Modbus device.
func (s *Scanner) classifyModbus(rec *DiscoveredDevice, timeout time.Duration) {
	rec.DeviceType = UnknownModbusDevice
	for _, sig := range modbusSignatures {
		v, err := s.modbusIdent(rec.Host, rec.Port, sig.register, timeout)
		if err != nil {
			continue
		}
		if v == sig.value {
			rec.DeviceType = sig.deviceType
			rec.Manufacturer = sig.manufacturer
			rec.Model = sig.model
			return
		}
	}
}

// scanModbus sweeps the configured subnet for hosts answering on the
// Modbus ports, fanning probes out over the shared worker pool.
func (s *Scanner) scanModbus(ctx context.Context, cfg config.ModbusDiscoveryConfig) ([]DiscoveredDevice, error) {
	if cfg.Subnet == "" {
		return nil, nil
	}
	hosts, err := expandSubnet(cfg.Subnet)
	if err != nil {
		return nil, fmt.Errorf("discovery: modbus subnet: %w", err)
	}

	ports := cfg.Ports
	if len(ports) == 0 {
		ports = []int{502}
	}
	timeout := time.Duration(cfg.ConnectTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	pool, err := ants.NewPool(s.poolSize)
	if err != nil {
		return nil, fmt.Errorf("discovery: worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu    sync.Mutex
		found []DiscoveredDevice
		wg    sync.WaitGroup
	)

	for _, host := range hosts {
		for _, port := range ports {
			if ctx.Err() != nil {
				break
			}
			host, port := host, port
			wg.Add(1)
			task := func() {
				defer wg.Done()
				if !s.modbusProbe(ctx, host, port, timeout) {
					return
				}
				rec := newRecord(device.ProtocolModbusTCP)
				rec.Host = host
				rec.Port = port
				s.classifyModbus(&rec, timeout)

				mu.Lock()
				found = append(found, rec)
				mu.Unlock()

				s.logger.Debug("modbus candidate",
					"host", host, "port", port, "device_type", rec.DeviceType)
			}
			if err := pool.Submit(task); err != nil {
				wg.Done()
				s.logger.Warn("modbus probe not scheduled", "host", host, "error", err)
			}
		}
	}

	wg.Wait()
	return found, ctx.Err()
}

// expandSubnet lists the usable host addresses of a CIDR block,
// excluding the network and broadcast addresses. Blocks wider than /16
// are rejected to keep sweeps bounded.
func expandSubnet(cidr string) ([]string, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	ones, bits := ipnet.Mask.Size()
	if bits-ones > 16 {
		return nil, fmt.Errorf("subnet %s too wide for a sweep", cidr)
	}

	var hosts []string
	for ip := ipnet.IP.Mask(ipnet.Mask); ipnet.Contains(ip); incIP(ip) {
		hosts = append(hosts, ip.String())
	}
	if len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
