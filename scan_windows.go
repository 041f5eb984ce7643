//go:build windows

package comport

import (
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// Registry locations used for enumeration. SERIALCOMM lists the ports
// currently attached; the COM Name Arbiter maps every COM name ever
// assigned to the device-instance path it was assigned to.
const (
	serialCommKey = `HARDWARE\DEVICEMAP\SERIALCOMM`
	comArbiterKey = `SYSTEM\CurrentControlSet\Control\COM Name Arbiter\Devices`
	usbEnumKey    = `SYSTEM\CurrentControlSet\Enum\USB`
)

// scanPorts enumerates currently attached serial ports. Two registry
// reads: SERIALCOMM for presence, the COM Name Arbiter for identity.
// Only attached ports whose instance path yields a vendor/product id are
// returned.
func scanPorts() (map[string]PortMeta, error) {
	connected, err := readSerialComm()
	if err != nil {
		return nil, err
	}
	assigned, err := readComArbiter()
	if err != nil {
		return nil, err
	}

	ports := make(map[string]PortMeta, len(connected))
	for _, name := range connected {
		meta, ok := assigned[name]
		if !ok {
			continue
		}
		meta.Name = name
		enrichFromEnum(&meta)
		ports[name] = meta
	}
	return ports, nil
}

// readSerialComm returns the port names of currently attached serial
// devices. Value names are device object paths; the data is the COM name.
func readSerialComm() ([]string, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, serialCommKey, registry.QUERY_VALUE)
	if err != nil {
		return nil, &DiscoveryError{Op: serialCommKey, Err: err}
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, &DiscoveryError{Op: serialCommKey, Err: err}
	}

	ports := make([]string, 0, len(names))
	for _, name := range names {
		port, _, err := key.GetStringValue(name)
		if err != nil || port == "" {
			continue
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// readComArbiter returns port metadata by COM name. Value names are COM
// names; the data is the device-instance path carrying VID/PID/serial.
func readComArbiter() (map[string]PortMeta, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, comArbiterKey, registry.QUERY_VALUE)
	if err != nil {
		return nil, &DiscoveryError{Op: comArbiterKey, Err: err}
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, &DiscoveryError{Op: comArbiterKey, Err: err}
	}

	assigned := make(map[string]PortMeta, len(names))
	for _, port := range names {
		instance, _, err := key.GetStringValue(port)
		if err != nil {
			continue
		}
		meta, ok := parseInstanceID(instance)
		if !ok {
			// Not a USB serial device (e.g. a legacy UART); skip.
			continue
		}
		assigned[port] = meta
	}
	return assigned, nil
}

// enrichFromEnum fills optional description and location fields from the
// device's Enum key. Best effort: a port with a known serial number may
// still lack these values, and enumeration never fails because of them.
func enrichFromEnum(meta *PortMeta) {
	if meta.SerialNumber == "" {
		return
	}
	path := fmt.Sprintf(`%s\VID_%s&PID_%s\%s`,
		usbEnumKey,
		strings.ToUpper(meta.VendorID),
		strings.ToUpper(meta.ProductID),
		meta.SerialNumber)
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
	if err != nil {
		return
	}
	defer key.Close()

	if v, _, err := key.GetStringValue("FriendlyName"); err == nil {
		meta.Description = v
	}
	if v, _, err := key.GetStringValue("LocationInformation"); err == nil {
		meta.Location = v
	}
}
