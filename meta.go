package comport

import (
	"regexp"
	"strconv"
	"strings"
)

// PortMeta is an immutable snapshot of a serial port's identifying
// metadata at the moment of observation.
type PortMeta struct {
	// Name is the unique system identifier for the port, e.g. "COM4"
	Name string `json:"name,omitempty"`
	// VendorID is the USB vendor id as a lowercase hex string, e.g. "2fe3"
	VendorID string `json:"vendor"`
	// ProductID is the USB product id as a lowercase hex string
	ProductID string `json:"product"`
	// SerialNumber is the device serial number, when reported
	SerialNumber string `json:"serial,omitempty"`
	// Description is a human-readable device description, when available
	Description string `json:"description,omitempty"`
	// Location is the physical location path, when available
	Location string `json:"location,omitempty"`
}

// DeviceID identifies a device model by its vendor/product id pair.
// Both fields are normalized to lowercase hex.
type DeviceID struct {
	Vendor  string
	Product string
}

// ParseID parses a vendor/product hex-string pair such as ("2FE3", "0100").
// Comparison is case-insensitive, so ids are normalized to lowercase.
func ParseID(vendor, product string) (DeviceID, error) {
	vid, err := normalizeHexID(vendor)
	if err != nil {
		return DeviceID{}, ErrInvalidVendorID
	}
	pid, err := normalizeHexID(product)
	if err != nil {
		return DeviceID{}, ErrInvalidProductID
	}
	return DeviceID{Vendor: vid, Product: pid}, nil
}

// ParseIDs parses a list of vendor/product hex-string pairs as exchanged
// with a binding layer.
func ParseIDs(pairs [][2]string) ([]DeviceID, error) {
	ids := make([]DeviceID, 0, len(pairs))
	for _, pair := range pairs {
		id, err := ParseID(pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Matches reports whether the port metadata carries this vendor/product
// id pair. Matching is case-insensitive.
func (id DeviceID) Matches(meta PortMeta) bool {
	return id.Vendor == strings.ToLower(meta.VendorID) &&
		id.Product == strings.ToLower(meta.ProductID)
}

func normalizeHexID(s string) (string, error) {
	if len(s) == 0 || len(s) > 4 {
		return "", strconv.ErrSyntax
	}
	if _, err := strconv.ParseUint(s, 16, 16); err != nil {
		return "", err
	}
	return strings.ToLower(s), nil
}

// Device-instance-id forms seen in the wild. The stock Windows USB-CDC
// driver reports "USB\VID_2FE3&PID_0100\5&2c3f...", the FTDI driver
// reports "FTDIBUS\VID_0403+PID_6001+FT123456A\0000".
var (
	usbInstanceRe  = regexp.MustCompile(`(?i)USB\\VID_([0-9A-F]{4})&PID_([0-9A-F]{4})(?:\\([^\\]+))?`)
	ftdiInstanceRe = regexp.MustCompile(`(?i)FTDIBUS\\VID_([0-9A-F]{4})\+PID_([0-9A-F]{4})(?:\+([^\\+]+))?`)
)

// parseInstanceID extracts vendor id, product id and serial number from a
// device-instance path stored in the registry. Returns false for paths
// that do not identify a USB serial device.
func parseInstanceID(instance string) (PortMeta, bool) {
	// Registry values are often prefixed with the NT namespace and use
	// '#' in place of '\', e.g. `\??\USB#VID_2FE3&PID_0100#serial#{guid}`.
	instance = strings.TrimPrefix(instance, `\??\`)
	instance = strings.ReplaceAll(instance, "#", `\`)

	for _, re := range []*regexp.Regexp{usbInstanceRe, ftdiInstanceRe} {
		m := re.FindStringSubmatch(instance)
		if m == nil {
			continue
		}
		meta := PortMeta{
			VendorID:  strings.ToLower(m[1]),
			ProductID: strings.ToLower(m[2]),
		}
		if len(m) > 3 && isSerialNumber(m[3]) {
			meta.SerialNumber = m[3]
		}
		return meta, true
	}
	return PortMeta{}, false
}

// isSerialNumber filters out composite-interface suffixes like "5&2c3f&0&2"
// which are bus locations, not serial numbers.
func isSerialNumber(s string) bool {
	return s != "" && !strings.Contains(s, "&")
}
