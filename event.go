package comport

import "encoding/json"

// EventType discriminates hotplug events.
type EventType string

const (
	// Plug indicates a serial port arrived (or was already present when
	// the session was created).
	Plug EventType = "Plug"
	// Unplug indicates a serial port was removed.
	Unplug EventType = "Unplug"
)

// Event is a hotplug notification delivered on a session's stream.
// Plug events always carry fully resolved metadata; Unplug events carry
// only the port name.
type Event struct {
	Type EventType `json:"type"`
	Port string    `json:"port"`
	Meta *PortMeta `json:"meta,omitempty"`
}

// PlugEvent builds a Plug event for a port with resolved metadata.
func PlugEvent(port string, meta PortMeta) Event {
	meta.Name = port
	return Event{Type: Plug, Port: port, Meta: &meta}
}

// UnplugEvent builds an Unplug event for a port.
func UnplugEvent(port string) Event {
	return Event{Type: Unplug, Port: port}
}

// ParseEvent decodes the wire form of an event,
// {"type":"Plug"|"Unplug","port":string,"meta":{...}}, as exchanged with
// a binding layer. Malformed payloads are filtered, not raised: ok is
// false when the payload is not valid JSON, the type is not one of the
// two literals, or the port is not a string.
func ParseEvent(data []byte) (Event, bool) {
	var raw struct {
		Type string          `json:"type"`
		Port json.RawMessage `json:"port"`
		Meta *PortMeta       `json:"meta"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, false
	}
	if raw.Type != string(Plug) && raw.Type != string(Unplug) {
		return Event{}, false
	}
	var port string
	if err := json.Unmarshal(raw.Port, &port); err != nil {
		return Event{}, false
	}
	return Event{Type: EventType(raw.Type), Port: port, Meta: raw.Meta}, true
}
