// Package endpoint models the MAVLink connection points a router bridges.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalid marks endpoints that fail field validation.
var ErrInvalid = errors.New("invalid endpoint")

// ConnectionType identifies the transport role of an endpoint.
type ConnectionType string

const (
	UDPServer ConnectionType = "udp_server"
	UDPClient ConnectionType = "udp_client"
	TCPServer ConnectionType = "tcp_server"
	TCPClient ConnectionType = "tcp_client"
	Serial    ConnectionType = "serial"
)

// ConnectionTypes lists every known connection type.
func ConnectionTypes() []ConnectionType {
	return []ConnectionType{UDPServer, UDPClient, TCPServer, TCPClient, Serial}
}

// Valid reports whether t is a known connection type.
func (t ConnectionType) Valid() bool {
	switch t {
	case UDPServer, UDPClient, TCPServer, TCPClient, Serial:
		return true
	default:
		return false
	}
}

// Network reports whether t addresses a host and port rather than a device.
func (t ConnectionType) Network() bool {
	return t.Valid() && t != Serial
}

// Endpoint describes one connection point. Values are treated as immutable once
// handed to a router backend.
type Endpoint struct {
	Name           string         `json:"name"`
	Owner          string         `json:"owner,omitempty"`
	ConnectionType ConnectionType `json:"connection_type"`
	// Place is an IP address or hostname for network types and a device path for serial.
	Place string `json:"place"`
	// Argument is the port for network types and the baud rate for serial.
	Argument   uint32 `json:"argument"`
	Persistent bool   `json:"persistent"`
	Protected  bool   `json:"protected"`
	Enabled    bool   `json:"enabled"`
}

// String renders the endpoint as "<type>:<place>:<argument>".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%s:%d", e.ConnectionType, e.Place, e.Argument)
}

// Fragment returns the textual form with the leading type segment removed.
func (e Endpoint) Fragment() string {
	return StripScheme(e.String())
}

// StripScheme drops everything up to and including the first colon.
func StripScheme(s string) string {
	return s[strings.Index(s, ":")+1:]
}

// Validate checks the endpoint fields for consistency.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if !e.ConnectionType.Valid() {
		return fmt.Errorf("%w: connection type %q not supported", ErrInvalid, e.ConnectionType)
	}
	place := e.Place
	if place == "" {
		return fmt.Errorf("%w: place required", ErrInvalid)
	}
	// Places are emitted verbatim as single command-line arguments.
	if strings.ContainsFunc(place, unicode.IsSpace) {
		return fmt.Errorf("%w: place %q must not contain whitespace", ErrInvalid, place)
	}
	if e.ConnectionType == Serial {
		if !filepath.IsAbs(place) {
			return fmt.Errorf("%w: serial place %q must be an absolute device path", ErrInvalid, place)
		}
		if e.Argument == 0 {
			return fmt.Errorf("%w: serial baudrate must be > 0", ErrInvalid)
		}
		return nil
	}
	if net.ParseIP(place) == nil && !validHostname(place) {
		return fmt.Errorf("%w: place %q is not an ip address or hostname", ErrInvalid, place)
	}
	if e.Argument == 0 || e.Argument > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, e.Argument)
	}
	return nil
}

// Parse reads the "<type>:<place>:<argument>" form produced by String. The
// returned endpoint is enabled and carries name as its identifier.
func Parse(name, s string) (Endpoint, error) {
	first := strings.Index(s, ":")
	last := strings.LastIndex(s, ":")
	if first < 0 || first == last {
		return Endpoint{}, fmt.Errorf("%w: %q is not <type>:<place>:<argument>", ErrInvalid, s)
	}
	arg, err := strconv.ParseUint(s[last+1:], 10, 32)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: argument %q: %v", ErrInvalid, s[last+1:], err)
	}
	e := Endpoint{
		Name:           name,
		ConnectionType: ConnectionType(strings.ToLower(s[:first])),
		Place:          s[first+1 : last],
		Argument:       uint32(arg),
		Enabled:        true,
	}
	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}
	return e, nil
}

func validHostname(host string) bool {
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for i, r := range label {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '-' && i != 0 && i != len(label)-1:
			default:
				return false
			}
		}
	}
	return true
}
