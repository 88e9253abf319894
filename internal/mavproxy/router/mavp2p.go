package router

import (
	"fmt"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

var mavp2pSchemes = map[endpoint.ConnectionType]string{
	endpoint.UDPServer: "udps",
	endpoint.UDPClient: "udpc",
	endpoint.TCPServer: "tcps",
	endpoint.TCPClient: "tcpc",
	endpoint.Serial:    "serial",
}

// MAVP2P drives mavp2p, which accepts every connection type but keeps no
// telemetry log of its own.
type MAVP2P struct {
	*base
}

// NewMAVP2P returns a backend for mavp2p.
func NewMAVP2P(opts Options) *MAVP2P {
	return &MAVP2P{base: newBase("MAVP2P", "mavp2p", ParseSemver, endpoint.ConnectionTypes(), opts)}
}

// AssembleCommand renders "<binary> <master> [<sub>]..." using mavp2p's
// scheme prefixes.
func (r *MAVP2P) AssembleCommand(master endpoint.Endpoint) (Command, error) {
	head, ok := mavp2pSchemes[master.ConnectionType]
	if !ok {
		return Command{}, fmt.Errorf("%w: %s master %q", ErrUnsupportedEndpoint, r.Name(), master.ConnectionType)
	}
	binary, err := r.resolvedBinary()
	if err != nil {
		return Command{}, err
	}

	args := []string{head + ":" + master.Fragment()}
	for _, e := range r.Endpoints() {
		args = append(args, mavp2pSchemes[e.ConnectionType]+":"+e.Fragment())
	}
	return Command{Path: binary, Args: args}, nil
}

var _ Backend = (*MAVP2P)(nil)
