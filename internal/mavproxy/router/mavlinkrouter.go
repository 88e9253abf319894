package router

import (
	"fmt"
	"slices"

	"github.com/volantvm/mavproxy/internal/mavproxy/endpoint"
)

var mavlinkRouterTypes = []endpoint.ConnectionType{endpoint.UDPServer, endpoint.UDPClient, endpoint.Serial}

// MAVLinkRouter drives mavlink-routerd.
type MAVLinkRouter struct {
	*base
}

// NewMAVLinkRouter returns a backend for mavlink-routerd.
func NewMAVLinkRouter(opts Options) *MAVLinkRouter {
	return &MAVLinkRouter{base: newBase("MAVLinkRouter", "mavlink-routerd", ParseVersion, mavlinkRouterTypes, opts)}
}

// AssembleCommand renders
//
//	<binary> <master> --log <logdir> [--endpoint <sub>]...
//
// with endpoints in the order they were added. Only UDP and serial masters are
// accepted; subordinates were validated when added.
func (r *MAVLinkRouter) AssembleCommand(master endpoint.Endpoint) (Command, error) {
	if !slices.Contains(mavlinkRouterTypes, master.ConnectionType) {
		return Command{}, fmt.Errorf("%w: %s master %q", ErrUnsupportedEndpoint, r.Name(), master.ConnectionType)
	}
	binary, err := r.resolvedBinary()
	if err != nil {
		return Command{}, err
	}

	args := []string{master.Fragment(), "--log", r.LogDir()}
	for _, e := range r.Endpoints() {
		args = append(args, "--endpoint", e.Fragment())
	}
	return Command{Path: binary, Args: args}, nil
}

var _ Backend = (*MAVLinkRouter)(nil)
