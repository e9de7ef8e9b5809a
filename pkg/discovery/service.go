package discovery

import (
	"context"
	"fmt"
	"net"
)

const (
	RelayServiceType = "_peerlink-relay._tcp"
	DefaultDomain    = "local"

	// RelayPathKey is the TXT record key carrying the WebSocket path.
	RelayPathKey = "path"
)

type ServiceInfo struct {
	Name   string // instance name, e.g. the relay's hostname
	Type   string // service type, e.g. "_peerlink-relay._tcp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
	Text   map[string]string
}

// RelayURL builds the WebSocket url a client dials for this relay.
func (s ServiceInfo) RelayURL() string {
	path := s.Text[RelayPathKey]
	if path == "" {
		path = "/ws"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(s.Addr.String(), fmt.Sprint(s.Port)), path)
}

// DiscoveryResult carries either the current set of services or an error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}
