package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/localrivet/mem0mcp/internal/errortypes"
)

// TransportMode names a transport binding.
type TransportMode string

const (
	ModeStdio TransportMode = "stdio"
	ModeSSE   TransportMode = "sse"
)

// Transport is the transport variant chosen at startup. It is either
// StdioTransport or StreamTransport and never changes afterwards.
type Transport interface {
	Mode() TransportMode
}

// StdioTransport frames MCP messages over standard input and output.
type StdioTransport struct{}

// Mode implements Transport.
func (StdioTransport) Mode() TransportMode { return ModeStdio }

// StreamTransport serves MCP over an HTTP event stream bound to Host:Port.
type StreamTransport struct {
	Host string
	Port int
}

// Mode implements Transport.
func (StreamTransport) Mode() TransportMode { return ModeSSE }

// Address returns the host:port listen address.
func (t StreamTransport) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ResolveTransport resolves the configured transport variant. A missing or unknown
// mode, or an invalid bind address in sse mode, is a ConfigError.
func (c *Config) ResolveTransport() (Transport, error) {
	switch TransportMode(c.Transport.Mode) {
	case ModeStdio:
		return StdioTransport{}, nil
	case ModeSSE:
		if c.Transport.Host == "" {
			return nil, errortypes.ConfigError(errors.New("HOST is empty"), "invalid bind address")
		}
		if c.Transport.Port < 1 || c.Transport.Port > 65535 {
			return nil, errortypes.ConfigError(
				fmt.Errorf("port %d is outside 1-65535", c.Transport.Port), "invalid bind address").
				WithField("port", c.Transport.Port)
		}
		return StreamTransport{Host: c.Transport.Host, Port: c.Transport.Port}, nil
	case "":
		return nil, errortypes.ConfigError(errors.New("TRANSPORT is not set"), "missing transport mode")
	default:
		return nil, errortypes.ConfigError(
			fmt.Errorf("unknown transport %q, want %q or %q", c.Transport.Mode, ModeStdio, ModeSSE),
			"invalid transport mode").
			WithField("transport", c.Transport.Mode)
	}
}
