package core

import (
	"fmt"

	"oscgate/internal/transport"
)

// Kind names an endpoint variant.
type Kind string

const (
	KindTCPClient       Kind = transport.NameTCPClient
	KindTCPServer       Kind = transport.NameTCPServer
	KindUDPClient       Kind = transport.NameUDPClient
	KindUDPServer       Kind = transport.NameUDPServer
	KindWebSocketServer Kind = transport.NameWebSocketServer
)

// Factory opens endpoints.  Server kinds must return a
// transport.Inbound.
type Factory interface {
	Open(kind Kind, port int) (transport.Endpoint, error)
}

// NetFactory opens real sockets with shared Options.
type NetFactory struct {
	Options transport.Options
}

// Open implements Factory.
func (f NetFactory) Open(kind Kind, port int) (transport.Endpoint, error) {
	switch kind {
	case KindTCPClient:
		ep, err := transport.NewTCPClient(port, f.Options)
		if err != nil {
			return nil, err
		}
		return ep, nil
	case KindTCPServer:
		ep, err := transport.OpenTCPServer(port, f.Options)
		if err != nil {
			return nil, err
		}
		return ep, nil
	case KindUDPClient:
		ep, err := transport.OpenUDPClient(port, f.Options)
		if err != nil {
			return nil, err
		}
		return ep, nil
	case KindUDPServer:
		ep, err := transport.OpenUDPServer(port, f.Options)
		if err != nil {
			return nil, err
		}
		return ep, nil
	case KindWebSocketServer:
		ep, err := transport.OpenWebSocketServer(port, f.Options)
		if err != nil {
			return nil, err
		}
		return ep, nil
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q", kind)
	}
}
