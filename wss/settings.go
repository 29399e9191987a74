package wss

import (
	"net"
)

const DefaultPath = "/"

// ConnectionSettings describes the endpoint a Worker connects to. Port may be
// numeric or a service name such as "https".
type ConnectionSettings struct {
	Host string
	Port string
	Path string
}

func (s ConnectionSettings) withDefaults() ConnectionSettings {
	if s.Path == "" {
		s.Path = DefaultPath
	}
	return s
}

func (s ConnectionSettings) String() string {
	return net.JoinHostPort(s.Host, s.Port) + s.withDefaults().Path
}
