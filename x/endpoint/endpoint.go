package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint identifies one cluster node's service port.
type Endpoint struct {
	Name string `mapstructure:"name" yaml:"name" json:"name"`
	Host string `mapstructure:"host" yaml:"host" json:"host"`
	Port int    `mapstructure:"port" yaml:"port" json:"port"`
}

// New builds a validated endpoint.
func New(name, host string, port int) (Endpoint, error) {
	ep := Endpoint{Name: name, Host: host, Port: port}
	if err := ep.Validate(); err != nil {
		return Endpoint{}, err
	}
	return ep, nil
}

// Parse reads "host:port". The name defaults to the address.
func Parse(name, addr string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	if name == "" {
		name = addr
	}
	return New(name, host, port)
}

// Validate checks host and port range.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("endpoint %q: host is empty", e.Name)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("endpoint %q: port must be between 1-65535, got %d", e.Name, e.Port)
	}
	return nil
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	if e.Name == "" || e.Name == e.Address() {
		return e.Address()
	}
	return e.Name + "(" + e.Address() + ")"
}

// Registry is the static, ordered list of cluster nodes.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry validates the endpoints and rejects duplicate names or addresses.
func NewRegistry(endpoints ...Endpoint) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("endpoint registry is empty")
	}
	names := make(map[string]struct{}, len(endpoints))
	addrs := make(map[string]struct{}, len(endpoints))
	out := make([]Endpoint, 0, len(endpoints))
	for i, ep := range endpoints {
		if ep.Name == "" {
			ep.Name = fmt.Sprintf("node%d", i+1)
		}
		if err := ep.Validate(); err != nil {
			return nil, err
		}
		if _, dup := names[ep.Name]; dup {
			return nil, fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}
		if _, dup := addrs[ep.Address()]; dup {
			return nil, fmt.Errorf("duplicate endpoint address %q", ep.Address())
		}
		names[ep.Name] = struct{}{}
		addrs[ep.Address()] = struct{}{}
		out = append(out, ep)
	}
	return &Registry{endpoints: out}, nil
}

// All returns a copy of the endpoints in declaration order.
func (r *Registry) All() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Len returns the number of endpoints.
func (r *Registry) Len() int { return len(r.endpoints) }

// At returns the endpoint at a zero-based index.
func (r *Registry) At(i int) (Endpoint, error) {
	if i < 0 || i >= len(r.endpoints) {
		return Endpoint{}, fmt.Errorf("node index %d out of range [0,%d)", i, len(r.endpoints))
	}
	return r.endpoints[i], nil
}

// ByName looks an endpoint up by name.
func (r *Registry) ByName(name string) (Endpoint, bool) {
	for _, ep := range r.endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}
