package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/backkem/fix/pkg/config"
	"github.com/backkem/fix/pkg/discovery"
	"github.com/backkem/fix/pkg/sessionid"
)

// Endpoint is one resolved connection target.
type Endpoint struct {
	// Host is the configured host name, or the DNS-SD host name.
	Host string

	// Addr is the dialable "ip:port".
	Addr string
}

// HostLookup resolves host names. *net.Resolver implements it.
type HostLookup interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ServiceLookup resolves DNS-SD instances. *discovery.Resolver implements it.
type ServiceLookup interface {
	LookupEndpoint(ctx context.Context, instance, service string) (discovery.Endpoint, error)
}

// EndpointResolverConfig configures an EndpointResolver.
type EndpointResolverConfig struct {
	// HostLookup resolves SocketConnectHost names.
	// Default: net.DefaultResolver
	HostLookup HostLookup

	// ServiceLookup resolves SocketConnectService. If nil, sessions using
	// SocketConnectService fail to resolve.
	ServiceLookup ServiceLookup
}

// EndpointResolver picks the next connection target for a session. Sessions
// may list fallbacks as SocketConnectHost1/SocketConnectPort1,
// SocketConnectHost2/SocketConnectPort2 and so on; every call advances to
// the next pair, wrapping back to the unsuffixed one.
type EndpointResolver struct {
	config EndpointResolverConfig

	mu      sync.Mutex
	indexes map[sessionid.ID]int
}

// NewEndpointResolver creates a new EndpointResolver.
func NewEndpointResolver(cfg EndpointResolverConfig) *EndpointResolver {
	if cfg.HostLookup == nil {
		cfg.HostLookup = net.DefaultResolver
	}
	return &EndpointResolver{
		config:  cfg,
		indexes: make(map[sessionid.ID]int),
	}
}

// Next resolves the endpoint to dial for id. Failures are *config.Error.
func (r *EndpointResolver) Next(ctx context.Context, id sessionid.ID, d *config.Dictionary) (Endpoint, error) {
	if d.Has(config.SocketConnectService) {
		return r.lookupService(ctx, d)
	}

	host, port, err := r.nextPair(id, d)
	if err != nil {
		return Endpoint{}, err
	}

	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := r.config.HostLookup.LookupIPAddr(ctx, host)
		if err != nil {
			return Endpoint{}, config.NewError(fmt.Sprintf("cannot resolve %s", host), err)
		}
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
		ips = discovery.SortIPsByPreference(ips)
		if len(ips) == 0 {
			return Endpoint{}, config.NewError(fmt.Sprintf("no addresses for %s", host), nil)
		}
		ip = ips[0]
	}

	return Endpoint{
		Host: host,
		Addr: net.JoinHostPort(ip.String(), strconv.Itoa(port)),
	}, nil
}

// nextPair returns the host/port pair at the session's current index and
// advances it.
func (r *EndpointResolver) nextPair(id sessionid.ID, d *config.Dictionary) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.indexes[id]
	hostKey, portKey := suffixed(config.SocketConnectHost, n), suffixed(config.SocketConnectPort, n)
	if !d.Has(hostKey) || !d.Has(portKey) {
		n = 0
		hostKey, portKey = config.SocketConnectHost, config.SocketConnectPort
	}

	host, err := d.String(hostKey)
	if err != nil {
		return "", 0, err
	}
	port, err := d.Int(portKey)
	if err != nil {
		return "", 0, err
	}
	if port <= 0 || port > 65535 {
		return "", 0, config.NewError(fmt.Sprintf("%s=%d", portKey, port), config.ErrInvalidSetting)
	}

	r.indexes[id] = n + 1
	return host, port, nil
}

func (r *EndpointResolver) lookupService(ctx context.Context, d *config.Dictionary) (Endpoint, error) {
	name, err := d.String(config.SocketConnectService)
	if err != nil {
		return Endpoint{}, err
	}
	if r.config.ServiceLookup == nil {
		return Endpoint{}, config.NewError(fmt.Sprintf("%s=%s: service discovery disabled", config.SocketConnectService, name), nil)
	}

	instance, service := discovery.ParseServiceName(name)
	ep, err := r.config.ServiceLookup.LookupEndpoint(ctx, instance, service)
	if err != nil {
		return Endpoint{}, config.NewError(fmt.Sprintf("cannot resolve service %s", name), err)
	}
	return Endpoint{Host: ep.HostName, Addr: ep.Address()}, nil
}

// Forget drops the rotation index of id.
func (r *EndpointResolver) Forget(id sessionid.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indexes, id)
}

func suffixed(key string, n int) string {
	if n == 0 {
		return key
	}
	return key + strconv.Itoa(n)
}
