// Package discovery locates FIX counterparties advertised over DNS-SD
// (multicast DNS). A session names the instance in SocketConnectService
// instead of a fixed SocketConnectHost/SocketConnectPort pair.
package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the DNS-SD service type of FIX acceptors.
	DefaultService = "_fix._tcp"

	// DefaultDomain is the mDNS browsing domain.
	DefaultDomain = "local."

	// DefaultLookupTimeout is the default timeout for lookup operations.
	DefaultLookupTimeout = 5 * time.Second
)

// Endpoint is a resolved counterparty address.
type Endpoint struct {
	Instance string
	HostName string
	IP       net.IP
	Port     int

	// IPs holds every resolved address, most preferred first.
	IPs []net.IP
}

// Address returns the dialable "ip:port" form.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
}

// ParseServiceName splits a SocketConnectService value of the form
// "<instance>" or "<instance>.<_service._proto>" into its parts.
func ParseServiceName(name string) (instance, service string) {
	if i := strings.Index(name, "._"); i > 0 {
		return name[:i], strings.TrimSuffix(name[i+1:], ".")
	}
	return name, DefaultService
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
//
// Lookup delivers matching entries on entries and returns once the context is
// done or the instance has been delivered. It never closes entries.
type MDNSResolver interface {
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// zeroconf owns and closes its own channel.
	found := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Lookup(ctx, instance, service, domain, found); err != nil {
		return err
	}

	for {
		select {
		case entry, ok := <-found:
			if !ok {
				return nil
			}
			select {
			case entries <- entry:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// Domain is the browsing domain. If empty, DefaultDomain is used.
	Domain string

	// LookupTimeout is the timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration
}

// Resolver resolves FIX service instances via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.Domain == "" {
		config.Domain = DefaultDomain
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	return &Resolver{
		config:   config,
		resolver: resolver,
	}, nil
}

// LookupEndpoint resolves one service instance to its preferred address.
// An empty service means DefaultService.
func (r *Resolver) LookupEndpoint(ctx context.Context, instance, service string) (Endpoint, error) {
	if instance == "" {
		return Endpoint{}, ErrInvalidInstanceName
	}
	if service == "" {
		service = DefaultService
	}

	// Apply lookup timeout if context doesn't have a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.LookupTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry, 1)
	done := make(chan error, 1)
	go func() {
		done <- r.resolver.Lookup(ctx, instance, service, r.config.Domain, entries)
	}()

	for {
		select {
		case entry := <-entries:
			return entryToEndpoint(entry)
		case err := <-done:
			// The resolver may have delivered right before returning.
			select {
			case entry := <-entries:
				return entryToEndpoint(entry)
			default:
			}
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				return Endpoint{}, err
			}
			if ctx.Err() == nil {
				return Endpoint{}, ErrServiceNotFound
			}
			done = nil
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return Endpoint{}, ErrTimeout
			}
			return Endpoint{}, ctx.Err()
		}
	}
}

// entryToEndpoint converts a zeroconf.ServiceEntry to an Endpoint.
func entryToEndpoint(entry *zeroconf.ServiceEntry) (Endpoint, error) {
	if entry == nil {
		return Endpoint{}, ErrServiceNotFound
	}

	var all []net.IP
	all = append(all, entry.AddrIPv4...)
	all = append(all, entry.AddrIPv6...)
	if len(all) == 0 {
		return Endpoint{}, ErrNoAddresses
	}
	sorted := SortIPsByPreference(all)

	return Endpoint{
		Instance: entry.Instance,
		HostName: entry.HostName,
		IP:       sorted[0],
		Port:     entry.Port,
		IPs:      sorted,
	}, nil
}
