// Package mdns finds IIO daemons announced on the local network.
package mdns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// Service is the DNS-SD service type iiod announces.
const Service = "_iio._tcp"

// Host represents a discovered IIOD-capable device.
type Host struct {
	Instance  string // Advertised name: "iiod on analog"
	Hostname  string // DNS hostname: "analog.local."
	Addresses []net.IP
	Port      int
	TXT       []string
}

// Addr returns host:port for dialing, preferring an IPv4 address.
func (h Host) Addr() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(h.Addresses) > 0 {
		host = h.Addresses[0].String()
	}
	return net.JoinHostPort(host, strconv.Itoa(h.Port))
}

// DiscoverIIOD browses for iiod services until timeout or ctx ends and
// returns the hosts found, deduplicated and sorted by hostname.
func DiscoverIIOD(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				h := hostFromEntry(e)
				found[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, Service, "local.", entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	<-done

	out := make([]Host, 0, len(found))
	for _, h := range found {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		TXT:       append([]string{}, e.Text...),
	}
}

// cleanInstance removes Zeroconf escape sequences: "\ " => " "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
