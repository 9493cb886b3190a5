package anchor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// MDNS browses DNS-SD with zeroconf.
type MDNS struct {
	Service string
	Domain  string
	Timeout time.Duration
}

// Browse returns the instances answering within Timeout, in arrival order.
func (m *MDNS) Browse(ctx context.Context) ([]Candidate, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	var (
		mu    sync.Mutex
		found []Candidate
		done  = make(chan struct{})
	)
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if c, ok := candidateOf(e); ok {
					mu.Lock()
					found = append(found, c)
					mu.Unlock()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, m.Service, m.Domain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse %s: %w", m.Service, err)
	}
	<-ctx.Done()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}

func candidateOf(e *zeroconf.ServiceEntry) (Candidate, bool) {
	if e == nil || len(e.AddrIPv4) == 0 {
		return Candidate{}, false
	}
	name := strings.TrimSuffix(e.HostName, ".")
	if name == "" {
		name = e.Instance
	}
	return Candidate{Name: name, Addr: e.AddrIPv4[0].String()}, true
}

// Advertiser announces this device so that peers can find it.
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers instance (e.g. "niot-dev1") for service on port.
func Advertise(instance, service, domain string, port int) (*Advertiser, error) {
	server, err := zeroconf.Register(instance, service, domain, port, []string{"txtv=1"}, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register %s: %w", instance, err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the announcement.
func (a *Advertiser) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}
