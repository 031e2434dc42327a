// Package discovery finds Android TV devices on the local network via mDNS.
package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog/log"
)

const (
	serviceName   = "_androidtvremote2._tcp"
	browseTimeout = 10 * time.Second
	queryBuffer   = 32
)

// Candidate is a discovered device, ready to be offered for selection.
type Candidate struct {
	Name    string
	Address string
	Label   string
}

// Scanner locates Android TV devices on the network.
type Scanner interface {
	// Scan browses for devices until the timeout or context expires.
	Scan(ctx context.Context) ([]Candidate, error)
	// Resolve looks up the current address of a device by its mDNS
	// instance name. It returns an empty string when the device was not
	// seen during the browse window.
	Resolve(ctx context.Context, name string) (string, error)
}

// MDNSScanner browses the Android TV remote service via multicast DNS.
type MDNSScanner struct {
	timeout time.Duration
}

// NewMDNSScanner returns a scanner with the default browse timeout.
func NewMDNSScanner() *MDNSScanner {
	return &MDNSScanner{timeout: browseTimeout}
}

// Scan implements Scanner.
func (s *MDNSScanner) Scan(ctx context.Context) ([]Candidate, error) {
	entries := make(chan *mdns.ServiceEntry, queryBuffer)
	results := make(chan []Candidate, 1)

	go func() {
		var found []Candidate
		seen := make(map[string]bool)
		for entry := range entries {
			c, ok := candidateFromEntry(entry)
			if !ok || seen[c.Address] {
				continue
			}
			seen[c.Address] = true
			found = append(found, c)
			log.Debug().Str("name", c.Name).Str("address", c.Address).Msg("Discovered device")
		}
		results <- found
	}()

	params := &mdns.QueryParam{
		Service:             serviceName,
		Timeout:             s.timeout,
		Entries:             entries,
		DisableIPv6:         true,
		WantUnicastResponse: true,
	}
	err := mdns.QueryContext(ctx, params)
	close(entries)
	found := <-results
	if err != nil {
		return found, err
	}
	return found, nil
}

// Resolve implements Scanner. It reuses a browse and matches on the
// instance name, so it also picks up address changes after a DHCP move.
func (s *MDNSScanner) Resolve(ctx context.Context, name string) (string, error) {
	candidates, err := s.Scan(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range candidates {
		if c.Name == name {
			return c.Address, nil
		}
	}
	return "", nil
}

func candidateFromEntry(entry *mdns.ServiceEntry) (Candidate, bool) {
	if entry.AddrV4 == nil {
		return Candidate{}, false
	}
	name := entry.Name
	if i := strings.Index(name, "."+serviceName); i > 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "\\ ", " ")
	address := entry.AddrV4.String()
	return Candidate{
		Name:    name,
		Address: address,
		Label:   name + " [" + address + "]",
	}, true
}
