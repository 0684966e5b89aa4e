// Package netinfo reports where the dashboard can be reached on this machine.
package netinfo

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"sync"
)

// Snapshot is the set of addresses the server is reachable on.
type Snapshot struct {
	Hostname  string   `json:"hostname"`
	Port      int      `json:"port"`
	Addresses []string `json:"addresses"`
}

// URLs returns one http URL per address.
func (s Snapshot) URLs() []string {
	out := make([]string, 0, len(s.Addresses))
	for _, a := range s.Addresses {
		out = append(out, fmt.Sprintf("http://%s", net.JoinHostPort(a, fmt.Sprint(s.Port))))
	}
	return out
}

type interfaceAddrs func() ([]net.Addr, error)

// Collect lists localhost, every non-loopback IPv4 address and the hostname.
func Collect(port int) Snapshot {
	return collect(port, os.Hostname, net.InterfaceAddrs)
}

func collect(port int, hostname func() (string, error), addrs interfaceAddrs) Snapshot {
	snap := Snapshot{Port: port, Addresses: []string{"localhost"}}

	if list, err := addrs(); err == nil {
		var ips []string
		for _, a := range list {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				ips = append(ips, ip4.String())
			}
		}
		sort.Strings(ips)
		snap.Addresses = append(snap.Addresses, ips...)
	}

	if name, err := hostname(); err == nil && name != "" {
		snap.Hostname = name
		snap.Addresses = append(snap.Addresses, name)
	}
	return snap
}

// Presenter shows the address snapshot to whoever runs the server.
type Presenter interface {
	Present(Snapshot)
}

// LogPresenter writes the snapshot to a logger.
type LogPresenter struct {
	Logger *log.Logger
}

func (p LogPresenter) Present(s Snapshot) {
	logger := p.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("Dashboard available on %d addresses:", len(s.Addresses))
	for _, u := range s.URLs() {
		logger.Printf("  %s", u)
	}
}

// Once presents the snapshot the first time Show is called and ignores
// every later call.
type Once struct {
	presenter Presenter
	once      sync.Once
}

func NewOnce(p Presenter) *Once {
	return &Once{presenter: p}
}

// Show reports whether this call did the presenting.
func (o *Once) Show(s Snapshot) bool {
	shown := false
	o.once.Do(func() {
		o.presenter.Present(s)
		shown = true
	})
	return shown
}
