// Package candidate enumerates reachable addresses for a local endpoint:
// host interfaces plus an optional STUN server-reflexive address, ranked by
// the priority rules a connection racer needs.
package candidate

import (
	"net"
	"sort"

	"netjam/internal/stun"
)

// Type classifies how a candidate address was obtained.
type Type int

const (
	Host Type = iota
	ServerReflexive
	PeerReflexive
	Relay
)

// Candidate is one reachable address for a peer.
type Candidate struct {
	Addr     *net.UDPAddr
	Type     Type
	Priority uint32
}

// typeWeight ranks candidate types: Host above ServerReflexive above
// PeerReflexive above Relay. Only relative ordering matters to the connector.
func typeWeight(t Type) uint32 {
	switch t {
	case Host:
		return 3
	case ServerReflexive:
		return 2
	case PeerReflexive:
		return 1
	default: // Relay
		return 0
	}
}

// priorityFor computes a ranking priority: type dominates, with IPv6
// ranking slightly above IPv4 within the same type.
func priorityFor(t Type, ip net.IP) uint32 {
	p := typeWeight(t) << 8
	if ip.To4() == nil {
		p |= 1
	}
	return p
}

// NewCandidate builds a Candidate with its priority computed from type and
// address family.
func NewCandidate(addr *net.UDPAddr, t Type) Candidate {
	return Candidate{Addr: addr, Type: t, Priority: priorityFor(t, addr.IP)}
}

// hostAddrs returns non-loopback local interface addresses paired with port.
func hostAddrs(port int) []Candidate {
	var out []Candidate
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range ifaces {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		addr := &net.UDPAddr{IP: ipNet.IP, Port: port}
		out = append(out, NewCandidate(addr, Host))
	}
	return out
}

// Gather returns all discoverable candidates for a socket bound to
// localPort, ordered by priority descending. It always returns at least the
// host candidates and never blocks beyond the STUN per-server timeout; a
// failed or empty STUN server list simply yields fewer candidates.
func Gather(localPort int, stunServers []string) []Candidate {
	out := hostAddrs(localPort)

	if len(stunServers) > 0 {
		if mapped, err := stun.Resolve(stunServers); err == nil {
			out = append(out, NewCandidate(mapped, ServerReflexive))
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}
