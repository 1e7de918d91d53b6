// Package stun implements the client side of RFC 5389 Binding
// Request/Response exchange used to discover a host's server-reflexive
// (publicly mapped) address, built on github.com/pion/stun/v3's message
// codec rather than its own bit-twiddling — the pack's WebRTC-adjacent
// repos pull this library in for exactly this purpose.
package stun

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun/v3"
)

// PerServerTimeout bounds how long one server gets to answer before the
// client moves on to the next candidate in the list.
const PerServerTimeout = 3 * time.Second

// ErrStunFailed is returned when every configured server failed to answer.
type ErrStunFailed struct {
	Reason string
}

func (e *ErrStunFailed) Error() string { return "stun: failed: " + e.Reason }

// Resolve sends a Binding Request to each server in order until one answers
// with a matching transaction ID, returning the discovered mapped address.
// Supports both IPv4 and IPv6 server-reflexive addresses.
func Resolve(servers []string) (*net.UDPAddr, error) {
	if len(servers) == 0 {
		return nil, &ErrStunFailed{Reason: "no servers configured"}
	}
	var lastErr error
	for _, server := range servers {
		addr, err := resolveOne(server)
		if err == nil {
			return addr, nil
		}
		lastErr = err
	}
	reason := "all servers unreachable"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	return nil, &ErrStunFailed{Reason: reason}
}

func resolveOne(server string) (*net.UDPAddr, error) {
	raddr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", server, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", server, err)
	}
	defer conn.Close()

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if err := conn.SetDeadline(time.Now().Add(PerServerTimeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(req.Raw); err != nil {
		return nil, fmt.Errorf("write to %s: %w", server, err)
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", server, err)
	}

	resp := &stun.Message{Raw: append([]byte(nil), buf[:n]...)}
	if err := resp.Decode(); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", server, err)
	}
	if resp.TransactionID != req.TransactionID {
		return nil, errors.New("transaction ID mismatch")
	}
	if resp.Type != stun.BindingSuccess {
		return nil, fmt.Errorf("unexpected message type %v from %s", resp.Type, server)
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(resp); err == nil {
		return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, nil
	}
	var mapped stun.MappedAddress
	if err := mapped.GetFrom(resp); err == nil {
		return &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}, nil
	}
	return nil, fmt.Errorf("no mapped address attribute in response from %s", server)
}
