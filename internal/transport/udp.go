// Package transport provides the UDP socket that carries netjam's media-path
// packets, following the teacher repository's pattern of a single-owner
// socket handle with a background receive-fan-out goroutine feeding a
// bounded channel.
package transport

import (
	"errors"
	"log"
	"net"
	"sync"

	"netjam/internal/protocol"
)

// recvBufSize is the UDP receive buffer per datagram; comfortably above any
// realistic MTU-bounded payload (spec: ≤ ~1460 bytes).
const recvBufSize = 2048

// inboundQueueSize bounds the receive-loop fan-out channel.
const inboundQueueSize = 256

// Inbound is one parsed, address-tagged packet delivered by the receive loop.
type Inbound struct {
	Packet *protocol.Packet
	Addr   *net.UDPAddr
}

// UDP wraps a bound UDP socket. A UDP value is single-owner: Close releases
// the socket and stops any running receive loop.
type UDP struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	closed  bool
	cancel  chan struct{}
	stopped chan struct{}
}

// Listen binds a UDP socket at addr with address reuse enabled, so a socket
// can be dropped and immediately rebound to the same port (spec §4.B / §8
// scenario 1). addr may specify port 0 to let the OS choose.
func Listen(addr string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := listenReusable(laddr)
	if err != nil {
		return nil, err
	}
	return &UDP{conn: conn}, nil
}

// LocalAddr returns the socket's bound local address.
func (u *UDP) LocalAddr() *net.UDPAddr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo encodes and writes one packet to addr.
func (u *UDP) SendTo(p *protocol.Packet, addr *net.UDPAddr) error {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	_, err := conn.WriteToUDP(protocol.Encode(p), addr)
	return err
}

// RecvFrom performs one blocking read and decode. Invalid packets are
// returned as (nil, addr, protocol.ErrInvalidPacket); callers that want the
// forward-compatibility drop-silently behavior should use the receive loop
// instead, which applies it for them.
func (u *UDP) RecvFrom() (*protocol.Packet, *net.UDPAddr, error) {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return nil, nil, net.ErrClosed
	}
	buf := make([]byte, recvBufSize)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	p, perr := protocol.Decode(buf[:n])
	if perr != nil {
		return nil, addr, perr
	}
	return p, addr, nil
}

// StartReceiveLoop launches a background goroutine that reads datagrams
// until the socket is closed, dropping invalid packets silently and
// delivering valid ones on the returned channel. The channel is closed when
// the loop exits; the returned stop function cancels the loop without
// closing the underlying socket (Close does both).
func (u *UDP) StartReceiveLoop() (<-chan Inbound, func()) {
	out := make(chan Inbound, inboundQueueSize)
	u.mu.Lock()
	u.cancel = make(chan struct{})
	u.stopped = make(chan struct{})
	cancel := u.cancel
	stopped := u.stopped
	u.mu.Unlock()

	go func() {
		defer close(out)
		defer close(stopped)
		buf := make([]byte, recvBufSize)
		for {
			select {
			case <-cancel:
				return
			default:
			}
			u.mu.Lock()
			conn := u.conn
			u.mu.Unlock()
			if conn == nil {
				return
			}
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				log.Printf("[transport] recv error: %v", err)
				continue
			}
			p, perr := protocol.Decode(buf[:n])
			if perr != nil {
				continue // invalid packets are dropped silently (forward-compat envelope)
			}
			payload := append([]byte(nil), p.Payload...)
			p.Payload = payload
			select {
			case out <- Inbound{Packet: p, Addr: addr}:
			case <-cancel:
				return
			}
		}
	}()

	stop := func() {
		u.mu.Lock()
		c := u.cancel
		u.mu.Unlock()
		if c != nil {
			select {
			case <-c:
			default:
				close(c)
			}
		}
	}
	return out, stop
}

// Close releases the socket, stopping any running receive loop.
func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	conn := u.conn
	cancel := u.cancel
	u.conn = nil
	u.mu.Unlock()

	if cancel != nil {
		select {
		case <-cancel:
		default:
			close(cancel)
		}
	}
	if conn == nil {
		return nil
	}
	return conn.Close()
}
