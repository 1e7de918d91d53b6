// Package connection drives one peer-to-peer audio session's lifecycle: it
// races candidate addresses to find a reachable one, then owns sending and
// receiving audio packets with encryption, FEC, and keep-alives layered on
// top of a raw transport.UDP socket. Jitter buffering and PLC sit above this
// package, operating on the payloads and sequence numbers it delivers.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"netjam/internal/aead"
	"netjam/internal/protocol"
	"netjam/internal/transport"
)

// keyExchangeRetry is how often the initial public key is resent while
// waiting for the peer's, since the handshake rides the same best-effort
// UDP path as everything else.
const keyExchangeRetry = 200 * time.Millisecond

// candidateStagger is the delay between successive probe sends when racing
// multiple candidates, a Happy-Eyeballs-style approach that favors
// earlier (higher-priority) candidates without waiting for one to time out
// before trying the next.
const candidateStagger = 20 * time.Millisecond

// connectTimeout bounds how long candidate racing waits for any response.
const connectTimeout = 5 * time.Second

// keepAliveInterval is how often a keep-alive packet is sent while connected.
const keepAliveInterval = 1 * time.Second

// Sentinel errors returned to callers per the connection's error contract.
var (
	// ErrAlreadyConnected is returned by ConnectWithCandidates when the
	// connection is not in the Disconnected state.
	ErrAlreadyConnected = errors.New("connection: already connected")
	// ErrNotConnected is returned by operations that require an active,
	// transmitting connection.
	ErrNotConnected = errors.New("connection: not connected")
	// ErrNoCandidates is returned by ConnectWithCandidates when given an
	// empty candidate list.
	ErrNoCandidates = errors.New("connection: no candidates given")
)

// AudioHandler receives decrypted, FEC-recovered audio payloads as they
// arrive, tagged with the originating sequence number (for jitter buffer
// ordering) and capture timestamp. A recovered packet's timestamp is not
// recoverable from FEC metadata and is reported as 0.
type AudioHandler func(seq uint32, payload []byte, timestamp uint32)

// Connection manages one peer's transport-level session.
type Connection struct {
	udp     *transport.UDP
	onAudio AudioHandler

	fecEncoder *protocol.Encoder
	fecDecoder *protocol.Decoder

	state atomic.Uint32

	remoteMu sync.RWMutex
	remote   *net.UDPAddr

	seq             atomic.Uint32
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64

	connectedAtMu sync.Mutex
	connectedAt   time.Time

	errMu     sync.Mutex
	lastError error

	cryptoMu sync.RWMutex
	crypto   *aead.Context

	keyExchangeCh chan []byte

	cancel  context.CancelFunc
	stopped chan struct{}
}

// New wraps udp with connection-state tracking. onAudio is invoked for
// every received audio payload from the connected peer.
func New(udp *transport.UDP, onAudio AudioHandler) *Connection {
	c := &Connection{
		udp:           udp,
		onAudio:       onAudio,
		stopped:       make(chan struct{}),
		keyExchangeCh: make(chan []byte, 1),
		fecEncoder:    protocol.NewEncoder(protocol.DefaultGroupSize),
		fecDecoder:    protocol.NewDecoder(protocol.DefaultGroupSize),
	}
	c.state.Store(uint32(Disconnected))
	return c
}

// fecCoordinates maps a 1-based per-direction audio sequence number to the
// (group, index) pair the FEC encoder/decoder use, given they both group
// every DefaultGroupSize consecutive audio sends starting at sequence 1.
func fecCoordinates(seq uint32) (group uint32, index int) {
	if seq == 0 {
		return 0, 0
	}
	z := seq - 1
	return z / uint32(protocol.DefaultGroupSize), int(z % uint32(protocol.DefaultGroupSize))
}

// SetEncryption installs ctx as the active encryption context. Once set,
// SendAudio seals every outbound payload and inbound audio packets with the
// encrypted flag set are opened against it; a nil ctx disables encryption.
func (c *Connection) SetEncryption(ctx *aead.Context) {
	c.cryptoMu.Lock()
	c.crypto = ctx
	c.cryptoMu.Unlock()
}

func (c *Connection) encryption() *aead.Context {
	c.cryptoMu.RLock()
	defer c.cryptoMu.RUnlock()
	return c.crypto
}

// ExchangeKeys performs the X25519 handshake described by the encryption
// component: generate an ephemeral key pair, exchange public keys with the
// already-connected peer over the control channel, derive direction-specific
// AEAD keys, and install them. Must be called after a successful Connect.
// isInitiator picks which HKDF direction labels this side sends under.
func (c *Connection) ExchangeKeys(ctx context.Context, isInitiator bool) error {
	addr := c.remoteAddr()
	if addr == nil {
		return ErrNotConnected
	}
	priv, pub, err := aead.GenerateKeyPair()
	if err != nil {
		return err
	}

	pkt := &protocol.Packet{Type: protocol.TypeControl, Payload: pub[:]}
	_ = c.udp.SendTo(pkt, addr)

	ticker := time.NewTicker(keyExchangeRetry)
	defer ticker.Stop()
	for {
		select {
		case peerPub := <-c.keyExchangeCh:
			if len(peerPub) != aead.KeySize {
				continue
			}
			var peerArr [aead.KeySize]byte
			copy(peerArr[:], peerPub)
			derived, err := aead.Derive(priv, peerArr, isInitiator)
			if err != nil {
				return err
			}
			c.SetEncryption(derived)
			return nil
		case <-ticker.C:
			_ = c.udp.SendTo(pkt, addr)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// LastError returns the error recorded by the most recent Failed
// transition, or nil if none occurred since the last non-Failed transition.
func (c *Connection) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastError
}

// setState updates the state. Transitioning to anything other than Failed
// clears the last recorded error.
func (c *Connection) setState(s State, err error) {
	c.state.Store(uint32(s))
	c.errMu.Lock()
	if s == Failed {
		c.lastError = err
	} else {
		c.lastError = nil
	}
	c.errMu.Unlock()
}

// CanTransmit reports whether Send is currently meaningful.
func (c *Connection) CanTransmit() bool { return c.State().CanTransmit() }

func (c *Connection) remoteAddr() *net.UDPAddr {
	c.remoteMu.RLock()
	defer c.remoteMu.RUnlock()
	return c.remote
}

func (c *Connection) setRemoteAddr(addr *net.UDPAddr) {
	c.remoteMu.Lock()
	c.remote = addr
	c.remoteMu.Unlock()
}

// Connect races a single candidate address; equivalent to
// ConnectWithCandidates with one entry.
func (c *Connection) Connect(ctx context.Context, addr *net.UDPAddr) error {
	return c.ConnectWithCandidates(ctx, []*net.UDPAddr{addr})
}

// ConnectWithCandidates probes every candidate with a staggered start
// (earlier candidates are tried first, but later ones are not delayed
// waiting for a timeout) and adopts whichever responds first. Unreachable
// or invalid candidates are simply never heard from again; they do not
// block the race.
func (c *Connection) ConnectWithCandidates(ctx context.Context, addrs []*net.UDPAddr) error {
	if c.State() != Disconnected {
		return ErrAlreadyConnected
	}
	if len(addrs) == 0 {
		c.setState(Failed, ErrNoCandidates)
		return ErrNoCandidates
	}

	c.setState(GatheringCandidates, nil)

	inbound, stopRecv := c.udp.StartReceiveLoop()
	defer stopRecv()

	winner := make(chan *net.UDPAddr, 1)

	go func() {
		for inb := range inbound {
			if inb.Packet.Type == protocol.TypeKeepAlive || inb.Packet.Type == protocol.TypeAudio {
				select {
				case winner <- inb.Addr:
				default:
				}
			}
		}
	}()

	c.setState(CheckingConnectivity, nil)

	probeCtx, cancelProbes := context.WithCancel(ctx)
	defer cancelProbes()
	for i, addr := range addrs {
		addr := addr
		delay := time.Duration(i) * candidateStagger
		go func() {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-probeCtx.Done():
				return
			}
			pkt := &protocol.Packet{Type: protocol.TypeKeepAlive, Sequence: c.seq.Load()}
			_ = c.udp.SendTo(pkt, addr)
		}()
	}

	select {
	case addr := <-winner:
		c.setRemoteAddr(addr)
		c.setState(Connected, nil)
		c.connectedAtMu.Lock()
		c.connectedAt = time.Now()
		c.connectedAtMu.Unlock()
		return nil
	case <-time.After(connectTimeout):
		err := fmt.Errorf("connection: no candidate responded within %s", connectTimeout)
		c.setState(Failed, err)
		return err
	case <-ctx.Done():
		c.setState(Failed, ctx.Err())
		return ctx.Err()
	}
}

// Run starts the steady-state receive and keep-alive loops. Call after a
// successful Connect/ConnectWithCandidates; returns once ctx is canceled or
// Disconnect is called.
func (c *Connection) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	inbound, stopRecv := c.udp.StartReceiveLoop()

	go c.keepAliveLoop(runCtx)

	for {
		select {
		case inb, ok := <-inbound:
			if !ok {
				close(c.stopped)
				return
			}
			c.handleInbound(inb)
		case <-runCtx.Done():
			stopRecv()
			close(c.stopped)
			return
		}
	}
}

func (c *Connection) handleInbound(inb transport.Inbound) {
	remote := c.remoteAddr()
	if remote == nil || inb.Addr.String() != remote.String() {
		return
	}

	c.packetsReceived.Add(1)
	c.bytesReceived.Add(uint64(len(inb.Packet.Payload)))

	switch inb.Packet.Type {
	case protocol.TypeAudio:
		c.deliverAudio(inb.Packet)
	case protocol.TypeFEC:
		c.handleFEC(inb.Packet.Payload)
	case protocol.TypeKeepAlive:
		// Liveness only; nothing to dispatch.
	case protocol.TypeControl:
		select {
		case c.keyExchangeCh <- append([]byte(nil), inb.Packet.Payload...):
		default:
		}
	default:
		// Unknown or not-yet-wired types are ignored.
	}
}

// deliverAudio records p's (still possibly encrypted) payload as one FEC
// group member, then decrypts and delivers it.
func (c *Connection) deliverAudio(p *protocol.Packet) {
	group, index := fecCoordinates(p.Sequence)
	c.fecDecoder.PushMember(group, index, p.Payload)
	c.decryptAndDeliver(p.Sequence, p.Payload, p.Timestamp, p.Encrypted())
}

// handleFEC decodes an FEC packet and, if it completes recovery of exactly
// one missing group member, decrypts and delivers the recovered payload.
// Whether the recovered member was encrypted is not recorded in the FEC
// group metadata, so it is inferred from whether encryption is active now.
func (c *Connection) handleFEC(raw []byte) {
	f, ok := protocol.DecodeFec(raw)
	if !ok {
		return
	}
	rec := c.fecDecoder.PushFec(f)
	if rec == nil {
		return
	}
	seq := rec.Group*uint32(protocol.DefaultGroupSize) + uint32(rec.Index) + 1
	c.decryptAndDeliver(seq, rec.Data, 0, c.encryption() != nil)
}

// decryptAndDeliver opens payload if encrypted is true, silently dropping it
// on authentication failure or a missing encryption context, then invokes
// onAudio.
func (c *Connection) decryptAndDeliver(seq uint32, payload []byte, timestamp uint32, encrypted bool) {
	if encrypted {
		ctx := c.encryption()
		if ctx == nil {
			return
		}
		plain, err := ctx.Open(seq, payload)
		if err != nil {
			return
		}
		payload = plain
	}
	if c.onAudio != nil {
		c.onAudio(seq, payload, timestamp)
	}
}

func (c *Connection) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !c.CanTransmit() {
				continue
			}
			pkt := &protocol.Packet{Type: protocol.TypeKeepAlive, Sequence: c.seq.Load()}
			if addr := c.remoteAddr(); addr != nil {
				_ = c.udp.SendTo(pkt, addr)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SendAudio transmits one audio payload to the connected peer.
func (c *Connection) SendAudio(payload []byte, timestamp uint32) error {
	if !c.CanTransmit() {
		return ErrNotConnected
	}
	addr := c.remoteAddr()
	if addr == nil {
		return ErrNotConnected
	}

	seq := c.seq.Add(1)
	flags := uint16(0)
	if ctx := c.encryption(); ctx != nil {
		payload = ctx.Seal(seq, payload)
		flags |= protocol.FlagEncrypted
	}

	pkt := &protocol.Packet{
		Type:      protocol.TypeAudio,
		Sequence:  seq,
		Timestamp: timestamp,
		Flags:     flags,
		Payload:   payload,
	}
	if err := c.udp.SendTo(pkt, addr); err != nil {
		return err
	}
	c.packetsSent.Add(1)
	c.bytesSent.Add(uint64(len(payload)))

	if fec := c.fecEncoder.Push(payload); fec != nil {
		fecPkt := &protocol.Packet{Type: protocol.TypeFEC, Sequence: seq, Payload: protocol.EncodeFec(fec)}
		_ = c.udp.SendTo(fecPkt, addr)
	}
	return nil
}

// Stats is a snapshot of running transfer counters.
type Stats struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Uptime          time.Duration
}

// Stats returns the current counters and uptime since Connect succeeded.
func (c *Connection) Stats() Stats {
	c.connectedAtMu.Lock()
	connectedAt := c.connectedAt
	c.connectedAtMu.Unlock()

	var uptime time.Duration
	if !connectedAt.IsZero() && c.State().CanTransmit() {
		uptime = time.Since(connectedAt)
	}

	return Stats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		Uptime:          uptime,
	}
}

// Disconnect tears the connection down. Safe to call more than once.
func (c *Connection) Disconnect() {
	if c.State() == Disconnected {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.setState(Disconnected, nil)
}
