// Command netjam is the peer-to-peer low-latency audio client: it hosts or
// joins a direct connection, or talks to a signaling server to discover
// rooms and peers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"

	"netjam/internal/audio"
	"netjam/internal/candidate"
	"netjam/internal/codec"
	"netjam/internal/config"
	"netjam/internal/connection"
	"netjam/internal/jitter"
	"netjam/internal/latency"
	"netjam/internal/plc"
	"netjam/internal/session"
	"netjam/internal/signaling"
	"netjam/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "devices":
		err = runDevices(os.Args[2:])
	case "host":
		err = runHost(os.Args[2:])
	case "join":
		err = runJoin(os.Args[2:])
	case "rooms":
		err = runRooms(os.Args[2:])
	case "join-room":
		err = runJoinRoom(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: netjam <devices|host|join|rooms|join-room> [flags]")
}

func runDevices(args []string) error {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	fs.Parse(args)

	inputs, err := audio.ListInputDevices()
	if err != nil {
		return err
	}
	outputs, err := audio.ListOutputDevices()
	if err != nil {
		return err
	}

	fmt.Println("Input devices:")
	for _, d := range inputs {
		fmt.Printf("  [%d] %s\n", d.ID, d.Name)
	}
	fmt.Println("Output devices:")
	for _, d := range outputs {
		fmt.Printf("  [%d] %s\n", d.ID, d.Name)
	}
	return nil
}

type sessionFlags struct {
	sampleRate   int
	frameSize    int
	inputDevice  int
	outputDevice int
	verbose      bool
	codecName    string
}

func bindSessionFlags(fs *flag.FlagSet, cfg config.Config) *sessionFlags {
	sf := &sessionFlags{}
	fs.IntVar(&sf.sampleRate, "sample-rate", audio.SampleRate, "audio sample rate in Hz")
	fs.IntVar(&sf.frameSize, "frame-size", cfg.BufferSize, "PCM samples per frame")
	fs.IntVar(&sf.inputDevice, "input-device", cfg.InputDeviceID, "input device id (-1 for default)")
	fs.IntVar(&sf.outputDevice, "output-device", cfg.OutputDeviceID, "output device id (-1 for default)")
	fs.StringVar(&sf.codecName, "codec", cfg.Codec, "audio codec (pcm or opus)")
	fs.BoolVar(&sf.verbose, "v", false, "print a latency breakdown once connected")
	fs.BoolVar(&sf.verbose, "verbose", false, "print a latency breakdown once connected")
	return sf
}

func selectCodec(name string, frameSize int) (codec.Codec, error) {
	switch name {
	case "", "pcm":
		return codec.NewPCM(frameSize), nil
	default:
		return nil, fmt.Errorf("codec %q not available in this build", name)
	}
}

func runHost(args []string) error {
	cfg := config.Load()
	fs := flag.NewFlagSet("host", flag.ExitOnError)
	port := fs.Int("port", 0, "UDP port to listen on (0 = random)")
	sf := bindSessionFlags(fs, cfg)
	fs.Parse(args)

	udp, err := transport.Listen(fmt.Sprintf(":%d", *port))
	if err != nil {
		return err
	}
	defer udp.Close()

	fmt.Printf("Listening on %s\n", udp.LocalAddr())
	for _, c := range candidate.Gather(udp.LocalAddr().Port, cfg.StunServers) {
		fmt.Printf("  candidate: %s (%v, priority %d)\n", c.Addr, c.Type, c.Priority)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Waiting for a peer to connect...")
	remote, err := waitForFirstPacket(ctx, udp)
	if err != nil {
		return err
	}

	// The dialing side (join) takes the initiator role in the key exchange;
	// host is always the responder.
	return startSession(ctx, udp, remote, sf, cfg, false)
}

// waitForFirstPacket blocks until any packet arrives, returning its source
// address. It stops the receive loop before returning so the caller's own
// loop can take over cleanly.
func waitForFirstPacket(ctx context.Context, udp *transport.UDP) (*net.UDPAddr, error) {
	inbound, stop := udp.StartReceiveLoop()
	defer stop()
	select {
	case inb := <-inbound:
		return inb.Addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func runJoin(args []string) error {
	cfg := config.Load()
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	sf := bindSessionFlags(fs, cfg)
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("join requires a target address")
	}
	target, err := net.ResolveUDPAddr("udp", fs.Arg(0))
	if err != nil {
		return fmt.Errorf("resolve %q: %w", fs.Arg(0), err)
	}

	udp, err := transport.Listen(":0")
	if err != nil {
		return err
	}
	defer udp.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return startSession(ctx, udp, target, sf, cfg, true)
}

// startSession starts the audio service, connects to addr over udp, runs a
// key exchange if encryption is enabled, then streams capture-to-send and
// jitter-buffered receive-to-playback until ctx is canceled.
func startSession(ctx context.Context, udp *transport.UDP, addr *net.UDPAddr, sf *sessionFlags, cfg config.Config, isInitiator bool) error {
	c, err := selectCodec(sf.codecName, sf.frameSize)
	if err != nil {
		return err
	}

	svc := audio.NewService()
	if err := svc.Start(sf.inputDevice, sf.outputDevice, sf.frameSize); err != nil {
		return fmt.Errorf("start audio: %w", err)
	}
	defer svc.Shutdown()

	frameDur := frameDuration(sf)
	jb := jitter.New(jitter.Config{
		MinDelayFrames:     2,
		MaxDelayFrames:     20,
		InitialDelayFrames: 4,
		FrameDurationMs:    float64(frameDur.Microseconds()) / 1000,
	})

	conn := connection.New(udp, func(seq uint32, payload []byte, timestamp uint32) {
		jb.Insert(seq, timestamp, payload)
	})
	if err := conn.Connect(ctx, addr); err != nil {
		return err
	}

	if cfg.EncryptionEnabled {
		if err := conn.ExchangeKeys(ctx, isInitiator); err != nil {
			return fmt.Errorf("exchange keys: %w", err)
		}
	}

	model := latency.NewModel(frameDur, algorithmicDelay(sf.codecName))

	go conn.Run(ctx)
	go captureAndSendLoop(ctx, conn, svc, c, sf.frameSize)
	go playoutLoop(ctx, jb, c, func(frame []float32) { svc.EnqueueRemoteAudio(frame) }, frameDur)

	if sf.verbose {
		go printLatencyLoop(ctx, model)
	}

	<-ctx.Done()
	conn.Disconnect()
	return nil
}

// playoutLoop pulls one frame from jb every frameDur, concealing losses with
// the codec's own PLC (Opus) or the standalone concealer (PCM, which has no
// built-in loss concealment), and hands the result to sink. sink is
// svc.EnqueueRemoteAudio for a direct 1:1 session and a per-peer mixer slot
// for a conference, so this loop doesn't need to know which.
func playoutLoop(ctx context.Context, jb *jitter.Buffer, c codec.Codec, sink func([]float32), frameDur time.Duration) {
	concealer := plc.New(plc.Config{})

	playTicker := time.NewTicker(frameDur)
	defer playTicker.Stop()
	adaptTicker := time.NewTicker(100 * time.Millisecond)
	defer adaptTicker.Stop()

	for {
		select {
		case <-playTicker.C:
			switch res := jb.Pop(); res.Outcome {
			case jitter.OutcomePacket:
				pcm, err := c.Decode(res.Payload)
				if err != nil {
					log.Printf("[netjam] decode failed: %v", err)
					continue
				}
				if c.Name() == "pcm" {
					concealer.Store(pcm)
				}
				sink(pcm)
			case jitter.OutcomeLost:
				var pcm []float32
				if c.Name() == "pcm" {
					pcm = concealer.Conceal()
				} else if decoded, err := c.DecodePLC(); err == nil {
					pcm = decoded
				}
				if pcm != nil {
					sink(pcm)
				}
			case jitter.OutcomeUnderrun:
				// Nothing primed yet; wait for more packets.
			}
		case <-adaptTicker.C:
			jb.Adapt()
		case <-ctx.Done():
			return
		}
	}
}

// captureAndSendLoop polls the audio service for freshly captured microphone
// frames and sends each one as it arrives. Polling at half the frame
// duration keeps latency low without busy-spinning; a miss just retries
// next tick since CaptureFrame never blocks.
func captureAndSendLoop(ctx context.Context, conn *connection.Connection, svc *audio.Service, c codec.Codec, frameSize int) {
	pollInterval := time.Duration(frameSize) * time.Second / time.Duration(2*audio.SampleRate)
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var ts uint32
	frame := make([]float32, frameSize)
	for {
		select {
		case <-ticker.C:
			if !svc.CaptureFrame(frame) {
				continue
			}
			payload, err := c.Encode(frame)
			if err != nil {
				continue
			}
			_ = conn.SendAudio(payload, ts)
			ts++
		case <-ctx.Done():
			return
		}
	}
}

func printLatencyLoop(ctx context.Context, model *latency.Model) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rt := model.RoundTrip()
			fmt.Printf("latency: capture=%.1fms encode=%.1fms network=%.1fms jitter=%.1fms playback=%.1fms total=%.1fms\n",
				rt.CaptureMs, rt.EncodeMs, rt.NetworkMs, rt.JitterMs, rt.PlaybackMs, rt.Total())
		case <-ctx.Done():
			return
		}
	}
}

func frameDuration(sf *sessionFlags) time.Duration {
	return time.Duration(sf.frameSize) * time.Second / time.Duration(sf.sampleRate)
}

func algorithmicDelay(codecName string) float64 {
	if codecName == "opus" {
		return latency.OpusAlgorithmicDelayMs
	}
	return latency.PCMAlgorithmicDelayMs
}

func runRooms(args []string) error {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	server := fs.String("server", "", "signaling server url (e.g. ws://host:8080/ws)")
	fs.Parse(args)
	if *server == "" {
		return fmt.Errorf("rooms requires --server")
	}

	done := make(chan struct{})
	client := signaling.NewClient(*server, func(env signaling.Envelope) {
		if env.Type == signaling.TypeRoomList {
			var data signaling.RoomListData
			if err := signaling.DecodePayload(env, &data); err == nil {
				for _, r := range data.Rooms {
					fmt.Printf("  [%s] %s (%d peers)\n", r.RoomID, r.Name, r.PeerCount)
				}
			}
			close(done)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go client.Run(ctx)

	time.Sleep(200 * time.Millisecond) // allow the dial to complete before sending
	if err := client.Send(signaling.TypeListRooms, struct{}{}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for room list")
	}
}

func runJoinRoom(args []string) error {
	cfg := config.Load()
	fs := flag.NewFlagSet("join-room", flag.ExitOnError)
	server := fs.String("server", "", "signaling server url")
	room := fs.String("room", "", "room id to join")
	name := fs.String("name", "guest", "display name")
	chatOnly := fs.Bool("chat-only", false, "exit after sending one chat message instead of joining the conference")
	message := fs.String("message", "", "chat message to send (requires --chat-only)")
	timeout := fs.Duration("timeout", 10*time.Second, "how long to wait for the room server")
	sf := bindSessionFlags(fs, cfg)
	fs.Parse(args)

	if *server == "" || *room == "" {
		return fmt.Errorf("join-room requires --server and --room")
	}

	if *chatOnly {
		return runChatOnly(*server, *room, *name, *message, *timeout)
	}
	return runConference(*server, *room, *name, sf, cfg, *timeout)
}

// runChatOnly joins a room just long enough to send one chat message, with
// no audio path at all.
func runChatOnly(serverURL, room, name, message string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	client := signaling.NewClient(serverURL, func(env signaling.Envelope) {
		switch env.Type {
		case signaling.TypeRoomJoined:
			fmt.Printf("joined room %s\n", room)
			done <- nil
		case signaling.TypeError:
			var data signaling.ErrorData
			signaling.DecodePayload(env, &data)
			done <- fmt.Errorf("server error: %s", data.Message)
		}
	})
	go client.Run(ctx)
	time.Sleep(200 * time.Millisecond)

	peerID := uuid.NewString()
	if err := client.Send(signaling.TypeJoinRoom, signaling.JoinRoomData{
		RoomID: room,
		Peer:   signaling.PeerInfo{ID: peerID, Name: name},
	}); err != nil {
		return err
	}

	if message != "" {
		if err := client.Send(signaling.TypeChatMessage, signaling.ChatMessageData{RoomID: room, Message: message}); err != nil {
			return err
		}
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("timed out")
	}
}

// runConference joins a signaling room, advertises its own candidates, and
// maintains a direct audio connection to every other peer already there or
// arriving later: captured audio is broadcast to all of them through
// session.Session, and everyone's decoded audio is combined by a peerMixer
// into the single stream the local audio engine can play.
func runConference(serverURL, room, name string, sf *sessionFlags, cfg config.Config, joinTimeout time.Duration) error {
	c, err := selectCodec(sf.codecName, sf.frameSize)
	if err != nil {
		return err
	}

	svc := audio.NewService()
	if err := svc.Start(sf.inputDevice, sf.outputDevice, sf.frameSize); err != nil {
		return fmt.Errorf("start audio: %w", err)
	}
	defer svc.Shutdown()

	probe, err := transport.Listen(":0")
	if err != nil {
		return err
	}
	localPort := probe.LocalAddr().Port
	probe.Close()

	var localCandidates []signaling.Candidate
	for _, cand := range candidate.Gather(localPort, cfg.StunServers) {
		localCandidates = append(localCandidates, signaling.Candidate{
			Addr:     cand.Addr.String(),
			Type:     candidateTypeName(cand.Type),
			Priority: cand.Priority,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sess := session.New()
	defer sess.Stop()
	mixer := newPeerMixer()

	localID := uuid.NewString()
	joined := make(chan error, 1)

	client := signaling.NewClient(serverURL, func(env signaling.Envelope) {
		switch env.Type {
		case signaling.TypeRoomJoined:
			var data signaling.RoomJoinedData
			signaling.DecodePayload(env, &data)
			fmt.Printf("joined room %s with %d existing peer(s)\n", room, len(data.Peers))
			for _, p := range data.Peers {
				go connectConferencePeer(ctx, sess, mixer, localID, p, sf, cfg)
			}
			select {
			case joined <- nil:
			default:
			}
		case signaling.TypePeerJoined:
			var data signaling.PeerJoinedData
			signaling.DecodePayload(env, &data)
			fmt.Printf("peer %s joined\n", data.Peer.Name)
			go connectConferencePeer(ctx, sess, mixer, localID, data.Peer, sf, cfg)
		case signaling.TypePeerLeft:
			var data signaling.PeerLeftData
			signaling.DecodePayload(env, &data)
			sess.RemovePeer(data.PeerID)
			mixer.remove(data.PeerID)
		case signaling.TypeChatMessage:
			var data signaling.ChatMessageData
			signaling.DecodePayload(env, &data)
			if data.SenderID == localID {
				return // server broadcasts chat to the sender too; drop our own echo
			}
			fmt.Printf("[%s] %s\n", data.SenderName, data.Message)
		case signaling.TypeError:
			var data signaling.ErrorData
			signaling.DecodePayload(env, &data)
			select {
			case joined <- fmt.Errorf("server error: %s", data.Message):
			default:
			}
		}
	})
	go client.Run(ctx)
	time.Sleep(200 * time.Millisecond)

	if err := client.Send(signaling.TypeJoinRoom, signaling.JoinRoomData{
		RoomID: room,
		Peer:   signaling.PeerInfo{ID: localID, Name: name, Candidates: localCandidates},
	}); err != nil {
		return err
	}

	joinCtx, cancelJoin := context.WithTimeout(ctx, joinTimeout)
	defer cancelJoin()
	select {
	case err := <-joined:
		if err != nil {
			return err
		}
	case <-joinCtx.Done():
		return fmt.Errorf("timed out waiting to join room")
	}

	go conferenceCaptureLoop(ctx, sess, svc, c, sf.frameSize)
	go mixer.playoutLoop(ctx, svc, frameDuration(sf))

	<-ctx.Done()
	return nil
}

func candidateTypeName(t candidate.Type) string {
	switch t {
	case candidate.Host:
		return "host"
	case candidate.ServerReflexive:
		return "srflx"
	case candidate.PeerReflexive:
		return "prflx"
	default:
		return "relay"
	}
}

// parseCandidateAddrs resolves a peer's advertised candidate strings,
// ranked by priority, skipping any that fail to resolve.
func parseCandidateAddrs(candidates []signaling.Candidate) []*net.UDPAddr {
	sorted := append([]signaling.Candidate(nil), candidates...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority > sorted[j-1].Priority; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	var addrs []*net.UDPAddr
	for _, c := range sorted {
		if addr, err := net.ResolveUDPAddr("udp", c.Addr); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// connectConferencePeer races a conference peer's advertised candidates,
// performs the key exchange, and feeds its decoded audio into the mixer
// until ctx is canceled or the connection fails. Peer IDs break the
// initiator/responder tie deterministically, since unlike host/join there is
// no dialer/listener asymmetry to hang the role on.
func connectConferencePeer(ctx context.Context, sess *session.Session, mixer *peerMixer, localID string, peer signaling.PeerInfo, sf *sessionFlags, cfg config.Config) {
	addrs := parseCandidateAddrs(peer.Candidates)
	if len(addrs) == 0 {
		log.Printf("[netjam] peer %s advertised no usable candidates", peer.Name)
		return
	}

	udp, err := transport.Listen(":0")
	if err != nil {
		log.Printf("[netjam] listen for peer %s: %v", peer.Name, err)
		return
	}

	frameDur := frameDuration(sf)
	jb := jitter.New(jitter.Config{
		MinDelayFrames:     2,
		MaxDelayFrames:     20,
		InitialDelayFrames: 4,
		FrameDurationMs:    float64(frameDur.Microseconds()) / 1000,
	})

	conn := connection.New(udp, func(seq uint32, payload []byte, timestamp uint32) {
		jb.Insert(seq, timestamp, payload)
	})
	if err := conn.ConnectWithCandidates(ctx, addrs); err != nil {
		log.Printf("[netjam] connect to peer %s failed: %v", peer.Name, err)
		udp.Close()
		return
	}

	if cfg.EncryptionEnabled {
		if err := conn.ExchangeKeys(ctx, localID < peer.ID); err != nil {
			log.Printf("[netjam] key exchange with peer %s failed: %v", peer.Name, err)
			conn.Disconnect()
			udp.Close()
			return
		}
	}

	if !sess.AddPeer(peer.ID, conn) {
		log.Printf("[netjam] session full, dropping peer %s", peer.Name)
		conn.Disconnect()
		udp.Close()
		return
	}

	peerCodec, err := selectCodec(sf.codecName, sf.frameSize)
	if err != nil {
		log.Printf("[netjam] codec for peer %s: %v", peer.Name, err)
		sess.RemovePeer(peer.ID)
		conn.Disconnect()
		udp.Close()
		return
	}

	go conn.Run(ctx)
	playoutLoop(ctx, jb, peerCodec, func(frame []float32) { mixer.update(peer.ID, frame) }, frameDur)

	sess.RemovePeer(peer.ID)
	mixer.remove(peer.ID)
	conn.Disconnect()
	udp.Close()
}

// conferenceCaptureLoop mirrors captureAndSendLoop but broadcasts to every
// peer in the session instead of a single connection.
func conferenceCaptureLoop(ctx context.Context, sess *session.Session, svc *audio.Service, c codec.Codec, frameSize int) {
	pollInterval := time.Duration(frameSize) * time.Second / time.Duration(2*audio.SampleRate)
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var ts uint32
	frame := make([]float32, frameSize)
	for {
		select {
		case <-ticker.C:
			if !svc.CaptureFrame(frame) {
				continue
			}
			payload, err := c.Encode(frame)
			if err != nil {
				continue
			}
			sess.BroadcastAudio(payload, ts)
			ts++
		case <-ctx.Done():
			return
		}
	}
}

// peerMixer combines the latest decoded frame from each conference peer
// into one stream, since the local audio engine only has a single playback
// path for session.Mix to feed.
type peerMixer struct {
	mu     sync.Mutex
	frames map[string][]float32
}

func newPeerMixer() *peerMixer {
	return &peerMixer{frames: make(map[string][]float32)}
}

func (m *peerMixer) update(peerID string, frame []float32) {
	m.mu.Lock()
	m.frames[peerID] = frame
	m.mu.Unlock()
}

func (m *peerMixer) remove(peerID string) {
	m.mu.Lock()
	delete(m.frames, peerID)
	m.mu.Unlock()
}

func (m *peerMixer) mix() []float32 {
	m.mu.Lock()
	frames := make([][]float32, 0, len(m.frames))
	for _, f := range m.frames {
		frames = append(frames, f)
	}
	m.mu.Unlock()
	return session.Mix(frames)
}

func (m *peerMixer) playoutLoop(ctx context.Context, svc *audio.Service, frameDur time.Duration) {
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if mixed := m.mix(); mixed != nil {
				svc.EnqueueRemoteAudio(mixed)
			}
		case <-ctx.Done():
			return
		}
	}
}
