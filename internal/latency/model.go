// Package latency decomposes a connection's round-trip audio delay into its
// contributing stages so the CLI can print a breakdown instead of a single
// opaque number.
package latency

import "time"

// Algorithmic delay contributed by each codec at 48kHz, independent of
// network conditions.
const (
	PCMAlgorithmicDelayMs  = 0.0
	OpusAlgorithmicDelayMs = 2.5
)

// Breakdown holds one direction's stage-by-stage latency estimate, in
// milliseconds.
type Breakdown struct {
	CaptureMs  float64
	EncodeMs   float64
	NetworkMs  float64
	JitterMs   float64
	DecodeMs   float64
	PlaybackMs float64
}

// Total sums every stage.
func (b Breakdown) Total() float64 {
	return b.CaptureMs + b.EncodeMs + b.NetworkMs + b.JitterMs + b.DecodeMs + b.PlaybackMs
}

// add returns the stage-by-stage sum of b and o.
func (b Breakdown) add(o Breakdown) Breakdown {
	return Breakdown{
		CaptureMs:  b.CaptureMs + o.CaptureMs,
		EncodeMs:   b.EncodeMs + o.EncodeMs,
		NetworkMs:  b.NetworkMs + o.NetworkMs,
		JitterMs:   b.JitterMs + o.JitterMs,
		DecodeMs:   b.DecodeMs + o.DecodeMs,
		PlaybackMs: b.PlaybackMs + o.PlaybackMs,
	}
}

// Model computes upstream, downstream, and round-trip latency from local
// measurements plus whatever the peer has reported about its own stages.
// HasPeerInfo is false until at least one round-trip sample (e.g. a
// keep-alive echo) has been observed, since NetworkMs before that is a guess
// rather than a measurement; the peer-reported stage fields simply stay at
// their zero value until ObservePeerReport has been called at least once.
type Model struct {
	frameDuration time.Duration
	codecDelayMs  float64
	jitterDelayMs float64
	rttMs         float64
	hasPeerInfo   bool

	peerCaptureMs  float64
	peerEncodeMs   float64
	peerJitterMs   float64
	peerDecodeMs   float64
	peerPlaybackMs float64
}

// NewModel creates a Model for a given frame duration and codec algorithmic
// delay (PCMAlgorithmicDelayMs or OpusAlgorithmicDelayMs).
func NewModel(frameDuration time.Duration, codecDelayMs float64) *Model {
	return &Model{frameDuration: frameDuration, codecDelayMs: codecDelayMs}
}

// ObserveRTT records a fresh round-trip time sample, after which HasPeerInfo
// becomes true and Upstream/Downstream/RoundTrip reflect measured network
// delay instead of zero.
func (m *Model) ObserveRTT(rtt time.Duration) {
	m.rttMs = float64(rtt) / float64(time.Millisecond)
	m.hasPeerInfo = true
}

// SetJitterDelay records the local jitter buffer's current playout delay in
// frames.
func (m *Model) SetJitterDelay(delayFrames int) {
	m.jitterDelayMs = float64(delayFrames) * (float64(m.frameDuration) / float64(time.Millisecond))
}

// ObservePeerReport records the peer's self-reported stage timings, carried
// over the control channel: its frame duration (capture/playback), its
// codec's algorithmic delay (encode/decode), and its jitter buffer's current
// playout delay in frames.
func (m *Model) ObservePeerReport(frameDuration time.Duration, codecDelayMs float64, jitterDelayFrames int) {
	frameMs := float64(frameDuration) / float64(time.Millisecond)
	m.peerCaptureMs = frameMs
	m.peerPlaybackMs = frameMs
	m.peerEncodeMs = codecDelayMs
	m.peerDecodeMs = codecDelayMs
	m.peerJitterMs = float64(jitterDelayFrames) * frameMs
}

// HasPeerInfo reports whether a network measurement has ever been taken.
func (m *Model) HasPeerInfo() bool { return m.hasPeerInfo }

func (m *Model) networkMs() float64 {
	if !m.hasPeerInfo {
		return 0
	}
	return m.rttMs / 2
}

// Upstream estimates local-capture-to-peer-playback latency: this side's
// capture and encode, half the round trip, then the peer's jitter, decode,
// and playback.
func (m *Model) Upstream() Breakdown {
	frameMs := float64(m.frameDuration) / float64(time.Millisecond)
	return Breakdown{
		CaptureMs:  frameMs,
		EncodeMs:   m.codecDelayMs,
		NetworkMs:  m.networkMs(),
		JitterMs:   m.peerJitterMs,
		DecodeMs:   m.peerDecodeMs,
		PlaybackMs: m.peerPlaybackMs,
	}
}

// Downstream estimates peer-capture-to-local-playback latency: the peer's
// capture and encode, half the round trip, then this side's jitter, decode,
// and playback.
func (m *Model) Downstream() Breakdown {
	frameMs := float64(m.frameDuration) / float64(time.Millisecond)
	return Breakdown{
		CaptureMs:  m.peerCaptureMs,
		EncodeMs:   m.peerEncodeMs,
		NetworkMs:  m.networkMs(),
		JitterMs:   m.jitterDelayMs,
		DecodeMs:   m.codecDelayMs,
		PlaybackMs: frameMs,
	}
}

// RoundTrip is Upstream and Downstream added stage by stage.
func (m *Model) RoundTrip() Breakdown {
	return m.Upstream().add(m.Downstream())
}
