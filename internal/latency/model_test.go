package latency

import (
	"testing"
	"time"
)

func TestHasPeerInfoFalseUntilRTTObserved(t *testing.T) {
	m := NewModel(20*time.Millisecond, PCMAlgorithmicDelayMs)
	if m.HasPeerInfo() {
		t.Fatal("HasPeerInfo should be false before any RTT sample")
	}
	m.ObserveRTT(40 * time.Millisecond)
	if !m.HasPeerInfo() {
		t.Fatal("HasPeerInfo should be true after an RTT sample")
	}
}

func TestDownstreamNetworkIsHalfRTT(t *testing.T) {
	m := NewModel(20*time.Millisecond, PCMAlgorithmicDelayMs)
	m.ObserveRTT(40 * time.Millisecond)
	down := m.Downstream()
	if down.NetworkMs != 20 {
		t.Fatalf("NetworkMs = %v, want 20", down.NetworkMs)
	}
}

func TestUpstreamNetworkIsHalfRTT(t *testing.T) {
	m := NewModel(20*time.Millisecond, PCMAlgorithmicDelayMs)
	m.ObserveRTT(40 * time.Millisecond)
	up := m.Upstream()
	if up.NetworkMs != 20 {
		t.Fatalf("NetworkMs = %v, want 20", up.NetworkMs)
	}
}

func TestUpstreamNetworkIsZeroBeforeRTTObserved(t *testing.T) {
	m := NewModel(20*time.Millisecond, PCMAlgorithmicDelayMs)
	if up := m.Upstream(); up.NetworkMs != 0 {
		t.Fatalf("NetworkMs = %v, want 0 before any RTT sample", up.NetworkMs)
	}
}

func TestUpstreamUsesCodecDelay(t *testing.T) {
	m := NewModel(20*time.Millisecond, OpusAlgorithmicDelayMs)
	up := m.Upstream()
	if up.EncodeMs != OpusAlgorithmicDelayMs {
		t.Fatalf("EncodeMs = %v, want %v", up.EncodeMs, OpusAlgorithmicDelayMs)
	}
}

func TestObservePeerReportFillsUpstreamTail(t *testing.T) {
	m := NewModel(20*time.Millisecond, PCMAlgorithmicDelayMs)
	m.ObservePeerReport(20*time.Millisecond, OpusAlgorithmicDelayMs, 3)

	up := m.Upstream()
	if up.DecodeMs != OpusAlgorithmicDelayMs {
		t.Fatalf("DecodeMs = %v, want %v (peer's codec delay)", up.DecodeMs, OpusAlgorithmicDelayMs)
	}
	if up.PlaybackMs != 20 {
		t.Fatalf("PlaybackMs = %v, want 20 (peer's frame duration)", up.PlaybackMs)
	}
	if up.JitterMs != 60 {
		t.Fatalf("JitterMs = %v, want 60 (3 frames * 20ms)", up.JitterMs)
	}
}

func TestObservePeerReportFillsDownstreamHead(t *testing.T) {
	m := NewModel(20*time.Millisecond, PCMAlgorithmicDelayMs)
	m.ObservePeerReport(20*time.Millisecond, OpusAlgorithmicDelayMs, 3)

	down := m.Downstream()
	if down.CaptureMs != 20 {
		t.Fatalf("CaptureMs = %v, want 20 (peer's frame duration)", down.CaptureMs)
	}
	if down.EncodeMs != OpusAlgorithmicDelayMs {
		t.Fatalf("EncodeMs = %v, want %v (peer's codec delay)", down.EncodeMs, OpusAlgorithmicDelayMs)
	}
}

func TestRoundTripIsUpstreamPlusDownstreamFieldByField(t *testing.T) {
	m := NewModel(20*time.Millisecond, OpusAlgorithmicDelayMs)
	m.ObserveRTT(40 * time.Millisecond)
	m.SetJitterDelay(2)
	m.ObservePeerReport(20*time.Millisecond, OpusAlgorithmicDelayMs, 3)

	up := m.Upstream()
	down := m.Downstream()
	rt := m.RoundTrip()

	if rt.CaptureMs != up.CaptureMs+down.CaptureMs {
		t.Fatalf("CaptureMs = %v, want %v", rt.CaptureMs, up.CaptureMs+down.CaptureMs)
	}
	if rt.EncodeMs != up.EncodeMs+down.EncodeMs {
		t.Fatalf("EncodeMs = %v, want %v", rt.EncodeMs, up.EncodeMs+down.EncodeMs)
	}
	if rt.NetworkMs != up.NetworkMs+down.NetworkMs {
		t.Fatalf("NetworkMs = %v, want %v", rt.NetworkMs, up.NetworkMs+down.NetworkMs)
	}
	if rt.JitterMs != up.JitterMs+down.JitterMs {
		t.Fatalf("JitterMs = %v, want %v", rt.JitterMs, up.JitterMs+down.JitterMs)
	}
	if rt.DecodeMs != up.DecodeMs+down.DecodeMs {
		t.Fatalf("DecodeMs = %v, want %v", rt.DecodeMs, up.DecodeMs+down.DecodeMs)
	}
	if rt.PlaybackMs != up.PlaybackMs+down.PlaybackMs {
		t.Fatalf("PlaybackMs = %v, want %v", rt.PlaybackMs, up.PlaybackMs+down.PlaybackMs)
	}
	if rt.Total() != up.Total()+down.Total() {
		t.Fatalf("Total() = %v, want %v", rt.Total(), up.Total()+down.Total())
	}
}

func TestBreakdownTotalSumsStages(t *testing.T) {
	b := Breakdown{CaptureMs: 1, EncodeMs: 2, NetworkMs: 3, JitterMs: 4, DecodeMs: 5, PlaybackMs: 6}
	if got := b.Total(); got != 21 {
		t.Fatalf("Total() = %v, want 21", got)
	}
}
