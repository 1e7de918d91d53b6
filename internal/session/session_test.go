package session

import (
	"math"
	"testing"

	"netjam/internal/connection"
	"netjam/internal/transport"
)

func TestSoftClipLinearBelowHalf(t *testing.T) {
	if got := softClip(0.3); got != 0.3 {
		t.Fatalf("softClip(0.3) = %v, want 0.3", got)
	}
	if got := softClip(-0.4); got != -0.4 {
		t.Fatalf("softClip(-0.4) = %v, want -0.4", got)
	}
}

func TestSoftClipApproachesOneAboveHalf(t *testing.T) {
	got := softClip(2.0)
	if got <= 0.5 || got >= 1.0 {
		t.Fatalf("softClip(2.0) = %v, want in (0.5, 1.0)", got)
	}
	gotNeg := softClip(-2.0)
	if math.Abs(gotNeg+got) > 1e-9 {
		t.Fatalf("softClip is not odd-symmetric: softClip(2)=%v softClip(-2)=%v", got, gotNeg)
	}
}

func TestMixAveragesAndClips(t *testing.T) {
	out := Mix([][]float32{{0.4, 0.1}, {0.4, 0.1}})
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0] != 0.4 {
		t.Fatalf("out[0] = %v, want 0.4 (below clip threshold)", out[0])
	}
}

func TestMixHandlesUnevenLengths(t *testing.T) {
	out := Mix([][]float32{{1, 1, 1}, {1}})
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if want := float32(softClip(1)); out[0] != want {
		t.Fatalf("out[0] = %v, want %v (both peers contributed 1, average 1 is soft-clipped)", out[0], want)
	}
	if out[1] != 0.5 {
		t.Fatalf("out[1] = %v, want 0.5 (second peer silent for this sample)", out[1])
	}
}

func TestAddPeerRespectsMaxPeers(t *testing.T) {
	s := New()
	for i := 0; i < MaxPeers; i++ {
		udp, err := transport.Listen("127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		defer udp.Close()
		ok := s.AddPeer(string(rune('a'+i)), connection.New(udp, nil))
		if !ok {
			t.Fatalf("AddPeer %d unexpectedly rejected", i)
		}
	}

	extra, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer extra.Close()
	if s.AddPeer("overflow", connection.New(extra, nil)) {
		t.Fatal("expected AddPeer to reject beyond MaxPeers")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New()
	udp, err := transport.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer udp.Close()
	s.AddPeer("a", connection.New(udp, nil))

	s.Stop()
	s.Stop()

	if len(s.PeerIDs()) != 0 {
		t.Fatalf("peers remain after Stop: %v", s.PeerIDs())
	}
}

func TestSendAudioToUnknownPeerIsDroppedSilently(t *testing.T) {
	s := New()
	s.SendAudioTo("ghost", []byte{1, 2, 3}, 0) // must not panic
}
