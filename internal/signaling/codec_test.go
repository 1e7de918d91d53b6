package signaling

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeCreateRoomRoundTrip(t *testing.T) {
	want := CreateRoomData{
		Name: "jam session",
		Peer: PeerInfo{ID: "p1", Name: "alice", Candidates: []Candidate{
			{Addr: "10.0.0.1:5000", Type: "host", Priority: 768},
		}},
	}

	raw, err := Encode(TypeCreateRoom, want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != TypeCreateRoom {
		t.Fatalf("Type = %q, want %q", env.Type, TypeCreateRoom)
	}

	var got CreateRoomData
	if err := DecodePayload(env, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if got.Name != want.Name || got.Peer.ID != want.Peer.ID {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}
}

func TestPeerInfoBackwardCompatibleFields(t *testing.T) {
	raw := []byte(`{"id":"p2","name":"bob","publicAddr":"1.2.3.4:9","localAddr":"192.168.1.2:9"}`)
	var p PeerInfo
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.PublicAddr != "1.2.3.4:9" || p.LocalAddr != "192.168.1.2:9" {
		t.Fatalf("legacy address fields not preserved: %+v", p)
	}
	if len(p.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %v", p.Candidates)
	}
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error decoding malformed envelope")
	}
}
