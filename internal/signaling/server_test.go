package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func recvEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := Encode(msgType, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRoomLifecycleCreateJoinChatLeave(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	alice := dial(t, ts.URL)
	defer alice.Close()

	sendEnvelope(t, alice, TypeCreateRoom, CreateRoomData{
		Name: "jam", Peer: PeerInfo{ID: "alice", Name: "Alice"},
	})
	created := recvEnvelope(t, alice)
	if created.Type != TypeRoomCreated {
		t.Fatalf("type = %q, want %q", created.Type, TypeRoomCreated)
	}
	var createdData RoomCreatedData
	if err := DecodePayload(created, &createdData); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if createdData.RoomID == "" || createdData.InviteCode == "" {
		t.Fatalf("missing room id or invite code: %+v", createdData)
	}

	bob := dial(t, ts.URL)
	defer bob.Close()

	sendEnvelope(t, bob, TypeJoinRoom, JoinRoomData{
		RoomID: createdData.RoomID, Peer: PeerInfo{ID: "bob", Name: "Bob"},
	})

	joined := recvEnvelope(t, bob)
	if joined.Type != TypeRoomJoined {
		t.Fatalf("type = %q, want %q", joined.Type, TypeRoomJoined)
	}
	var joinedData RoomJoinedData
	if err := DecodePayload(joined, &joinedData); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if len(joinedData.Peers) != 1 || joinedData.Peers[0].ID != "alice" {
		t.Fatalf("joined peers = %+v, want [alice]", joinedData.Peers)
	}

	peerJoined := recvEnvelope(t, alice)
	if peerJoined.Type != TypePeerJoined {
		t.Fatalf("alice expected peer_joined, got %q", peerJoined.Type)
	}

	sendEnvelope(t, bob, TypeChatMessage, ChatMessageData{RoomID: createdData.RoomID, Message: "hi"})
	chat := recvEnvelope(t, alice)
	if chat.Type != TypeChatMessage {
		t.Fatalf("alice expected chat_message, got %q", chat.Type)
	}
	var chatData ChatMessageData
	if err := DecodePayload(chat, &chatData); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if chatData.SenderID != "bob" {
		t.Fatalf("chat senderId = %q, want %q", chatData.SenderID, "bob")
	}
	if chatData.TimestampMs == 0 {
		t.Fatal("chat timestampMs not set")
	}

	bob.Close()
	peerLeft := recvEnvelope(t, alice)
	if peerLeft.Type != TypePeerLeft {
		t.Fatalf("alice expected peer_left, got %q", peerLeft.Type)
	}
}

func TestJoinRoomRejectsWrongPassword(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	alice := dial(t, ts.URL)
	defer alice.Close()
	sendEnvelope(t, alice, TypeCreateRoom, CreateRoomData{
		Name: "locked", Password: "secret", Peer: PeerInfo{ID: "alice", Name: "Alice"},
	})
	created := recvEnvelope(t, alice)
	var createdData RoomCreatedData
	DecodePayload(created, &createdData)

	bob := dial(t, ts.URL)
	defer bob.Close()
	sendEnvelope(t, bob, TypeJoinRoom, JoinRoomData{
		RoomID: createdData.RoomID, Password: "wrong", Peer: PeerInfo{ID: "bob", Name: "Bob"},
	})
	resp := recvEnvelope(t, bob)
	if resp.Type != TypeError {
		t.Fatalf("type = %q, want %q", resp.Type, TypeError)
	}
}

func TestJoinRoomRejectsUnknownRoom(t *testing.T) {
	srv := NewServer()
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	bob := dial(t, ts.URL)
	defer bob.Close()
	sendEnvelope(t, bob, TypeJoinRoom, JoinRoomData{RoomID: "nonexistent", Peer: PeerInfo{ID: "bob", Name: "Bob"}})
	resp := recvEnvelope(t, bob)
	if resp.Type != TypeError {
		t.Fatalf("type = %q, want %q", resp.Type, TypeError)
	}
}
