// Package signaling implements the WebSocket room-discovery and
// peer-introduction protocol: clients exchange tagged JSON envelopes with a
// central server to create or join rooms and learn about peer candidates,
// after which all audio traffic moves to direct UDP and this package is no
// longer involved.
package signaling

import (
	"encoding/json"
	"fmt"
)

// Message types exchanged over the signaling WebSocket. Client-to-server
// types are issued by a joining peer; server-to-client types are pushed by
// the room server.
const (
	TypeCreateRoom    = "create_room"
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypeUpdatePeer    = "update_peer_info"
	TypeListRooms     = "list_rooms"
	TypeChatMessage   = "chat_message"
	TypeRoomCreated   = "room_created"
	TypeRoomJoined    = "room_joined"
	TypePeerJoined    = "peer_joined"
	TypePeerLeft      = "peer_left"
	TypePeerUpdated   = "peer_updated"
	TypeRoomList      = "room_list"
	TypeError         = "error"
)

// Candidate is one address a peer advertises for connection racing.
type Candidate struct {
	Addr     string `json:"addr"`
	Type     string `json:"type"`
	Priority uint32 `json:"priority"`
}

// PeerInfo describes one participant's identity and reachable addresses.
// PublicAddr and LocalAddr are kept for backward compatibility with peers
// that predate the Candidates list; a peer that only understands the old
// fields still gets a usable pair of addresses.
type PeerInfo struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Candidates []Candidate `json:"candidates,omitempty"`
	PublicAddr string      `json:"publicAddr,omitempty"`
	LocalAddr  string      `json:"localAddr,omitempty"`
}

// Envelope is the wire shape of every signaling message: a type tag plus a
// type-specific payload carried as raw JSON until dispatched.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client-to-server payloads.

type CreateRoomData struct {
	Name     string   `json:"name"`
	Password string   `json:"password,omitempty"`
	Peer     PeerInfo `json:"peer"`
}

type JoinRoomData struct {
	RoomID   string   `json:"roomId"`
	Password string   `json:"password,omitempty"`
	Peer     PeerInfo `json:"peer"`
}

type LeaveRoomData struct {
	RoomID string `json:"roomId"`
}

type UpdatePeerInfoData struct {
	RoomID string   `json:"roomId"`
	Peer   PeerInfo `json:"peer"`
}

type ChatMessageData struct {
	RoomID      string `json:"roomId"`
	Message     string `json:"message"`
	SenderID    string `json:"senderId,omitempty"`
	SenderName  string `json:"senderName,omitempty"`
	TimestampMs int64  `json:"timestampMs,omitempty"`
}

// Server-to-client payloads.

type RoomCreatedData struct {
	RoomID     string `json:"roomId"`
	InviteCode string `json:"inviteCode"`
}

type RoomJoinedData struct {
	RoomID string     `json:"roomId"`
	Peers  []PeerInfo `json:"peers"`
}

type PeerJoinedData struct {
	RoomID string   `json:"roomId"`
	Peer   PeerInfo `json:"peer"`
}

type PeerLeftData struct {
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

type PeerUpdatedData struct {
	RoomID string   `json:"roomId"`
	Peer   PeerInfo `json:"peer"`
}

type RoomSummary struct {
	RoomID   string `json:"roomId"`
	Name     string `json:"name"`
	PeerCount int   `json:"peerCount"`
	HasPassword bool `json:"hasPassword"`
}

type RoomListData struct {
	Rooms []RoomSummary `json:"rooms"`
}

type ErrorData struct {
	Message string `json:"message"`
}

// Encode wraps a typed payload into an Envelope and marshals it.
func Encode(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("signaling: encode %s: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// Decode parses the envelope's type tag without touching Data, so the
// caller can dispatch on Type before unmarshaling the payload.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("signaling: decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals an envelope's Data into dst.
func DecodePayload(env Envelope, dst any) error {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("signaling: decode payload for %s: %w", env.Type, err)
	}
	return nil
}
