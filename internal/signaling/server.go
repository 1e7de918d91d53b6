package signaling

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"netjam/internal/invite"
)

// MaxPeersPerRoom bounds how many peers a single room holds.
const MaxPeersPerRoom = 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// peerConn is one connected signaling client.
type peerConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes to conn
	info PeerInfo
}

func (p *peerConn) send(msgType string, payload any) error {
	raw, err := Encode(msgType, payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, raw)
}

// room holds the peers currently present plus the metadata needed to look
// it up and gate entry.
type room struct {
	mu         sync.RWMutex
	id         string
	name       string
	password   string
	inviteCode string
	peers      map[string]*peerConn
}

func (r *room) peerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *room) hasPassword() bool {
	return r.password != ""
}

// Server is the in-memory signaling room registry. One Server instance
// backs the whole process; rooms are created and destroyed as peers join
// and leave.
type Server struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

// NewServer creates an empty room registry.
func NewServer() *Server {
	return &Server{rooms: make(map[string]*room)}
}

// ServeHTTP upgrades the request to a WebSocket and runs the per-connection
// read loop until the peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[signaling] upgrade failed: %v", err)
		return
	}
	s.handleConn(conn)
}

func (s *Server) handleConn(conn *websocket.Conn) {
	defer conn.Close()

	peer := &peerConn{conn: conn}
	var joinedRoom *room

	defer func() {
		if joinedRoom != nil {
			s.leaveRoom(joinedRoom, peer)
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := Decode(raw)
		if err != nil {
			peer.send(TypeError, ErrorData{Message: "malformed message"})
			continue
		}

		switch env.Type {
		case TypeCreateRoom:
			var data CreateRoomData
			if err := DecodePayload(env, &data); err != nil {
				peer.send(TypeError, ErrorData{Message: err.Error()})
				continue
			}
			r, err := s.createRoom(data, peer)
			if err != nil {
				peer.send(TypeError, ErrorData{Message: err.Error()})
				continue
			}
			joinedRoom = r

		case TypeJoinRoom:
			var data JoinRoomData
			if err := DecodePayload(env, &data); err != nil {
				peer.send(TypeError, ErrorData{Message: err.Error()})
				continue
			}
			r, err := s.joinRoom(data, peer)
			if err != nil {
				peer.send(TypeError, ErrorData{Message: err.Error()})
				continue
			}
			joinedRoom = r

		case TypeLeaveRoom:
			if joinedRoom != nil {
				s.leaveRoom(joinedRoom, peer)
				joinedRoom = nil
			}

		case TypeUpdatePeer:
			var data UpdatePeerInfoData
			if err := DecodePayload(env, &data); err != nil {
				peer.send(TypeError, ErrorData{Message: err.Error()})
				continue
			}
			if joinedRoom != nil {
				s.updatePeer(joinedRoom, peer, data.Peer)
			}

		case TypeListRooms:
			peer.send(TypeRoomList, RoomListData{Rooms: s.listRooms()})

		case TypeChatMessage:
			var data ChatMessageData
			if err := DecodePayload(env, &data); err != nil {
				peer.send(TypeError, ErrorData{Message: err.Error()})
				continue
			}
			if joinedRoom != nil {
				s.broadcastChat(joinedRoom, peer, data.Message)
			}

		default:
			peer.send(TypeError, ErrorData{Message: fmt.Sprintf("unknown message type %q", env.Type)})
		}
	}
}

func (s *Server) createRoom(data CreateRoomData, peer *peerConn) (*room, error) {
	id, err := invite.NewRoomID()
	if err != nil {
		return nil, fmt.Errorf("generate room id: %w", err)
	}
	code, err := invite.NewCode()
	if err != nil {
		return nil, fmt.Errorf("generate invite code: %w", err)
	}

	r := &room{
		id:         id,
		name:       data.Name,
		password:   data.Password,
		inviteCode: code,
		peers:      make(map[string]*peerConn),
	}
	peer.info = data.Peer
	r.peers[data.Peer.ID] = peer

	s.mu.Lock()
	s.rooms[id] = r
	s.mu.Unlock()

	log.Printf("[signaling] room %s created by %s", id, data.Peer.Name)
	peer.send(TypeRoomCreated, RoomCreatedData{RoomID: id, InviteCode: code})
	return r, nil
}

var (
	errRoomNotFound   = fmt.Errorf("room not found")
	errWrongPassword  = fmt.Errorf("incorrect password")
	errRoomFull       = fmt.Errorf("room is full")
)

func (s *Server) lookupRoom(id string) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

func (s *Server) joinRoom(data JoinRoomData, peer *peerConn) (*room, error) {
	r, ok := s.lookupRoom(data.RoomID)
	if !ok {
		return nil, errRoomNotFound
	}

	r.mu.Lock()
	if r.hasPassword() && r.password != data.Password {
		r.mu.Unlock()
		return nil, errWrongPassword
	}
	if len(r.peers) >= MaxPeersPerRoom {
		r.mu.Unlock()
		return nil, errRoomFull
	}

	existing := make([]PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		existing = append(existing, p.info)
	}
	peer.info = data.Peer
	r.peers[data.Peer.ID] = peer
	r.mu.Unlock()

	log.Printf("[signaling] %s joined room %s, total=%d", data.Peer.Name, r.id, r.peerCount())

	peer.send(TypeRoomJoined, RoomJoinedData{RoomID: r.id, Peers: existing})
	s.broadcastExcept(r, data.Peer.ID, TypePeerJoined, PeerJoinedData{RoomID: r.id, Peer: data.Peer})
	return r, nil
}

func (s *Server) leaveRoom(r *room, peer *peerConn) {
	r.mu.Lock()
	if r.peers[peer.info.ID] != peer {
		r.mu.Unlock()
		return
	}
	delete(r.peers, peer.info.ID)
	empty := len(r.peers) == 0
	r.mu.Unlock()

	log.Printf("[signaling] %s left room %s", peer.info.Name, r.id)
	s.broadcastExcept(r, peer.info.ID, TypePeerLeft, PeerLeftData{RoomID: r.id, PeerID: peer.info.ID})

	if empty {
		s.mu.Lock()
		delete(s.rooms, r.id)
		s.mu.Unlock()
		log.Printf("[signaling] room %s removed (empty)", r.id)
	}
}

func (s *Server) updatePeer(r *room, peer *peerConn, info PeerInfo) {
	r.mu.Lock()
	peer.info = info
	r.mu.Unlock()
	s.broadcastExcept(r, info.ID, TypePeerUpdated, PeerUpdatedData{RoomID: r.id, Peer: info})
}

// broadcastChat relays message to every peer in the room, including the
// sender: the sender can't be excluded server-side without knowing which
// connection the client considers "itself" across reconnects, so senderId is
// carried on the wire and clients filter their own echo back out.
func (s *Server) broadcastChat(r *room, from *peerConn, message string) {
	s.broadcastExcept(r, "", TypeChatMessage, ChatMessageData{
		RoomID:      r.id,
		Message:     message,
		SenderID:    from.info.ID,
		SenderName:  from.info.Name,
		TimestampMs: time.Now().UnixMilli(),
	})
}

// broadcastExcept sends payload to every peer in r except excludeID,
// snapshotting targets under the room's read lock so no send happens while
// the lock is held.
func (s *Server) broadcastExcept(r *room, excludeID, msgType string, payload any) {
	r.mu.RLock()
	targets := make([]*peerConn, 0, len(r.peers))
	for id, p := range r.peers {
		if id == excludeID {
			continue
		}
		targets = append(targets, p)
	}
	r.mu.RUnlock()

	for _, p := range targets {
		if err := p.send(msgType, payload); err != nil {
			log.Printf("[signaling] send to %s failed: %v", p.info.ID, err)
		}
	}
}

// listRooms returns a summary of every open room.
func (s *Server) listRooms() []RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, RoomSummary{
			RoomID:      r.id,
			Name:        r.name,
			PeerCount:   r.peerCount(),
			HasPassword: r.hasPassword(),
		})
	}
	return out
}
