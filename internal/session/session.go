// Package session manages a local peer's set of active connections,
// fanning outgoing audio out to every peer and mixing incoming audio from
// all of them into one monitor stream.
package session

import (
	"log"
	"math"
	"sync"

	"netjam/internal/connection"
)

// MaxPeers bounds how many simultaneous connections one session holds.
const MaxPeers = 10

// Session owns a set of peer connections and mixes their audio.
type Session struct {
	mu    sync.RWMutex
	peers map[string]*connection.Connection

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates an empty session.
func New() *Session {
	return &Session{
		peers:  make(map[string]*connection.Connection),
		stopCh: make(chan struct{}),
	}
}

// AddPeer registers a connection under peerID. Returns false if the session
// is already at MaxPeers.
func (s *Session) AddPeer(peerID string, conn *connection.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) >= MaxPeers {
		return false
	}
	s.peers[peerID] = conn
	log.Printf("[session] peer %s added, total=%d", peerID, len(s.peers))
	return true
}

// RemovePeer drops a connection from the session.
func (s *Session) RemovePeer(peerID string) {
	s.mu.Lock()
	_, existed := s.peers[peerID]
	delete(s.peers, peerID)
	total := len(s.peers)
	s.mu.Unlock()
	if existed {
		log.Printf("[session] peer %s removed, total=%d", peerID, total)
	}
}

// PeerIDs returns the currently registered peer IDs.
func (s *Session) PeerIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.peers))
	for id := range s.peers {
		out = append(out, id)
	}
	return out
}

// BroadcastAudio sends payload to every connected peer.
func (s *Session) BroadcastAudio(payload []byte, timestamp uint32) {
	s.mu.RLock()
	targets := make([]*connection.Connection, 0, len(s.peers))
	for _, c := range s.peers {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	for _, c := range targets {
		if err := c.SendAudio(payload, timestamp); err != nil {
			log.Printf("[session] send failed: %v", err)
		}
	}
}

// SendAudioTo sends payload only to the named peer. A peerID that doesn't
// match any registered peer is dropped with a log line rather than an error,
// since the caller has no connection object to hand the failure back to.
func (s *Session) SendAudioTo(peerID string, payload []byte, timestamp uint32) {
	s.mu.RLock()
	c, ok := s.peers[peerID]
	s.mu.RUnlock()
	if !ok {
		log.Printf("[session] dropped audio for unknown peer %s", peerID)
		return
	}
	if err := c.SendAudio(payload, timestamp); err != nil {
		log.Printf("[session] send to %s failed: %v", peerID, err)
	}
}

// softClip bends the mixed signal smoothly toward ±1 instead of hard
// clipping: linear below 0.5 magnitude, exponential approach to 1 above it.
func softClip(x float64) float64 {
	abs := math.Abs(x)
	if abs < 0.5 {
		return x
	}
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	return sign * (1 - 0.5*math.Exp(-4*(abs-0.5)))
}

// Mix averages one frame from each input and applies softClip per sample.
// The output is as long as the longest input; shorter inputs are treated as
// silence for the remaining samples and still count toward the average.
func Mix(frames [][]float32) []float32 {
	if len(frames) == 0 {
		return nil
	}
	maxLen := 0
	for _, f := range frames {
		if len(f) > maxLen {
			maxLen = len(f)
		}
	}

	out := make([]float32, maxLen)
	for _, f := range frames {
		for i, v := range f {
			out[i] += v
		}
	}
	n := float32(len(frames))
	for i, v := range out {
		out[i] = float32(softClip(float64(v / n)))
	}
	return out
}

// Stop tears down every peer connection. Safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		peers := s.peers
		s.peers = make(map[string]*connection.Connection)
		s.mu.Unlock()

		for id, c := range peers {
			c.Disconnect()
			log.Printf("[session] peer %s disconnected on stop", id)
		}
	})
}
