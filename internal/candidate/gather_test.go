package candidate

import (
	"net"
	"testing"
)

func TestPriorityOrdersHostAboveServerReflexive(t *testing.T) {
	host := NewCandidate(&net.UDPAddr{IP: net.IPv4(192, 168, 1, 2), Port: 1}, Host)
	refl := NewCandidate(&net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 1}, ServerReflexive)
	if host.Priority <= refl.Priority {
		t.Fatalf("host priority %d should exceed server-reflexive priority %d", host.Priority, refl.Priority)
	}
}

func TestPriorityRanksIPv6AboveIPv4WithinType(t *testing.T) {
	v4 := NewCandidate(&net.UDPAddr{IP: net.IPv4(192, 168, 1, 2), Port: 1}, Host)
	v6 := NewCandidate(&net.UDPAddr{IP: net.ParseIP("fe80::1234"), Port: 1}, Host)
	if v6.Priority <= v4.Priority {
		t.Fatalf("ipv6 priority %d should exceed ipv4 priority %d within the same type", v6.Priority, v4.Priority)
	}
}

func TestGatherAlwaysCompletesWithHostCandidates(t *testing.T) {
	cands := Gather(5000, nil)
	// There may be zero interfaces in a minimal sandbox, but the call must
	// return promptly without blocking and without a STUN server configured.
	for i := 1; i < len(cands); i++ {
		if cands[i].Priority > cands[i-1].Priority {
			t.Fatalf("candidates not sorted descending by priority at index %d", i)
		}
	}
}
