package protocol

import "encoding/binary"

// DefaultGroupSize is the default number of data packets XOR-combined into
// one FEC packet (N in spec terms).
const DefaultGroupSize = 4

// fecHeaderFixed is group-sequence(4) + packet-count(1) + reserved(1).
const fecHeaderFixed = 6

// FecPacket is the payload carried inside a Type=TypeFEC packet: the XOR of
// up to N original audio payloads, zero-padded to the longest member, plus
// enough metadata to recover exactly one missing member.
type FecPacket struct {
	GroupSequence uint32
	Count         uint8
	Lengths       []uint16 // per-member original length, len(Lengths) == Count
	Data          []byte   // XOR of all members, padded to max(Lengths)
}

// EncodeFec serializes an FecPacket to bytes.
func EncodeFec(f *FecPacket) []byte {
	buf := make([]byte, fecHeaderFixed+2*len(f.Lengths)+len(f.Data))
	binary.BigEndian.PutUint32(buf[0:4], f.GroupSequence)
	buf[4] = f.Count
	buf[5] = 0 // reserved
	off := fecHeaderFixed
	for _, l := range f.Lengths {
		binary.BigEndian.PutUint16(buf[off:off+2], l)
		off += 2
	}
	copy(buf[off:], f.Data)
	return buf
}

// DecodeFec parses bytes produced by EncodeFec.
func DecodeFec(b []byte) (*FecPacket, bool) {
	if len(b) < fecHeaderFixed {
		return nil, false
	}
	count := int(b[4])
	need := fecHeaderFixed + 2*count
	if len(b) < need {
		return nil, false
	}
	f := &FecPacket{
		GroupSequence: binary.BigEndian.Uint32(b[0:4]),
		Count:         b[4],
		Lengths:       make([]uint16, count),
	}
	off := fecHeaderFixed
	for i := 0; i < count; i++ {
		f.Lengths[i] = binary.BigEndian.Uint16(b[off : off+2])
		off += 2
	}
	f.Data = append([]byte(nil), b[off:]...)
	return f, true
}

func xorInto(dst, src []byte) {
	for i, bb := range src {
		if i >= len(dst) {
			return
		}
		dst[i] ^= bb
	}
}

func maxLen(members [][]byte) int {
	m := 0
	for _, mm := range members {
		if len(mm) > m {
			m = len(mm)
		}
	}
	return m
}

// BuildFecPacket XORs the members of a group (padded to the longest member)
// and records each member's true length for later truncation on recovery.
func BuildFecPacket(groupSeq uint32, members [][]byte) *FecPacket {
	width := maxLen(members)
	data := make([]byte, width)
	lengths := make([]uint16, len(members))
	for i, m := range members {
		lengths[i] = uint16(len(m))
		xorInto(data, m)
	}
	return &FecPacket{
		GroupSequence: groupSeq,
		Count:         uint8(len(members)),
		Lengths:       lengths,
		Data:          data,
	}
}

// groupState tracks the members seen so far for one FEC group on the decode side.
type groupState struct {
	groupSeq  uint32
	members   [][]byte // nil entry = missing
	present   int
	fec       *FecPacket
	recovered bool
}

// GroupCapacity bounds how many concurrent group states the Decoder retains.
const GroupCapacity = 16

// Decoder reassembles FEC groups and recovers at most one missing member per group.
type Decoder struct {
	groupSize int
	groups    map[uint32]*groupState
	order     []uint32 // insertion order for bounded eviction
}

// NewDecoder creates a Decoder for groups of groupSize members.
func NewDecoder(groupSize int) *Decoder {
	if groupSize < 1 {
		groupSize = DefaultGroupSize
	}
	return &Decoder{
		groupSize: groupSize,
		groups:    make(map[uint32]*groupState),
	}
}

func (d *Decoder) stateFor(groupSeq uint32) *groupState {
	g, ok := d.groups[groupSeq]
	if ok {
		return g
	}
	g = &groupState{groupSeq: groupSeq, members: make([][]byte, d.groupSize)}
	d.groups[groupSeq] = g
	d.order = append(d.order, groupSeq)
	for len(d.order) > GroupCapacity {
		evict := d.order[0]
		d.order = d.order[1:]
		delete(d.groups, evict)
	}
	return g
}

// Recovered describes one member reconstructed from an FEC group.
type Recovered struct {
	Group uint32
	Index int
	Data  []byte
}

// PushMember records a received original (non-FEC) member at the given
// index within its group, and attempts recovery if this completes the
// group minus exactly one missing slot.
func (d *Decoder) PushMember(groupSeq uint32, index int, data []byte) *Recovered {
	if index < 0 || index >= d.groupSize {
		return nil
	}
	g := d.stateFor(groupSeq)
	if g.members[index] == nil {
		g.present++
	}
	g.members[index] = data
	return d.tryRecover(g)
}

// PushFec records the FEC packet for a group and attempts recovery.
func (d *Decoder) PushFec(f *FecPacket) *Recovered {
	g := d.stateFor(f.GroupSequence)
	g.fec = f
	return d.tryRecover(g)
}

func (d *Decoder) tryRecover(g *groupState) *Recovered {
	if g.recovered || g.fec == nil {
		return nil
	}
	missing := -1
	missingCount := 0
	for i, m := range g.members {
		if m == nil {
			missingCount++
			missing = i
		}
	}
	if missingCount != 1 {
		return nil // zero missing (nothing to do) or 2+ missing (unrecoverable)
	}
	width := len(g.fec.Data)
	recovered := make([]byte, width)
	copy(recovered, g.fec.Data)
	for i, m := range g.members {
		if i == missing {
			continue
		}
		xorInto(recovered, m)
	}
	if missing < len(g.fec.Lengths) {
		l := int(g.fec.Lengths[missing])
		if l <= len(recovered) {
			recovered = recovered[:l]
		}
	}
	g.recovered = true
	g.members[missing] = recovered
	return &Recovered{Group: g.groupSeq, Index: missing, Data: recovered}
}

// Encoder accumulates packets into fixed-size groups and emits an FecPacket
// once a group fills.
type Encoder struct {
	groupSize int
	groupSeq  uint32
	members   [][]byte
}

// NewEncoder creates an Encoder that emits an FEC packet every groupSize members.
func NewEncoder(groupSize int) *Encoder {
	if groupSize < 1 {
		groupSize = DefaultGroupSize
	}
	return &Encoder{groupSize: groupSize}
}

// Push adds one payload to the current group. It returns the completed
// FecPacket when the group reaches groupSize, or nil otherwise.
func (e *Encoder) Push(payload []byte) *FecPacket {
	e.members = append(e.members, append([]byte(nil), payload...))
	if len(e.members) < e.groupSize {
		return nil
	}
	f := BuildFecPacket(e.groupSeq, e.members)
	e.groupSeq++
	e.members = nil
	return f
}
