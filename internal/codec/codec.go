// Package codec abstracts PCM encoding from the optional Opus codec, which
// is only compiled in when the opus build tag is set (it links against
// libopus via cgo).
package codec

// Codec converts between float32 PCM samples and wire-format payloads.
type Codec interface {
	// Name identifies the codec for logging and negotiation.
	Name() string
	// Encode converts one frame of PCM samples into a wire payload.
	Encode(pcm []float32) ([]byte, error)
	// Decode converts a wire payload back into PCM samples.
	Decode(payload []byte) ([]float32, error)
	// DecodePLC synthesizes a concealment frame for a payload that was
	// never received, using the codec's own loss-concealment if it has one.
	DecodePLC() ([]float32, error)
	// FrameSize is the number of PCM samples this codec expects per frame.
	FrameSize() int
}

// pcmCodec is the always-available passthrough codec: samples are carried
// as raw little-endian float32 bytes, so encode/decode cost is a single copy.
type pcmCodec struct {
	frameSize int
}

// NewPCM creates a passthrough PCM codec for the given frame size.
func NewPCM(frameSize int) Codec {
	return &pcmCodec{frameSize: frameSize}
}

func (c *pcmCodec) Name() string     { return "pcm" }
func (c *pcmCodec) FrameSize() int   { return c.frameSize }

func (c *pcmCodec) Encode(pcm []float32) ([]byte, error) {
	out := make([]byte, len(pcm)*4)
	for i, s := range pcm {
		putFloat32(out[i*4:], s)
	}
	return out, nil
}

func (c *pcmCodec) Decode(payload []byte) ([]float32, error) {
	n := len(payload) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = getFloat32(payload[i*4:])
	}
	return out, nil
}

// DecodePLC for PCM returns silence; real concealment is layered on top by
// the plc package, which needs the last good frame the codec can't see.
func (c *pcmCodec) DecodePLC() ([]float32, error) {
	return make([]float32, c.frameSize), nil
}
