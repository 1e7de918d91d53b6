//go:build opus

package codec

import "gopkg.in/hraban/opus.v2"

const opusSampleRate = 48000
const opusChannels = 1
const opusMaxPacketBytes = 1275 // RFC 6716 max Opus packet size

// opusCodec wraps libopus with the LowDelay application profile, which
// trades compression efficiency for the smallest achievable algorithmic
// delay.
type opusCodec struct {
	frameSize int
	encoder   *opus.Encoder
	decoder   *opus.Decoder
	pcmBuf    []int16
}

// NewOpus creates an Opus codec for the given PCM frame size in samples.
func NewOpus(frameSize int) (Codec, error) {
	enc, err := opus.NewEncoder(opusSampleRate, opusChannels, opus.AppRestrictedLowdelay)
	if err != nil {
		return nil, err
	}
	if err := enc.SetInBandFEC(true); err != nil {
		return nil, err
	}

	dec, err := opus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, err
	}

	return &opusCodec{frameSize: frameSize, encoder: enc, decoder: dec, pcmBuf: make([]int16, frameSize)}, nil
}

func (c *opusCodec) Name() string   { return "opus" }
func (c *opusCodec) FrameSize() int { return c.frameSize }

func (c *opusCodec) Encode(pcm []float32) ([]byte, error) {
	for i, s := range pcm {
		c.pcmBuf[i] = floatToInt16(s)
	}
	out := make([]byte, opusMaxPacketBytes)
	n, err := c.encoder.Encode(c.pcmBuf, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (c *opusCodec) Decode(payload []byte) ([]float32, error) {
	n, err := c.decoder.Decode(payload, c.pcmBuf)
	if err != nil {
		return nil, err
	}
	return int16ToFloat(c.pcmBuf[:n]), nil
}

// DecodePLC asks libopus to synthesize a concealment frame for a packet
// that was never received, by decoding with a nil payload.
func (c *opusCodec) DecodePLC() ([]float32, error) {
	n, err := c.decoder.Decode(nil, c.pcmBuf)
	if err != nil {
		return nil, err
	}
	return int16ToFloat(c.pcmBuf[:n]), nil
}

func floatToInt16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

func int16ToFloat(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768
	}
	return out
}
