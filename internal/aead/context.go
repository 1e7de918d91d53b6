// Package aead derives per-connection encryption keys from an X25519 key
// exchange and seals/opens audio payloads with AES-GCM. Keys and nonce
// prefixes are direction-specific so the two ends of a connection never
// reuse a nonce under the same key.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the X25519 scalar/point size in bytes.
const KeySize = 32

// ErrAuthFailed is returned when Open fails authentication; the caller must
// drop the packet, not retry with the same ciphertext.
var ErrAuthFailed = errors.New("aead: authentication failed")

const (
	labelInitiatorToResponder = "netjam audio i2r"
	labelResponderToInitiator = "netjam audio r2i"
)

// GenerateKeyPair returns a fresh X25519 private/public scalar pair.
func GenerateKeyPair() (priv, pub [KeySize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, priv[:]); err != nil {
		return priv, pub, err
	}
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// Context holds the two direction-specific AEAD keys and nonce prefixes
// derived for one established connection.
type Context struct {
	sendAEAD   cipher.AEAD
	recvAEAD   cipher.AEAD
	sendPrefix [4]byte
	recvPrefix [4]byte
}

// Derive computes shared secret = X25519(priv, peerPub), then HKDF-SHA256
// expands it into send/receive keys and nonce prefixes. isInitiator selects
// which direction label this side sends under.
func Derive(priv [KeySize]byte, peerPub [KeySize]byte, isInitiator bool) (*Context, error) {
	secret, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return nil, err
	}

	i2r, err := expand(secret, labelInitiatorToResponder, 32+4)
	if err != nil {
		return nil, err
	}
	r2i, err := expand(secret, labelResponderToInitiator, 32+4)
	if err != nil {
		return nil, err
	}

	sendMat, recvMat := i2r, r2i
	if !isInitiator {
		sendMat, recvMat = r2i, i2r
	}

	sendAEAD, err := newGCM(sendMat[:32])
	if err != nil {
		return nil, err
	}
	recvAEAD, err := newGCM(recvMat[:32])
	if err != nil {
		return nil, err
	}

	ctx := &Context{sendAEAD: sendAEAD, recvAEAD: recvAEAD}
	copy(ctx.sendPrefix[:], sendMat[32:36])
	copy(ctx.recvPrefix[:], recvMat[32:36])
	return ctx, nil
}

func expand(secret []byte, label string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(label))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// nonce builds the 12-byte GCM nonce: 4-byte direction prefix, 4-byte
// big-endian sequence, 4 zero bytes.
func nonce(prefix [4]byte, seq uint32) [12]byte {
	var n [12]byte
	copy(n[0:4], prefix[:])
	binary.BigEndian.PutUint32(n[4:8], seq)
	return n
}

// Seal encrypts plaintext for sequence seq, authenticating it under this
// context's send key.
func (c *Context) Seal(seq uint32, plaintext []byte) []byte {
	n := nonce(c.sendPrefix, seq)
	return c.sendAEAD.Seal(nil, n[:], plaintext, nil)
}

// Open decrypts ciphertext received at sequence seq. ErrAuthFailed means the
// packet must be dropped.
func (c *Context) Open(seq uint32, ciphertext []byte) ([]byte, error) {
	n := nonce(c.recvPrefix, seq)
	out, err := c.recvAEAD.Open(nil, n[:], ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return out, nil
}
