// Package invite generates short, visually-unambiguous codes for rooms and
// invites: the alphabet excludes characters that are easy to confuse when
// read aloud or typed by hand (0/O, 1/I/L).
package invite

import (
	"crypto/rand"
	"strings"
)

// alphabet is Crockford-style base32 minus the visually ambiguous
// characters 0, 1, I, L, O.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// RoomIDLength is the length of a generated room identifier.
const RoomIDLength = 8

// CodeLength is the length of a generated invite code.
const CodeLength = 6

func random(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// NewRoomID generates a fresh room identifier.
func NewRoomID() (string, error) { return random(RoomIDLength) }

// NewCode generates a fresh invite code.
func NewCode() (string, error) { return random(CodeLength) }

// Valid reports whether s is composed entirely of characters from the
// invite alphabet (case-insensitive) and is non-empty.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	upper := strings.ToUpper(s)
	for _, r := range upper {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}

// Normalize upper-cases a user-entered code for comparison.
func Normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
