package aead

import "testing"

func mustDeriveContexts(t *testing.T) (initCtx, respCtx *Context) {
	t.Helper()
	iPriv, iPub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("initiator keypair: %v", err)
	}
	rPriv, rPub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("responder keypair: %v", err)
	}

	initCtx, err = Derive(iPriv, rPub, true)
	if err != nil {
		t.Fatalf("initiator derive: %v", err)
	}
	respCtx, err = Derive(rPriv, iPub, false)
	if err != nil {
		t.Fatalf("responder derive: %v", err)
	}
	return initCtx, respCtx
}

func TestSealOpenRoundTrip(t *testing.T) {
	initCtx, respCtx := mustDeriveContexts(t)

	plaintext := []byte("twenty bytes of pcm!")
	ct := initCtx.Seal(42, plaintext)
	pt, err := respCtx.Open(42, ct)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(pt) != string(plaintext) {
		t.Fatalf("round trip = %q, want %q", pt, plaintext)
	}
}

func TestDistinctSequencesProduceDistinctCiphertext(t *testing.T) {
	initCtx, _ := mustDeriveContexts(t)
	plaintext := []byte("same payload each time")

	ct1 := initCtx.Seal(1, plaintext)
	ct2 := initCtx.Seal(2, plaintext)
	if string(ct1) == string(ct2) {
		t.Fatalf("ciphertexts at different sequences must differ")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	initCtx, respCtx := mustDeriveContexts(t)
	ct := initCtx.Seal(7, []byte("hello"))
	ct[0] ^= 0xFF

	if _, err := respCtx.Open(7, ct); err != ErrAuthFailed {
		t.Fatalf("open tampered ciphertext err = %v, want ErrAuthFailed", err)
	}
}

func TestOpenRejectsWrongSequence(t *testing.T) {
	initCtx, respCtx := mustDeriveContexts(t)
	ct := initCtx.Seal(7, []byte("hello"))

	if _, err := respCtx.Open(8, ct); err != ErrAuthFailed {
		t.Fatalf("open with wrong sequence err = %v, want ErrAuthFailed", err)
	}
}
