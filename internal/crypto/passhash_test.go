package crypto

import (
	"bytes"
	"testing"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, err := RandBytes(n)
	if err != nil {
		t.Fatalf("RandBytes(2): %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two subsequent RandBytes(%d) are equal", n)
	}
}

func TestHashSecret_DeterministicOnSameInput(t *testing.T) {
	t.Parallel()

	secret := []byte("s3cret-admin")
	salt := []byte("NaCl-16-bytes?")

	h1 := HashSecret(secret, salt)
	h2 := HashSecret(secret, salt)
	if !bytes.Equal(h1, h2) || len(h1) != 32 {
		t.Fatalf("hash not deterministic or wrong length: %d", len(h1))
	}
	if bytes.Equal(h1, HashSecret(secret, []byte("another-salt----"))) {
		t.Fatalf("hash should differ when salt differs")
	}
	if bytes.Equal(h1, HashSecret([]byte("s3cret-admin!"), salt)) {
		t.Fatalf("hash should differ when secret differs")
	}
}

func TestVerifySecret(t *testing.T) {
	t.Parallel()

	secret := []byte("correct horse battery staple")
	salt := []byte("salty-salt-123456")
	hash := HashSecret(secret, salt)

	if !VerifySecret(secret, salt, hash) {
		t.Fatalf("VerifySecret: expected true for correct secret")
	}
	if VerifySecret([]byte("wrong"), salt, hash) {
		t.Fatalf("VerifySecret: expected false for wrong secret")
	}
	if VerifySecret(secret, []byte("wrong-salt"), hash) {
		t.Fatalf("VerifySecret: expected false for wrong salt")
	}
	if VerifySecret(secret, salt, nil) {
		t.Fatalf("VerifySecret: expected false when no hash is configured")
	}
}

func TestNewSecretHash_RoundTrip(t *testing.T) {
	t.Parallel()

	hashHex, saltHex, err := NewSecretHash("let-me-in")
	if err != nil {
		t.Fatalf("NewSecretHash: %v", err)
	}
	hash, salt, err := DecodeSecretHash(hashHex, saltHex)
	if err != nil {
		t.Fatalf("DecodeSecretHash: %v", err)
	}
	if !VerifySecret([]byte("let-me-in"), salt, hash) {
		t.Fatalf("decoded hash does not verify")
	}

	if _, _, err := NewSecretHash(""); err == nil {
		t.Fatalf("want error for empty secret")
	}
	if _, _, err := DecodeSecretHash("zz", saltHex); err == nil {
		t.Fatalf("want error for bad hex")
	}
	if _, _, err := DecodeSecretHash("abcd", saltHex); err == nil {
		t.Fatalf("want error for short hash")
	}
}
