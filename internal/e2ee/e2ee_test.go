package e2ee

import (
	"bytes"
	"testing"
)

func TestSharedSecretAgreesBetweenPeers(t *testing.T) {
	p := NewDefaultProvider()
	alice, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate alice: %v", err)
	}
	bob, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate bob: %v", err)
	}

	s1, err := p.SharedSecret(alice.Private, bob.Public)
	if err != nil {
		t.Fatalf("alice shared secret: %v", err)
	}
	s2, err := p.SharedSecret(bob.Private, alice.Public)
	if err != nil {
		t.Fatalf("bob shared secret: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("shared secrets diverge: %x != %x", s1, s2)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := NewDefaultProvider()
	alice, _ := p.GenerateKeyPair()
	bob, _ := p.GenerateKeyPair()
	secret, err := p.SharedSecret(alice.Private, bob.Public)
	if err != nil {
		t.Fatalf("shared secret: %v", err)
	}
	key, err := p.DeriveKey(secret)
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}

	plaintext := []byte("0123456789abcdef") // exactly one AES block
	ct, err := p.Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := p.Decrypt(key, ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
	}
}

func TestDecryptRejectsUnalignedCiphertext(t *testing.T) {
	p := NewDefaultProvider()
	key := make([]byte, 32)
	if _, err := p.Decrypt(key, []byte("short")); err == nil {
		t.Fatal("expected error for unaligned ciphertext")
	}
}
