// Package e2ee defines the pluggable end-to-end encryption surface the
// client's key exchange uses, plus a default Curve25519/SHA-256/AES-ECB
// provider. Callers may substitute their own Provider; the default one is
// deliberately not NaCl's box construction (which derives its key via
// hsalsa20), matching the wire format the server actually expects.
package e2ee

import (
	"crypto/aes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

// KeyPair is a Curve25519 key pair used for one key-exchange session.
type KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// Provider performs the key-exchange math and symmetric encrypt/decrypt
// steps the login PIN/certificate flows need. Implementations must be safe
// for concurrent use across independent calls (no shared mutable state).
type Provider interface {
	GenerateKeyPair() (*KeyPair, error)
	SharedSecret(priv [32]byte, peerPub [32]byte) ([32]byte, error)
	DeriveKey(secret [32]byte) ([]byte, error)
	Decrypt(key, ciphertext []byte) ([]byte, error)
	Encrypt(key, plaintext []byte) ([]byte, error)
}

// DefaultProvider implements raw X25519 scalar multiplication, a plain
// SHA-256 KDF over the shared secret (not NaCl's hsalsa20), and AES in ECB
// mode over 16-byte-aligned blocks — the scheme the PIN-blob exchange uses.
type DefaultProvider struct{}

func NewDefaultProvider() *DefaultProvider { return &DefaultProvider{} }

func (DefaultProvider) GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return nil, lineerr.Wrap(lineerr.KindConfig, "generate e2ee private key", err)
	}
	// Clamp per RFC 7748 so the scalar lands in the safe subgroup.
	kp.Private[0] &= 248
	kp.Private[31] &= 127
	kp.Private[31] |= 64

	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindConfig, "derive e2ee public key", err)
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

func (DefaultProvider) SharedSecret(priv [32]byte, peerPub [32]byte) ([32]byte, error) {
	var out [32]byte
	shared, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return out, lineerr.Wrap(lineerr.KindConfig, "compute shared secret", err)
	}
	copy(out[:], shared)
	return out, nil
}

// DeriveKey runs SHA-256 over the raw shared secret to produce the AES key,
// unlike NaCl's box construction which runs hsalsa20 over it instead.
func (DefaultProvider) DeriveKey(secret [32]byte) ([]byte, error) {
	sum := sha256.Sum256(secret[:])
	return sum[:], nil
}

func (DefaultProvider) Decrypt(key, ciphertext []byte) ([]byte, error) {
	return ecbCrypt(key, ciphertext, false)
}

func (DefaultProvider) Encrypt(key, plaintext []byte) ([]byte, error) {
	return ecbCrypt(key, plaintext, true)
}

func ecbCrypt(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "init aes cipher", err)
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, lineerr.New(lineerr.KindCodec, fmt.Sprintf("ciphertext length %d not a multiple of block size %d", len(data), bs))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		if encrypt {
			block.Encrypt(out[i:i+bs], data[i:i+bs])
		} else {
			block.Decrypt(out[i:i+bs], data[i:i+bs])
		}
	}
	return out, nil
}

var _ Provider = DefaultProvider{}
