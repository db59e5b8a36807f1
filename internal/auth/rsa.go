package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
)

// RSAKeyInfo is the server-issued key used to encrypt the credential
// envelope for both email login flows. There is no ecosystem RSA-over-Thrift
// helper in scope here, so the encryption step below reaches directly for
// crypto/rsa and math/big — genuinely the only concern in this package with
// no third-party counterpart in the corpus.
type RSAKeyInfo struct {
	KeyNm      string
	NValue     string
	EValue     string
	SessionKey string
}

// getRSAKeyInfo fetches the current RSA key for the given identity provider.
func (c *Client) getRSAKeyInfo(ctx context.Context, provider int32) (*RSAKeyInfo, error) {
	inner := &thrift.Struct{}
	inner.Set(2, thrift.I32(provider))
	args := &thrift.Struct{}
	args.Set(1, thrift.Struc(inner))

	v, err := c.callBinary(ctx, talkEndpoint, "getRSAKeyInfo", args, false)
	if err != nil {
		return nil, err
	}
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return nil, lineerr.New(lineerr.KindCodec, "getRSAKeyInfo: empty response")
	}

	info := &RSAKeyInfo{}
	if f, ok := v.Struct.Get(1); ok {
		info.KeyNm = f.AsString()
	}
	if f, ok := v.Struct.Get(2); ok {
		info.NValue = f.AsString()
	}
	if f, ok := v.Struct.Get(3); ok {
		info.EValue = f.AsString()
	}
	if f, ok := v.Struct.Get(4); ok {
		info.SessionKey = f.AsString()
	}
	if info.NValue == "" || info.EValue == "" {
		return nil, lineerr.New(lineerr.KindCodec, "getRSAKeyInfo: missing modulus/exponent")
	}
	return info, nil
}

// buildCredentialEnvelope concatenates sessionKey, email and password, each
// prefixed by a single length byte, matching the envelope the RSA-encrypted
// login message carries.
func buildCredentialEnvelope(sessionKey, email, password string) string {
	var b strings.Builder
	b.WriteByte(byte(len(sessionKey)))
	b.WriteString(sessionKey)
	b.WriteByte(byte(len(email)))
	b.WriteString(email)
	b.WriteByte(byte(len(password)))
	b.WriteString(password)
	return b.String()
}

// encryptCredentialEnvelope RSA-PKCS#1v1.5-encrypts message under the
// server's key and hex-encodes the ciphertext the way the wire format
// expects it.
func encryptCredentialEnvelope(message, nvalueHex, evalueHex string) (string, error) {
	n, ok := new(big.Int).SetString(nvalueHex, 16)
	if !ok {
		return "", lineerr.New(lineerr.KindCodec, "rsa modulus is not valid hex")
	}
	e, ok := new(big.Int).SetString(evalueHex, 16)
	if !ok {
		return "", lineerr.New(lineerr.KindCodec, "rsa exponent is not valid hex")
	}
	pub := &rsa.PublicKey{N: n, E: int(e.Int64())}

	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(message))
	if err != nil {
		return "", lineerr.Wrap(lineerr.KindCodec, "rsa-encrypt credential envelope", err)
	}
	return hex.EncodeToString(ciphertext), nil
}
