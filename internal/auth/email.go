package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/jkfujinami/linepy/internal/e2ee"
	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
	"github.com/jkfujinami/linepy/internal/transport"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
	minPasswordLn = 6
)

// EmailLoginResult is what a completed loginZ/loginV2 flow returns.
type EmailLoginResult struct {
	Token       TokenInfo
	Certificate string
}

// loginReplyFields is the decoded shape of a loginZ/loginV2 response:
// either an immediate token (legacy authToken, or v3 TokenInfo at field 9)
// or a verifier/pincode pair the caller must resolve via PIN verification.
type loginReplyFields struct {
	authToken   string
	certificate string
	verifier    string
	pincode     string
	tokenInfo   *TokenInfo
}

// LoginWithEmail runs the email/password flow, choosing loginZ or loginV2
// based on the device profile's v3 support. cert is a previously saved
// device certificate (empty on first login); onPIN lets the caller surface
// a PIN to the user when the server demands verification.
func (c *Client) LoginWithEmail(ctx context.Context, creds Credentials, cert string, onPIN PINCallback) (*EmailLoginResult, error) {
	if !emailRegex.MatchString(creds.Email) {
		return nil, lineerr.New(lineerr.KindConfig, "invalid email format")
	}
	if len(creds.Password) < minPasswordLn {
		return nil, lineerr.New(lineerr.KindConfig, "password must be at least 6 characters")
	}

	rsaKey, err := c.getRSAKeyInfo(ctx, 0)
	if err != nil {
		return nil, err
	}
	envelope := buildCredentialEnvelope(rsaKey.SessionKey, creds.Email, creds.Password)
	encrypted, err := encryptCredentialEnvelope(envelope, rsaKey.NValue, rsaKey.EValue)
	if err != nil {
		return nil, err
	}

	var kp *e2ee.KeyPair
	var secretPub []byte
	if c.e2ee != nil {
		kp, err = c.e2ee.GenerateKeyPair()
		if err != nil {
			return nil, lineerr.Wrap(lineerr.KindConfig, "generate e2ee key pair", err)
		}
		secretPub = kp.Public[:]
	}

	v3 := c.profile.SupportsTokenV3()
	method := "loginZ"
	if v3 {
		method = "loginV2"
	}

	reply, err := c.requestLogin(ctx, method, rsaKey.KeyNm, encrypted, "", secretPub, cert)
	if err != nil {
		return nil, err
	}

	if v3 {
		if reply.tokenInfo == nil {
			if onPIN != nil {
				onPIN(reply.pincode)
			}
			verifier, verr := c.verifyEmailPIN(ctx, reply.verifier, true, kp)
			if verr != nil {
				return nil, verr
			}
			reply, err = c.requestLogin(ctx, method, rsaKey.KeyNm, encrypted, verifier, secretPub, cert)
			if err != nil {
				return nil, err
			}
			if reply.tokenInfo == nil {
				return nil, lineerr.New(lineerr.KindAuth, "email login: no token info after pin verification")
			}
		}
		return &EmailLoginResult{Token: *reply.tokenInfo, Certificate: reply.certificate}, nil
	}

	if reply.authToken == "" {
		if onPIN != nil {
			onPIN(reply.pincode)
		}
		verifier, verr := c.verifyEmailPIN(ctx, reply.verifier, kp != nil, kp)
		if verr != nil {
			return nil, verr
		}
		reply, err = c.requestLogin(ctx, method, rsaKey.KeyNm, encrypted, verifier, secretPub, cert)
		if err != nil {
			return nil, err
		}
		if reply.authToken == "" {
			return nil, lineerr.New(lineerr.KindAuth, "email login: no auth token after pin verification")
		}
	}
	return &EmailLoginResult{Token: TokenInfo{AccessToken: reply.authToken}, Certificate: reply.certificate}, nil
}

// requestLogin sends one loginZ/loginV2 attempt. loginType is derived from
// which of secret/verifier is present: 0 plain, 1 verifier retry, 2 e2ee.
func (c *Client) requestLogin(ctx context.Context, method, keynm, encrypted, verifier string, secret []byte, cert string) (*loginReplyFields, error) {
	loginType := int32(0)
	if len(secret) > 0 {
		loginType = 2
	}
	if verifier != "" {
		loginType = 1
	}

	inner := &thrift.Struct{}
	inner.Set(1, thrift.I32(loginType))
	inner.Set(2, thrift.I32(1)) // identityProvider: LINE
	inner.Set(3, thrift.String(keynm))
	inner.Set(4, thrift.String(encrypted))
	inner.Set(5, thrift.Bool(false)) // keepLoggedIn
	inner.Set(6, thrift.String(""))  // accessLocation
	inner.Set(7, thrift.String(c.profile.SystemName))
	inner.Set(8, thrift.String(cert))
	inner.Set(9, thrift.String(verifier))
	inner.Set(10, thrift.Binary(secret))
	inner.Set(11, thrift.I32(1))
	inner.Set(12, thrift.String(c.profile.SystemName))

	args := &thrift.Struct{}
	args.Set(2, thrift.Struc(inner))

	endpoint := authEndpoint
	if method == "loginZ" {
		endpoint = talkEndpoint
	}

	v, err := c.callBinary(ctx, endpoint, method, args, true)
	if err != nil {
		return nil, err
	}
	return decodeLoginReply(v)
}

func decodeLoginReply(v thrift.Value) (*loginReplyFields, error) {
	if v.Type != thrift.TypeStruct || v.Struct == nil {
		return nil, lineerr.New(lineerr.KindCodec, "login response: empty body")
	}
	r := &loginReplyFields{}
	if f, ok := v.Struct.Get(1); ok {
		r.authToken = f.AsString()
	}
	if f, ok := v.Struct.Get(2); ok {
		r.certificate = f.AsString()
	}
	if f, ok := v.Struct.Get(3); ok {
		r.verifier = f.AsString()
	}
	if f, ok := v.Struct.Get(4); ok {
		r.pincode = f.AsString()
	}
	if f, ok := v.Struct.Get(9); ok && f.Type == thrift.TypeStruct && f.Struct != nil {
		ti := &TokenInfo{}
		if sf, ok := f.Struct.Get(1); ok {
			ti.AccessToken = sf.AsString()
		}
		if sf, ok := f.Struct.Get(2); ok {
			ti.RefreshToken = sf.AsString()
		}
		if sf, ok := f.Struct.Get(3); ok {
			ti.IssuedAt = sf.Int
		}
		if sf, ok := f.Struct.Get(4); ok {
			ti.ExpiresIn = sf.Int
		}
		r.tokenInfo = ti
	}
	return r, nil
}

// verificationResponse is the JSON body /LF1 and /Q return.
type verificationResponse struct {
	Result map[string]interface{} `json:"result"`
}

// verifyEmailPIN long-polls the PIN verification endpoint (E2EE-backed /LF1
// when useE2EE, legacy /Q otherwise) until the user confirms on their
// already-logged-in device, then resolves the verifier to retry login with.
func (c *Client) verifyEmailPIN(ctx context.Context, verifier string, useE2EE bool, kp *e2ee.KeyPair) (string, error) {
	path := legacyVerifyEndpoint
	if useE2EE {
		path = e2eeVerifyEndpoint
	}

	body, _, err := c.transport.RawCall(ctx, c.scheme, c.host, path, http.MethodGet, nil, transport.HeaderSet{
		LogicalMethod: "GET",
		AccessToken:   verifier,
		ContentType:   "application/json",
		Accept:        "application/json",
	})
	if err != nil {
		return "", lineerr.Wrap(lineerr.KindFlowTimeout, "pin verification", err)
	}

	var resp verificationResponse
	if len(body) > 0 {
		if jerr := json.Unmarshal(body, &resp); jerr != nil {
			return "", lineerr.Wrap(lineerr.KindCodec, "decode pin verification response", jerr)
		}
	}

	if useE2EE && kp != nil {
		if v, ok := decryptE2EEVerifier(c.e2ee, resp.Result, kp); ok {
			return v, nil
		}
	}
	if v, ok := resp.Result["verifier"].(string); ok && v != "" {
		return v, nil
	}
	return verifier, nil
}

// decryptE2EEVerifier recovers the plaintext verifier from the PIN blob the
// server encrypts against our public key, falling back to reporting failure
// rather than erroring — callers fall back to the plain verifier field.
func decryptE2EEVerifier(provider e2ee.Provider, result map[string]interface{}, kp *e2ee.KeyPair) (string, bool) {
	pubB64, _ := result["publicKey"].(string)
	blobB64, _ := result["encryptedKeyChain"].(string)
	if pubB64 == "" || blobB64 == "" {
		return "", false
	}
	peerPub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil || len(peerPub) != 32 {
		return "", false
	}
	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return "", false
	}
	var peer [32]byte
	copy(peer[:], peerPub)

	secret, err := provider.SharedSecret(kp.Private, peer)
	if err != nil {
		return "", false
	}
	key, err := provider.DeriveKey(secret)
	if err != nil {
		return "", false
	}
	plain, err := provider.Decrypt(key, blob)
	if err != nil {
		return "", false
	}
	return string(plain), true
}
