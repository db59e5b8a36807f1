package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jkfujinami/linepy/internal/device"
	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/thrift"
	"github.com/jkfujinami/linepy/internal/transport"
)

func writeBinaryReply(t *testing.T, w http.ResponseWriter, seqID int32, name string, body *thrift.Struct) {
	t.Helper()
	var buf bytes.Buffer
	if err := (thrift.BinaryProtocol{}).EncodeMessage(&buf, &thrift.Message{Name: name, Kind: thrift.KindReply, SeqID: seqID, Body: body}); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	w.Write(buf.Bytes())
}

func rsaKeyReplyBody(t *testing.T, priv *rsa.PrivateKey) *thrift.Struct {
	t.Helper()
	inner := &thrift.Struct{}
	inner.Set(1, thrift.String("keynm-1"))
	inner.Set(2, thrift.String(priv.PublicKey.N.Text(16)))
	inner.Set(3, thrift.String(fmt.Sprintf("%x", priv.PublicKey.E)))
	inner.Set(4, thrift.String("session-key-abc"))
	reply := &thrift.Struct{}
	reply.Set(0, thrift.Struc(inner))
	return reply
}

func TestLoginWithEmailLegacyImmediateToken(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(talkEndpoint, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		msg, err := (thrift.BinaryProtocol{}).DecodeMessage(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("decode request: %v", err)
		}
		switch msg.Name {
		case "getRSAKeyInfo":
			writeBinaryReply(t, w, msg.SeqID, msg.Name, rsaKeyReplyBody(t, priv))
		case "loginZ":
			inner := &thrift.Struct{}
			inner.Set(1, thrift.String("legacy-auth-token"))
			inner.Set(2, thrift.String("new-cert"))
			reply := &thrift.Struct{}
			reply.Set(0, thrift.Struc(inner))
			writeBinaryReply(t, w, msg.SeqID, msg.Name, reply)
		default:
			t.Errorf("unexpected method %s", msg.Name)
		}
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	profile, err := device.NewProfile(device.ChromeOS, "") // no v3 support -> loginZ
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	tc := transport.NewClient(profile, 5*time.Second, nil)
	c := NewClient(tc, profile, host, nil, nil)
	c.scheme = "http"

	result, err := c.LoginWithEmail(context.Background(), Credentials{Email: "user@example.com", Password: "password1"}, "", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token.AccessToken != "legacy-auth-token" {
		t.Fatalf("unexpected token: %+v", result.Token)
	}
	if result.Certificate != "new-cert" {
		t.Fatalf("unexpected certificate: %q", result.Certificate)
	}
}

func TestLoginWithEmailV2ImmediateToken(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(talkEndpoint, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		msg, _ := (thrift.BinaryProtocol{}).DecodeMessage(bytes.NewReader(data))
		if msg.Name != "getRSAKeyInfo" {
			t.Errorf("unexpected talk-endpoint method %s", msg.Name)
			return
		}
		writeBinaryReply(t, w, msg.SeqID, msg.Name, rsaKeyReplyBody(t, priv))
	})
	mux.HandleFunc(authEndpoint, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		msg, _ := (thrift.BinaryProtocol{}).DecodeMessage(bytes.NewReader(data))
		if msg.Name != "loginV2" {
			t.Errorf("unexpected auth-endpoint method %s", msg.Name)
			return
		}
		tokenInfo := &thrift.Struct{}
		tokenInfo.Set(1, thrift.String("v3-access-token"))
		tokenInfo.Set(2, thrift.String("v3-refresh-token"))
		tokenInfo.Set(3, thrift.I64(1700000000))
		tokenInfo.Set(4, thrift.I64(2592000))
		inner := &thrift.Struct{}
		inner.Set(9, thrift.Struc(tokenInfo))
		reply := &thrift.Struct{}
		reply.Set(0, thrift.Struc(inner))
		writeBinaryReply(t, w, msg.SeqID, msg.Name, reply)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	profile, err := device.NewProfile(device.DesktopWin, "") // v3-capable -> loginV2
	if err != nil {
		t.Fatalf("new profile: %v", err)
	}
	tc := transport.NewClient(profile, 5*time.Second, nil)
	c := NewClient(tc, profile, host, nil, nil)
	c.scheme = "http"

	result, err := c.LoginWithEmail(context.Background(), Credentials{Email: "user@example.com", Password: "password1"}, "", nil)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token.AccessToken != "v3-access-token" || result.Token.RefreshToken != "v3-refresh-token" {
		t.Fatalf("unexpected token info: %+v", result.Token)
	}
	if result.Token.ExpiresIn != 2592000 {
		t.Fatalf("unexpected expiresIn: %d", result.Token.ExpiresIn)
	}
}

func TestLoginWithEmailRejectsInvalidEmail(t *testing.T) {
	c := NewClient(nil, nil, "", nil, nil)
	_, err := c.LoginWithEmail(context.Background(), Credentials{Email: "not-an-email", Password: "password1"}, "", nil)
	if !lineerr.Of(err, lineerr.KindConfig) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoginWithEmailRejectsShortPassword(t *testing.T) {
	c := NewClient(nil, nil, "", nil, nil)
	_, err := c.LoginWithEmail(context.Background(), Credentials{Email: "user@example.com", Password: "short"}, "", nil)
	if !lineerr.Of(err, lineerr.KindConfig) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
