// Package transport is the pooled HTTP/2 client (C2): keyed by host,
// building the headers every Thrift/JSON/raw call needs and exposing the
// three call shapes the rest of the client uses.
package transport

import (
	"net/http"
	"strconv"

	"github.com/jkfujinami/linepy/internal/device"
)

const (
	headerApplication = "x-line-application"
	headerLAL         = "x-lal"
	headerLPV         = "x-lpv"
	headerLHM         = "x-lhm"
	headerAccess      = "x-line-access"
	headerLST         = "x-lst"
)

// HeaderSet carries the per-call values that vary across requests on top of
// the fixed device-derived headers.
type HeaderSet struct {
	LogicalMethod string // x-lhm
	AccessToken   string // x-line-access, omitted when empty
	ContentType   string
	Accept        string

	// QRRemainingMillis, when positive, marks this call as a QR/PIN
	// long-poll request and adds x-lst carrying the remaining wait budget.
	// AccessToken carries the sqr token rather than a real access token
	// for these calls.
	QRRemainingMillis int64

	// Extra carries headers outside the fixed Thrift/JSON set — e.g.
	// Timeline's X-Line-ChannelToken/X-Line-Mid — applied after the fixed
	// headers so a caller can't accidentally clobber them by name clash.
	Extra map[string]string
}

// buildHeaders constructs the full request header set for one call, mirroring
// the required-headers table: Host is left to net/http (set from the
// request URL), the rest are explicit.
func buildHeaders(profile *device.Profile, hs HeaderSet) http.Header {
	h := make(http.Header, 8)
	h.Set("Accept", orDefault(hs.Accept, "application/x-thrift"))
	h.Set("User-Agent", profile.UserAgent())
	h.Set(headerApplication, profile.ApplicationHeader())
	h.Set("Content-Type", orDefault(hs.ContentType, "application/x-thrift"))
	h.Set(headerLAL, "ja_JP")
	h.Set(headerLPV, "1")
	if hs.LogicalMethod != "" {
		h.Set(headerLHM, hs.LogicalMethod)
	}
	h.Set("Accept-Encoding", "gzip")
	if hs.AccessToken != "" {
		h.Set(headerAccess, hs.AccessToken)
	}
	if hs.QRRemainingMillis > 0 {
		h.Set(headerLST, strconv.FormatInt(hs.QRRemainingMillis, 10))
	}
	for k, v := range hs.Extra {
		h.Set(k, v)
	}
	return h
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
