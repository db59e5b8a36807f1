// Package device holds the immutable device profile used to build the
// x-line-application header and to branch login/refresh behavior.
package device

import (
	"fmt"

	"github.com/jkfujinami/linepy/internal/lineerr"
)

// Kind identifies one of the client form-factors the server recognizes.
type Kind string

const (
	DesktopWin Kind = "DESKTOPWIN"
	DesktopMac Kind = "DESKTOPMAC"
	ChromeOS   Kind = "CHROMEOS"
	Android    Kind = "ANDROID"
	IOS        Kind = "IOS"
	IOSIPad    Kind = "IOSIPAD"
	WatchOS    Kind = "WATCHOS"
	WearOS     Kind = "WEAROS"
)

// defaultVersions mirrors the reference client's per-device default app
// version table; callers may override with an explicit version.
var defaultVersions = map[Kind]string{
	DesktopWin: "9.2.0.3403",
	DesktopMac: "7.19.0",
	ChromeOS:   "2.4.1",
	Android:    "13.4.1",
	IOS:        "15.19.0",
	IOSIPad:    "15.19.0",
	WatchOS:    "3.8.0",
	WearOS:     "3.8.0",
}

// tokenV3Support lists device kinds capable of the v3 token/login surfaces
// (loginV2, qrCodeLoginV2).
var tokenV3Support = map[Kind]bool{
	DesktopWin: true,
	DesktopMac: true,
	IOS:        true,
	Android:    true,
}

// primaryDevices are device kinds representing the user's physical phone.
// Refreshing a primary device's token would invalidate the real phone
// session, so Token Lifecycle (C9) forbids it.
var primaryDevices = map[Kind]bool{
	Android: true,
	IOS:     true,
	IOSIPad: true,
	WatchOS: true,
	WearOS:  true,
}

// Profile is the immutable record controlling header construction and
// login/refresh capability flags.
type Profile struct {
	Kind          Kind
	AppVersion    string
	SystemName    string
	SystemVersion string
}

// NewProfile builds a Profile for kind, using the default app version for
// that kind unless version is non-empty. Returns a ConfigError for an
// unrecognized kind.
func NewProfile(kind Kind, version string) (*Profile, error) {
	systemName, systemVersion, ok := systemDetails(kind)
	if !ok {
		return nil, lineerr.New(lineerr.KindConfig, fmt.Sprintf("unsupported device kind %q", kind))
	}
	if version == "" {
		version = defaultVersions[kind]
	}
	return &Profile{
		Kind:          kind,
		AppVersion:    version,
		SystemName:    systemName,
		SystemVersion: systemVersion,
	}, nil
}

func systemDetails(kind Kind) (name, version string, ok bool) {
	switch kind {
	case DesktopWin:
		return "WINDOWS", "10.0.0-NT-x64", true
	case DesktopMac:
		return "MAC", "12.1.4", true
	case ChromeOS:
		return "Chrome_OS", "1", true
	case Android:
		return "Android OS", "13", true
	case IOS, IOSIPad:
		return "iOS", "15.19", true
	case WatchOS:
		return "Watch OS", "8.0", true
	case WearOS:
		return "Wear OS", "3.0", true
	default:
		return "", "", false
	}
}

// SupportsTokenV3 reports whether this device may use the v3 login/token
// surfaces (loginV2, qrCodeLoginV2, refreshable access tokens).
func (p *Profile) SupportsTokenV3() bool {
	return tokenV3Support[p.Kind]
}

// IsPrimaryDevice reports whether this profile represents the user's
// physical phone, for which refreshAccessToken must be a no-op.
func (p *Profile) IsPrimaryDevice() bool {
	return primaryDevices[p.Kind]
}

// ApplicationHeader builds the literal x-line-application header value:
// "<deviceKind>\t<appVersion>\t<systemName>\t<systemVersion>".
func (p *Profile) ApplicationHeader() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s", p.Kind, p.AppVersion, p.SystemName, p.SystemVersion)
}

// UserAgent builds the literal User-Agent header value: "Line/<appVersion>".
func (p *Profile) UserAgent() string {
	return "Line/" + p.AppVersion
}
