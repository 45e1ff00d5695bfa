// Package model holds the state shapes shared between internal/store
// (which owns them) and internal/actions (which carries them as
// action payloads), kept in their own package to avoid a store<->actions
// import cycle.
package model

import "github.com/screenbridge/hostcore/internal/protocol"

// DeviceIdentity is the stable per-device record keyed by serial (§3).
type DeviceIdentity struct {
	Serial      string
	DisplayName string
	Model       string
}

// Session mirrors one sessionmgr entry as seen by subscribers; it is a
// read-side projection, not the sessionmgr's own bookkeeping struct.
type Session struct {
	SessionID      string
	Identity       DeviceIdentity
	ConnState      protocol.ConnState
	IsPaused       bool
	EffectiveCodec string
	RetryCount     int
	IsReconnecting bool
	IsDisposed     bool
	LastWidth      uint32
	LastHeight     uint32
	LastCodec      string
}

// DeviceDetails is a TTL-cached bundle of on-device properties (§4.8).
type DeviceDetails struct {
	Model           string
	Manufacturer    string
	OSVersion       string
	SDKLevel        string
	BatteryLevel    string
	BatteryCharging bool
	StorageTotal    string
	StorageUsed     string
	ScreenWidth     int
	ScreenHeight    int
	IPAddress       string
	FetchedAtUnix   int64
}

// UIPreferences caches the per-session on-device UI knobs (§3).
type UIPreferences struct {
	DarkMode          bool
	NavigationBarMode string
	TalkBackOn        bool
	FontScale         float64
	DisplayDensity    int
	LayoutBoundsDebug bool
	AvailableNavModes []string
}

// Settings bundles the host-wide mirroring preferences that flow into
// every AddDevice call (the config package's runtime-facing subset).
type Settings struct {
	PreferredCodecs      []string
	BitRate              int
	MaxFPS               int
	MaxSize              int
	LockVideoOrientation int
	AudioEnabled         bool
	ClipboardAutosync    bool
	StayAwake            bool
	ShowTouches          bool
	PowerOffOnClose      bool
}
