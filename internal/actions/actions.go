// Package actions defines the closed tagged-union of store mutations
// (§4.7) dispatched into internal/store's reducer.
package actions

import (
	"github.com/screenbridge/hostcore/internal/model"
	"github.com/screenbridge/hostcore/internal/protocol"
)

// Kind tags the variant carried by an Action.
type Kind int

const (
	AddDevice Kind = iota
	RemoveDevice
	UpdateDevice
	SetActiveDevice
	UpdateSettings
	UpdateToolAvailability
	SetStatusMessage
	ClearStatusMessage
	SetDeviceDetails
	RemoveDeviceDetails
	ClearDeviceDetails
	SetMonitoring
	ClearAllDevices
	Reset
	SetAllowListEntry
	AddAllowListEntry
	RemoveAllowListEntry
	AddBlockListEntry
	RemoveBlockListEntry
	SetUIPreferencesEntry
	SaveUIPreferencesEntry
	UpdateUIPreferencesEntry
)

// Action is the single envelope type dispatched into the store.
// Reducer clauses read only the fields relevant to their Kind; unused
// fields are left zero.
type Action struct {
	Kind Kind

	Serial    string
	SessionID string

	Session       *model.Session       // AddDevice, UpdateDevice
	Details       model.DeviceDetails  // SetDeviceDetails
	Settings      model.Settings       // UpdateSettings
	ToolAvailable bool                 // UpdateToolAvailability
	StatusMessage string               // SetStatusMessage
	Monitoring    bool                 // SetMonitoring

	ConnState    protocol.ConnState // UpdateDevice partial field updates
	HasConnState bool

	UIPreferences model.UIPreferences // Set/Save/UpdateUIPreferencesEntry
}
