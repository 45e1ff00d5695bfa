package store

import (
	"sync"

	"github.com/screenbridge/hostcore/internal/actions"
	"github.com/screenbridge/hostcore/internal/logging"
)

var log = logging.L("store")

// Listener receives one snapshot per batch of mutations.
type Listener func(Snapshot)

// Store owns the single authoritative State and serializes all
// mutation through Dispatch. There is no microtask queue in Go, so the
// "next microtask boundary" coalescing described in §4.6 is
// implemented with a single-slot pending-notify channel drained by one
// background goroutine: a burst of Dispatch calls inside one scheduler
// turn collapses to at most one snapshot delivered to listeners.
type Store struct {
	mu    sync.Mutex
	state *State

	listenersMu    sync.Mutex
	listeners      map[int]Listener
	nextListenerID int

	persist Persister

	notifyCh chan struct{}
	stopCh   chan struct{}
}

// New returns a Store backed by p for the three persisted keys (§6),
// seeded with p's contents at startup (empty collections if absent).
func New(p Persister) *Store {
	s := &Store{
		state:     newState(),
		persist:   p,
		listeners: make(map[int]Listener),
		notifyCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	if p != nil {
		s.state.AllowList = toSet(p.LoadAllowList())
		s.state.BlockList = toSet(p.LoadBlockList())
		s.state.UIPreferences = p.LoadUIPreferences()
	}
	go s.notifyLoop()
	return s
}

// Close stops the notification loop.
func (s *Store) Close() {
	close(s.stopCh)
}

// Subscribe registers a listener for batched snapshots and returns an
// unsubscribe func. After unsubscribe returns, that listener receives
// zero further snapshots (§8).
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = l
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// Dispatch applies action to the state via the reducer and schedules a
// coalesced notification, unless the action is is_monitoring-only
// (deliberately excluded as a notification trigger per §4.6).
func (s *Store) Dispatch(a actions.Action) {
	s.mu.Lock()
	persistDirty := s.reduce(a)
	s.mu.Unlock()

	if persistDirty.allow {
		s.persistAllowList()
	}
	if persistDirty.block {
		s.persistBlockList()
	}
	if persistDirty.uiPrefs {
		s.persistUIPreferences()
	}
	if a.Kind != actions.SetMonitoring {
		s.scheduleNotify()
	}
}

type dirtyFlags struct {
	allow, block, uiPrefs bool
}

// reduce is the total reducer function: unknown kinds are no-ops.
// Every clause is idempotent when reapplied to identical state.
func (s *Store) reduce(a actions.Action) dirtyFlags {
	st := s.state
	var dirty dirtyFlags

	switch a.Kind {
	case actions.AddDevice:
		if a.Session == nil {
			return dirty
		}
		st.Sessions[a.Session.SessionID] = a.Session
		st.SerialToSession[a.Serial] = a.Session.SessionID

	case actions.RemoveDevice:
		sessID, ok := st.SerialToSession[a.Serial]
		if !ok {
			return dirty
		}
		delete(st.Sessions, sessID)
		delete(st.SerialToSession, a.Serial)
		delete(st.DeviceDetails, a.Serial)
		delete(st.UIPreferences, sessID)
		if st.ActiveSessionID == sessID {
			st.ActiveSessionID = ""
		}

	case actions.UpdateDevice:
		sess, ok := st.Sessions[a.SessionID]
		if !ok {
			return dirty
		}
		if a.HasConnState {
			sess.ConnState = a.ConnState
		}
		if a.Session != nil {
			*sess = *a.Session
		}

	case actions.SetActiveDevice:
		if _, ok := st.Sessions[a.SessionID]; !ok && a.SessionID != "" {
			return dirty
		}
		st.ActiveSessionID = a.SessionID

	case actions.UpdateSettings:
		st.Settings = a.Settings

	case actions.UpdateToolAvailability:
		st.ToolAvailable = a.ToolAvailable

	case actions.SetStatusMessage:
		st.StatusMessage = a.StatusMessage

	case actions.ClearStatusMessage:
		st.StatusMessage = ""

	case actions.SetDeviceDetails:
		st.DeviceDetails[a.Serial] = a.Details

	case actions.RemoveDeviceDetails:
		delete(st.DeviceDetails, a.Serial)

	case actions.ClearDeviceDetails:
		st.DeviceDetails = make(map[string]DeviceDetails)

	case actions.SetMonitoring:
		st.IsMonitoring = a.Monitoring

	case actions.ClearAllDevices:
		st.Sessions = make(map[string]*Session)
		st.SerialToSession = make(map[string]string)
		st.ActiveSessionID = ""
		st.DeviceDetails = make(map[string]DeviceDetails)
		st.UIPreferences = make(map[string]UIPreferences)

	case actions.Reset:
		allow, block, uiPrefs := st.AllowList, st.BlockList, st.UIPreferences
		*st = *newState()
		st.AllowList, st.BlockList, st.UIPreferences = allow, block, uiPrefs

	case actions.SetAllowListEntry, actions.AddAllowListEntry:
		if st.AllowList[a.Serial] {
			return dirty
		}
		st.AllowList[a.Serial] = true
		dirty.allow = true

	case actions.RemoveAllowListEntry:
		if !st.AllowList[a.Serial] {
			return dirty
		}
		delete(st.AllowList, a.Serial)
		dirty.allow = true

	case actions.AddBlockListEntry:
		if st.BlockList[a.Serial] {
			return dirty
		}
		st.BlockList[a.Serial] = true
		dirty.block = true

	case actions.RemoveBlockListEntry:
		if !st.BlockList[a.Serial] {
			return dirty
		}
		delete(st.BlockList, a.Serial)
		dirty.block = true

	case actions.SetUIPreferencesEntry, actions.SaveUIPreferencesEntry:
		st.UIPreferences[a.SessionID] = a.UIPreferences
		dirty.uiPrefs = true

	case actions.UpdateUIPreferencesEntry:
		if _, ok := st.UIPreferences[a.SessionID]; !ok {
			return dirty
		}
		st.UIPreferences[a.SessionID] = a.UIPreferences
		dirty.uiPrefs = true

	default:
		// Unknown action kinds are no-ops, per §4.6.
	}

	return dirty
}

func (s *Store) scheduleNotify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// A notification is already pending; this mutation rides along
		// with it (the coalescing behavior §4.6 requires).
	}
}

func (s *Store) notifyLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.notifyCh:
			snap := s.Snapshot()
			s.listenersMu.Lock()
			listeners := make([]Listener, 0, len(s.listeners))
			for _, l := range s.listeners {
				listeners = append(listeners, l)
			}
			s.listenersMu.Unlock()
			for _, l := range listeners {
				safeNotify(l, snap)
			}
		}
	}
}

func safeNotify(l Listener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("listener panicked", "panic", r)
		}
	}()
	l(snap)
}

func (s *Store) persistAllowList() {
	if s.persist == nil {
		return
	}
	s.mu.Lock()
	serials := keys(s.state.AllowList)
	s.mu.Unlock()
	if err := s.persist.SaveAllowList(serials); err != nil {
		log.Warn("persist allow list failed", "error", err)
	}
}

func (s *Store) persistBlockList() {
	if s.persist == nil {
		return
	}
	s.mu.Lock()
	serials := keys(s.state.BlockList)
	s.mu.Unlock()
	if err := s.persist.SaveBlockList(serials); err != nil {
		log.Warn("persist block list failed", "error", err)
	}
}

func (s *Store) persistUIPreferences() {
	if s.persist == nil {
		return
	}
	s.mu.Lock()
	cache := make(map[string]UIPreferences, len(s.state.UIPreferences))
	for k, v := range s.state.UIPreferences {
		cache[k] = v
	}
	s.mu.Unlock()
	if err := s.persist.SaveUIPreferences(cache); err != nil {
		log.Warn("persist ui preferences failed", "error", err)
	}
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
