package mirror

import (
	"github.com/screenbridge/hostcore/internal/actions"
	"github.com/screenbridge/hostcore/internal/protocol"
	"github.com/screenbridge/hostcore/internal/store"
)

// storePublisher adapts sessionmgr.Publisher onto the store's action
// dispatch, so the Session Manager never depends on the State Store
// package directly (§2's C5 -> C6 data-flow direction). Media events
// are forwarded separately to a mediaBus, since they are not
// store-shaped state (§2's C6 -> subscribers data flow).
type storePublisher struct {
	st    *store.Store
	media *mediaBus
}

func (p *storePublisher) PublishAdded(serial, sessionID string) {
	p.st.Dispatch(actions.Action{
		Kind:   actions.AddDevice,
		Serial: serial,
		Session: &store.Session{
			SessionID: sessionID,
			Identity:  store.DeviceIdentity{Serial: serial},
			ConnState: protocol.StateConnecting,
		},
	})
}

func (p *storePublisher) PublishMedia(serial string, ev protocol.Event) {
	if p.media != nil {
		p.media.publish(serial, ev)
	}
}

func (p *storePublisher) PublishStatus(serial, message string) {
	p.st.Dispatch(actions.Action{Kind: actions.SetStatusMessage, Serial: serial, StatusMessage: message})
}

func (p *storePublisher) PublishError(serial string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	p.st.Dispatch(actions.Action{Kind: actions.SetStatusMessage, Serial: serial, StatusMessage: msg})
}

func (p *storePublisher) PublishConnState(serial string, state protocol.ConnState) {
	sessionID := p.sessionIDFor(serial)
	if sessionID == "" {
		return
	}
	p.st.Dispatch(actions.Action{
		Kind: actions.UpdateDevice, Serial: serial, SessionID: sessionID,
		HasConnState: true, ConnState: state,
	})
}

func (p *storePublisher) PublishActive(serial string) {
	sessionID := p.sessionIDFor(serial)
	p.st.Dispatch(actions.Action{Kind: actions.SetActiveDevice, SessionID: sessionID})
}

func (p *storePublisher) PublishRemoved(serial string) {
	p.st.Dispatch(actions.Action{Kind: actions.RemoveDevice, Serial: serial})
}

func (p *storePublisher) sessionIDFor(serial string) string {
	snap := p.st.Snapshot()
	for _, sess := range snap.Sessions {
		if sess.Identity.Serial == serial {
			return sess.SessionID
		}
	}
	return ""
}
