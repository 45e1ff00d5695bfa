package inspector

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/screenbridge/hostcore/internal/actions"
	"github.com/screenbridge/hostcore/internal/store"
)

type fakeFilePersister struct{}

func (fakeFilePersister) LoadAllowList() []string                    { return nil }
func (fakeFilePersister) SaveAllowList(serials []string) error       { return nil }
func (fakeFilePersister) LoadBlockList() []string                    { return nil }
func (fakeFilePersister) SaveBlockList(serials []string) error       { return nil }
func (fakeFilePersister) LoadUIPreferences() map[string]store.UIPreferences {
	return make(map[string]store.UIPreferences)
}
func (fakeFilePersister) SaveUIPreferences(c map[string]store.UIPreferences) error { return nil }

func TestServerBroadcastsSnapshotToSubscriber(t *testing.T) {
	st := store.New(fakeFilePersister{})
	defer st.Close()

	s := New("127.0.0.1:18099")
	s.Attach(st)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18099/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	st.Dispatch(actions.Action{
		Kind:    actions.AddDevice,
		Serial:  "dev-1",
		Session: &store.Session{SessionID: "sess-1"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Sessions) != 1 {
		t.Fatalf("expected 1 session in broadcast snapshot, got %d", len(snap.Sessions))
	}
}
