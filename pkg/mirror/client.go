// Package mirror is the library-shaped public facade over the session
// core: it wires the Session Manager, State Store, Device Inventory,
// and Inspector server together and exposes a single embeddable
// Client. No exit codes; callers map errors to their own surface (§6).
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/screenbridge/hostcore/internal/actions"
	"github.com/screenbridge/hostcore/internal/codec"
	"github.com/screenbridge/hostcore/internal/config"
	"github.com/screenbridge/hostcore/internal/deviceprobe"
	"github.com/screenbridge/hostcore/internal/inspector"
	"github.com/screenbridge/hostcore/internal/inventory"
	"github.com/screenbridge/hostcore/internal/launcher"
	"github.com/screenbridge/hostcore/internal/logging"
	"github.com/screenbridge/hostcore/internal/sessionmgr"
	"github.com/screenbridge/hostcore/internal/store"
)

var log = logging.L("mirror")

// Client embeds the whole session core behind one type: add/remove
// devices, observe the store, drive pairing, and receive media.
type Client struct {
	cfg *config.Config

	adb      *launcher.Client
	launcher *launcher.Launcher
	prober   *deviceprobe.Prober
	tracker  *inventory.Tracker
	manager  *sessionmgr.Manager
	store    *store.Store
	inspect  *inspector.Server
	media    *mediaBus
}

// New assembles a Client from cfg without starting any background
// work; call Start to begin device tracking and the inspector server.
func New(cfg *config.Config) *Client {
	adb := launcher.NewClient(cfg.DebugToolPath)
	l := launcher.New(adb, cfg.AgentPushPath)
	persister := store.NewFilePersister(cfg.KVStorePath)
	st := store.New(persister)
	media := newMediaBus()

	c := &Client{
		cfg:      cfg,
		adb:      adb,
		launcher: l,
		prober:   deviceprobe.New(adb),
		store:    st,
		inspect:  inspector.New(cfg.InspectorAddr),
		media:    media,
	}
	c.manager = sessionmgr.New(&storePublisher{st: st, media: media}, l, adb)
	c.tracker = inventory.NewTracker(cfg.DebugToolPath, c.onInventoryEvent)
	c.inspect.Attach(st)
	return c
}

// SubscribeMedia registers l to receive the active session's
// video/audio events and every session's clipboard events, and returns
// an unsubscribe func
// (§2's C6 -> subscribers data flow: raw codec bitstream chunks to a
// downstream decoder).
func (c *Client) SubscribeMedia(l MediaListener) func() {
	return c.media.subscribe(l)
}

// Start probes debug-tool availability, then begins device tracking and
// the local inspector server.
func (c *Client) Start(ctx context.Context) error {
	_, resolveErr := c.adb.Resolve()
	c.store.Dispatch(actions.Action{Kind: actions.UpdateToolAvailability, ToolAvailable: resolveErr == nil})
	if resolveErr != nil {
		log.Warn("debug tool not resolvable", "error", resolveErr)
	}

	c.tracker.Start(ctx)
	if c.cfg.InspectorAddr != "" {
		if err := c.inspect.Start(); err != nil {
			return fmt.Errorf("mirror: start inspector: %w", err)
		}
	}
	return nil
}

// DevicesSnapshot runs a one-shot "devices -l"-style listing, distinct
// from the continuous inventory tracker, for callers that want a
// point-in-time view without subscribing (§4.4 supplement).
func (c *Client) DevicesSnapshot(ctx context.Context) (string, error) {
	return c.adb.DevicesSnapshot(ctx, 5*time.Second)
}

// Stop tears down tracking, the inspector server, and every session.
func (c *Client) Stop() {
	c.tracker.Stop()
	c.inspect.Stop()
	for _, sess := range c.store.Snapshot().Sessions {
		c.manager.Remove(sess.Identity.Serial)
	}
	c.store.Close()
}

// Subscribe registers l for batched state snapshots and returns an
// unsubscribe func.
func (c *Client) Subscribe(l func(store.Snapshot)) func() {
	return c.store.Subscribe(l)
}

// Snapshot returns the current state.
func (c *Client) Snapshot() store.Snapshot {
	return c.store.Snapshot()
}

// AddDevice starts mirroring serial using the configured preferences,
// running the codec-fallback loop before returning.
func (c *Client) AddDevice(ctx context.Context, serial string) (string, error) {
	preferred := make([]codec.ID, 0, len(c.cfg.PreferredCodecs))
	for _, name := range c.cfg.PreferredCodecs {
		if id, ok := codec.ParseName(name); ok {
			preferred = append(preferred, id)
		}
	}

	c.store.Dispatch(actions.Action{Kind: actions.AddAllowListEntry, Serial: serial})

	return c.manager.AddDevice(ctx, sessionmgr.AddOptions{
		Serial:               serial,
		PreferredCodecs:      preferred,
		AudioEnabled:         c.cfg.AudioEnabled,
		BitRate:              c.cfg.BitRate,
		MaxFPS:               c.cfg.MaxFPS,
		MaxSize:              c.cfg.MaxSize,
		LockVideoOrientation: c.cfg.LockVideoOrientation,
		ClipboardAutosync:    c.cfg.ClipboardAutosync,
		StayAwake:            c.cfg.StayAwake,
		ShowTouches:          c.cfg.ShowTouches,
		PowerOffOnClose:      c.cfg.PowerOffOnClose,
		ReconnectRetries:     c.cfg.ReconnectRetries,
		ReconnectDelay:       time.Duration(c.cfg.ReconnectDelayMS) * time.Millisecond,
		AcceptTimeout:        time.Duration(c.cfg.AcceptTimeoutSecs) * time.Second,
		LocalAgentPath:       c.cfg.AgentBinaryPath,
		AgentPushPath:        c.cfg.AgentPushPath,
	})
}

// RemoveDevice stops mirroring serial and removes it from the
// allow-list, so the inventory tracker won't immediately auto-readd it
// on its next appearance event.
func (c *Client) RemoveDevice(serial string) {
	c.manager.Remove(serial)
	c.store.Dispatch(actions.Action{Kind: actions.RemoveAllowListEntry, Serial: serial})
}

// Block adds serial to the block-list, which takes precedence over the
// allow-list at auto-connect time (§9 Open Question resolution), and
// stops mirroring it if a session is open.
func (c *Client) Block(serial string) {
	c.manager.Remove(serial)
	c.store.Dispatch(actions.Action{Kind: actions.AddBlockListEntry, Serial: serial})
}

// Unblock clears serial's block-list entry, restoring normal
// allow-list-driven auto-connect behavior for it.
func (c *Client) Unblock(serial string) {
	c.store.Dispatch(actions.Action{Kind: actions.RemoveBlockListEntry, Serial: serial})
}

// Disconnect runs the debug tool's wireless disconnect for addr,
// independent of any open mirroring session.
func (c *Client) Disconnect(ctx context.Context, addr string) error {
	return c.adb.Disconnect(ctx, addr)
}

// SetActive switches which session's media reaches subscribers.
func (c *Client) SetActive(serial string) error {
	snap := c.store.Snapshot()
	for _, sess := range snap.Sessions {
		if sess.Identity.Serial == serial {
			return c.manager.SetActive(serial)
		}
	}
	return fmt.Errorf("mirror: unknown serial %s", serial)
}

// Pair runs the debug tool's wireless pairing exchange.
func (c *Client) Pair(ctx context.Context, addr, code string) error {
	return c.adb.Pair(ctx, addr, code)
}

// Connect runs the debug tool's wireless connect.
func (c *Client) Connect(ctx context.Context, addr string) error {
	return c.adb.Connect(ctx, addr)
}

// onInventoryEvent auto-connects an appeared device unless it is
// block-listed, and drops a disappeared device's block-list entry.
// The block list takes precedence over the allow list:
// a device that is both blocked and allowed (e.g. the user disconnected
// it without removing its old allow-list entry) is not auto-connected
// until the block entry clears, which happens when it disappears and
// reappears (§3, §4.5 Open Question resolution).
func (c *Client) onInventoryEvent(ev inventory.Event) {
	if ev.Kind == inventory.EventDisappeared {
		c.store.Dispatch(actions.Action{Kind: actions.RemoveBlockListEntry, Serial: ev.Serial})
		return
	}
	if ev.Kind != inventory.EventAppeared {
		return
	}
	snap := c.store.Snapshot()
	if !shouldAutoConnect(snap.BlockList, snap.AllowList, ev.Serial) {
		return
	}
	go func() {
		if _, err := c.AddDevice(context.Background(), ev.Serial); err != nil {
			log.Warn("auto-connect failed", "serial", ev.Serial, "error", err)
		}
	}()
}

// shouldAutoConnect decides whether an appeared device is auto-added.
// The block list takes precedence over the allow list: a serial on
// both lists is not auto-connected.
func shouldAutoConnect(blockList, allowList []string, serial string) bool {
	if containsSerial(blockList, serial) {
		return false
	}
	return containsSerial(allowList, serial)
}

func containsSerial(list []string, serial string) bool {
	for _, s := range list {
		if s == serial {
			return true
		}
	}
	return false
}

// SendControl forwards a pre-encoded control frame to serial's control
// socket (touch/key/clipboard/rotate commands from internal/protocol).
func (c *Client) SendControl(serial string, frame []byte) error {
	return c.manager.SendControl(serial, frame)
}

// ProbeDetails returns the cached device details for serial if they are
// still within the TTL window, otherwise runs the device property probe
// and publishes the fresh result into the store (§3, §4.8).
func (c *Client) ProbeDetails(ctx context.Context, serial string) store.DeviceDetails {
	if cached, ok := c.store.Snapshot().DeviceDetails[serial]; ok && deviceprobe.Fresh(cached) {
		return cached
	}
	details := c.prober.Probe(ctx, serial)
	c.store.Dispatch(actions.Action{Kind: actions.SetDeviceDetails, Serial: serial, Details: details})
	return details
}
