// Package deviceprobe assembles a cached DeviceDetails record by
// running read-only ADB shell property queries in parallel, degrading
// individual failures to "Unknown" rather than failing the whole probe
// (§4.8).
package deviceprobe

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/screenbridge/hostcore/internal/launcher"
	"github.com/screenbridge/hostcore/internal/store"
)

const unknown = "Unknown"

// metadataTimeout bounds each read-only property query (§5).
const metadataTimeout = 5 * time.Second

// settingsTimeout is the bound for write-side settings queries (e.g.
// toggling show-touches); no function in this package issues one.
const settingsTimeout = 10 * time.Second

// TTL is how long a cached DeviceDetails record remains valid.
const TTL = 30 * time.Second

// Prober runs the device-property queries for one serial.
type Prober struct {
	adb *launcher.Client
}

// New returns a Prober using adb to run shell queries.
func New(adb *launcher.Client) *Prober {
	return &Prober{adb: adb}
}

type queryResult struct {
	key   string
	value string
}

// Probe runs every query in parallel and assembles a DeviceDetails.
// An individual query failing never fails the whole probe; its field
// falls back to "Unknown".
func (p *Prober) Probe(ctx context.Context, serial string) store.DeviceDetails {
	queries := map[string]func(context.Context, string) (string, error){
		"model":        p.queryModel,
		"manufacturer": p.queryManufacturer,
		"osVersion":    p.queryOSVersion,
		"sdkLevel":     p.querySDKLevel,
		"battery":      p.queryBattery,
		"storage":      p.queryStorage,
		"resolution":   p.queryResolution,
		"ip":           p.queryIP,
	}

	results := make(map[string]string, len(queries))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for key, query := range queries {
		wg.Add(1)
		go func(key string, query func(context.Context, string) (string, error)) {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, metadataTimeout)
			defer cancel()
			value, err := query(qctx, serial)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[key] = unknown
				return
			}
			results[key] = value
		}(key, query)
	}
	wg.Wait()

	details := store.DeviceDetails{
		Model:        results["model"],
		Manufacturer: results["manufacturer"],
		OSVersion:    results["osVersion"],
		SDKLevel:     results["sdkLevel"],
	}
	applyBattery(&details, results["battery"])
	applyStorage(&details, results["storage"])
	applyResolution(&details, results["resolution"])
	details.IPAddress = results["ip"]
	details.FetchedAtUnix = time.Now().Unix()
	return details
}

// Fresh reports whether a previously probed DeviceDetails record is
// still within TTL and does not need to be re-probed.
func Fresh(d store.DeviceDetails) bool {
	return d.FetchedAtUnix != 0 && time.Since(time.Unix(d.FetchedAtUnix, 0)) < TTL
}

func (p *Prober) queryModel(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "getprop", "ro.product.model")
	return strings.TrimSpace(out), err
}

func (p *Prober) queryManufacturer(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "getprop", "ro.product.manufacturer")
	return strings.TrimSpace(out), err
}

func (p *Prober) queryOSVersion(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "getprop", "ro.build.version.release")
	return strings.TrimSpace(out), err
}

func (p *Prober) querySDKLevel(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "getprop", "ro.build.version.sdk")
	return strings.TrimSpace(out), err
}

func (p *Prober) queryBattery(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "dumpsys", "battery")
	return out, err
}

func (p *Prober) queryStorage(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "df", "/data")
	return out, err
}

func (p *Prober) queryResolution(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "wm", "size")
	return strings.TrimSpace(out), err
}

func (p *Prober) queryIP(ctx context.Context, serial string) (string, error) {
	out, err := p.adb.Shell(ctx, metadataTimeout, serial, "ip", "route")
	return strings.TrimSpace(out), err
}

func applyBattery(d *store.DeviceDetails, dumpsysOutput string) {
	if dumpsysOutput == unknown || dumpsysOutput == "" {
		d.BatteryLevel = unknown
		return
	}
	d.BatteryLevel = unknown
	for _, line := range strings.Split(dumpsysOutput, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "level:") {
			d.BatteryLevel = strings.TrimSpace(strings.TrimPrefix(line, "level:"))
		}
		if strings.HasPrefix(line, "AC powered:") || strings.HasPrefix(line, "USB powered:") {
			if strings.Contains(line, "true") {
				d.BatteryCharging = true
			}
		}
	}
}

func applyStorage(d *store.DeviceDetails, dfOutput string) {
	if dfOutput == unknown || dfOutput == "" {
		d.StorageTotal, d.StorageUsed = unknown, unknown
		return
	}
	lines := strings.Split(strings.TrimSpace(dfOutput), "\n")
	if len(lines) < 2 {
		d.StorageTotal, d.StorageUsed = unknown, unknown
		return
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 3 {
		d.StorageTotal, d.StorageUsed = unknown, unknown
		return
	}
	d.StorageTotal = formatStorageField(fields[1])
	d.StorageUsed = formatStorageField(fields[2])
}

// formatStorageField normalizes a df size field, which may already
// carry a K/M/G suffix or be a bare byte/KB count.
func formatStorageField(raw string) string {
	if raw == "" {
		return unknown
	}
	last := raw[len(raw)-1]
	if last == 'K' || last == 'M' || last == 'G' || last == 'k' || last == 'm' || last == 'g' {
		return raw
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		return unknown
	}
	return raw
}

func applyResolution(d *store.DeviceDetails, wmOutput string) {
	// "Physical size: 1080x2400"
	idx := strings.Index(wmOutput, ":")
	if idx < 0 {
		return
	}
	dims := strings.TrimSpace(wmOutput[idx+1:])
	parts := strings.SplitN(dims, "x", 2)
	if len(parts) != 2 {
		return
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil {
		return
	}
	d.ScreenWidth = w
	d.ScreenHeight = h
}
