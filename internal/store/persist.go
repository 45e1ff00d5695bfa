package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Persister is the host-provided key/value store contract for the
// three persisted keys in §6: auto_connect.allowed, auto_connect.blocked,
// ui_preferences.cache. Reads at startup default to empty.
type Persister interface {
	LoadAllowList() []string
	SaveAllowList(serials []string) error

	LoadBlockList() []string
	SaveBlockList(serials []string) error

	LoadUIPreferences() map[string]UIPreferences
	SaveUIPreferences(cache map[string]UIPreferences) error
}

// fileKVDocument is the on-disk shape of the JSON-backed Persister;
// its json tags are the three persisted key names from §6.
type fileKVDocument struct {
	AllowList     []string                 `json:"auto_connect.allowed"`
	BlockList     []string                 `json:"auto_connect.blocked"`
	UIPreferences map[string]UIPreferences `json:"ui_preferences.cache"`
}

// FilePersister is a JSON-file-backed Persister suitable for a
// single-host embedding application with no external KV store.
type FilePersister struct {
	path string
	mu   sync.Mutex
}

// NewFilePersister returns a FilePersister backed by path, creating
// parent directories on first write.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (f *FilePersister) load() fileKVDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	var doc fileKVDocument
	data, err := os.ReadFile(f.path)
	if err != nil {
		return doc
	}
	_ = json.Unmarshal(data, &doc)
	return doc
}

func (f *FilePersister) mutate(apply func(*fileKVDocument)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var doc fileKVDocument
	if data, err := os.ReadFile(f.path); err == nil {
		_ = json.Unmarshal(data, &doc)
	}
	apply(&doc)

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FilePersister) LoadAllowList() []string { return f.load().AllowList }

func (f *FilePersister) SaveAllowList(serials []string) error {
	return f.mutate(func(doc *fileKVDocument) { doc.AllowList = serials })
}

func (f *FilePersister) LoadBlockList() []string { return f.load().BlockList }

func (f *FilePersister) SaveBlockList(serials []string) error {
	return f.mutate(func(doc *fileKVDocument) { doc.BlockList = serials })
}

func (f *FilePersister) LoadUIPreferences() map[string]UIPreferences {
	prefs := f.load().UIPreferences
	if prefs == nil {
		return make(map[string]UIPreferences)
	}
	return prefs
}

func (f *FilePersister) SaveUIPreferences(cache map[string]UIPreferences) error {
	return f.mutate(func(doc *fileKVDocument) { doc.UIPreferences = cache })
}
