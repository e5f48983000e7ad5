// Package browserkv implements the storage.BrowserKV slot over a bbolt
// database, standing in for the spec's IndexedDB-backed fallback slot.
// It keeps one record per universe, evicting the least recently saved
// entries when a write would exceed the configured capacity, mirroring
// the spec §4.2 quota-then-evict-then-retry-once policy.
package browserkv

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redstring/core/internal/kv"
	"github.com/redstring/core/internal/storage"
)

const bucketUniverses = "browserkv_universes"

// record is the stored shape for one universe's BrowserKV slot.
type record struct {
	ID     string    `json:"id"`
	Data   string    `json:"data"`
	SavedAt time.Time `json:"savedAt"`
}

// Adapter is the bbolt-backed BrowserKV slot. maxEntries bounds how many
// universes' worth of data it will hold before evicting the oldest.
type Adapter struct {
	store      *kv.Store
	maxEntries int
}

// New builds a browserkv adapter capped at maxEntries universes.
func New(store *kv.Store, maxEntries int) *Adapter {
	if maxEntries <= 0 {
		maxEntries = 3
	}
	return &Adapter{store: store, maxEntries: maxEntries}
}

// Read loads the document text stored under key (the universe's
// browserStorage.key per spec §3).
func (a *Adapter) Read(ctx context.Context, key string) (string, error) {
	raw, ok, err := a.store.Get(bucketUniverses, key)
	if err != nil {
		return "", fmt.Errorf("browserkv: read %s: %w", key, err)
	}
	if !ok {
		return "", storage.ErrNotAvailable
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("browserkv: decode record %s: %w", key, err)
	}
	return rec.Data, nil
}

// Write stores text under key, evicting the least recently saved
// entries first if the store is at capacity, and retrying once after
// eviction before giving up with storage.ErrQuotaExceeded.
func (a *Adapter) Write(ctx context.Context, key string, text string) error {
	err := a.writeOnce(key, text)
	if err == nil {
		return nil
	}
	if err := a.evictOldest(key); err != nil {
		return fmt.Errorf("browserkv: evict to make room: %w", err)
	}
	if err := a.writeOnce(key, text); err != nil {
		return storage.ErrQuotaExceeded
	}
	return nil
}

func (a *Adapter) writeOnce(key, text string) error {
	records, err := a.listRecords()
	if err != nil {
		return err
	}
	_, exists := findRecord(records, key)
	if !exists && len(records) >= a.maxEntries {
		return storage.ErrQuotaExceeded
	}
	raw, err := json.Marshal(record{ID: key, Data: text, SavedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("browserkv: encode record %s: %w", key, err)
	}
	return a.store.Put(bucketUniverses, key, raw)
}

func (a *Adapter) evictOldest(keepKey string) error {
	records, err := a.listRecords()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	sort.Slice(records, func(i, j int) bool { return records[i].SavedAt.Before(records[j].SavedAt) })

	keep := a.maxEntries - 1
	if keep < 0 {
		keep = 0
	}
	evictable := records
	if _, exists := findRecord(records, keepKey); exists {
		evictable = removeRecord(records, keepKey)
	}
	for len(evictable) > keep {
		victim := evictable[0]
		evictable = evictable[1:]
		if err := a.store.Delete(bucketUniverses, victim.ID); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) listRecords() ([]record, error) {
	raws, err := a.store.List(bucketUniverses)
	if err != nil {
		return nil, fmt.Errorf("browserkv: list records: %w", err)
	}
	out := make([]record, 0, len(raws))
	for _, r := range raws {
		var rec record
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func findRecord(records []record, id string) (record, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return record{}, false
}

func removeRecord(records []record, id string) []record {
	out := make([]record, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
