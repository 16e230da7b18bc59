// Package cache implements the two-tier cache layer: a bounded in-process
// LRU in front of an optional external key/value store. Callers never see
// cache errors; every failure is logged and treated as a miss.
//
// Keys are namespaced (namespace:key) and may carry tags for bulk
// invalidation. The tag index is maintained at set-time in both tiers.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Well-known namespaces used by the specialised wrappers.
const (
	NamespaceQueryResults = "query_results"
	NamespaceSchema       = "schema"
	NamespacePlans        = "plans"
	NamespaceEmbeddings   = "embeddings"
)

// Monitor receives cache traffic events. Implemented by the monitoring core.
type Monitor interface {
	RecordHit()
	RecordMiss()
	RecordSet()
	RecordDelete()
}

// nopMonitor keeps the manager usable before monitoring is wired.
type nopMonitor struct{}

func (nopMonitor) RecordHit()    {}
func (nopMonitor) RecordMiss()   {}
func (nopMonitor) RecordSet()    {}
func (nopMonitor) RecordDelete() {}

// Options configures a Manager.
type Options struct {
	MaxEntries    int           // LRU capacity
	MaxValueBytes int           // Entries serialising above this are rejected
	DefaultTTL    time.Duration // Used when Set receives ttl <= 0
}

// Manager is the two-tier cache. The external KV store is optional; when
// absent or failing, the manager degrades transparently to the LRU tier.
type Manager struct {
	lru     *LRU
	kv      *KVStore // nil when the external backend is disabled
	opts    Options
	log     zerolog.Logger
	monitor Monitor

	mu       sync.Mutex
	tagIndex map[string]map[string]struct{} // tag -> keys (in-process tier)
}

// NewManager creates the cache layer. kv may be nil.
func NewManager(kv *KVStore, opts Options, log zerolog.Logger) *Manager {
	if opts.MaxValueBytes <= 0 {
		opts.MaxValueBytes = 10 * 1024 * 1024
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	return &Manager{
		lru:      NewLRU(opts.MaxEntries),
		kv:       kv,
		opts:     opts,
		log:      log.With().Str("component", "cache").Logger(),
		monitor:  nopMonitor{},
		tagIndex: make(map[string]map[string]struct{}),
	}
}

// SetMonitor wires the cache monitor. Call once during startup.
func (m *Manager) SetMonitor(monitor Monitor) {
	if monitor != nil {
		m.monitor = monitor
	}
}

// HashKey derives a stable cache key from its parts.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func qualify(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// Get retrieves a value into dest (msgpack decode). Returns true on a hit.
func (m *Manager) Get(key, namespace string, dest interface{}) bool {
	full := qualify(namespace, key)

	if raw, ok := m.lru.Get(full); ok {
		if err := msgpack.Unmarshal(raw, dest); err != nil {
			m.log.Warn().Err(err).Str("key", full).Msg("Cache decode failed, treating as miss")
			m.lru.Delete(full)
			m.monitor.RecordMiss()
			return false
		}
		m.monitor.RecordHit()
		return true
	}

	if m.kv != nil {
		raw, ok, err := m.kv.Get(full)
		if err != nil {
			m.log.Warn().Err(err).Str("key", full).Msg("KV get failed, treating as miss")
		} else if ok {
			if err := msgpack.Unmarshal(raw, dest); err == nil {
				// Promote to the in-process tier
				m.lru.Set(full, raw, m.opts.DefaultTTL)
				m.monitor.RecordHit()
				return true
			}
		}
	}

	m.monitor.RecordMiss()
	return false
}

// Set stores a value in both tiers. Oversized values are rejected silently
// (logged); errors never propagate.
func (m *Manager) Set(key string, value interface{}, ttl time.Duration, namespace string, tags []string) {
	if ttl <= 0 {
		ttl = m.opts.DefaultTTL
	}
	full := qualify(namespace, key)

	raw, err := msgpack.Marshal(value)
	if err != nil {
		m.log.Warn().Err(err).Str("key", full).Msg("Cache encode failed, skipping set")
		return
	}
	if len(raw) > m.opts.MaxValueBytes {
		m.log.Warn().Str("key", full).Int("bytes", len(raw)).Msg("Cache entry exceeds size ceiling, skipping set")
		return
	}

	m.lru.Set(full, raw, ttl)
	m.indexTags(full, tags)

	if m.kv != nil {
		if err := m.kv.Set(full, namespace, raw, ttl, tags); err != nil {
			m.log.Warn().Err(err).Str("key", full).Msg("KV set failed")
		}
	}
	m.monitor.RecordSet()
}

// Delete removes a key from both tiers.
func (m *Manager) Delete(key, namespace string) {
	full := qualify(namespace, key)
	m.lru.Delete(full)
	m.dropFromTagIndex(full)
	if m.kv != nil {
		if _, err := m.kv.Delete(full); err != nil {
			m.log.Warn().Err(err).Str("key", full).Msg("KV delete failed")
		}
	}
	m.monitor.RecordDelete()
}

// Exists reports whether a key is present in either tier.
func (m *Manager) Exists(key, namespace string) bool {
	full := qualify(namespace, key)
	if m.lru.Exists(full) {
		return true
	}
	if m.kv != nil {
		ok, err := m.kv.Exists(full)
		if err != nil {
			m.log.Warn().Err(err).Str("key", full).Msg("KV exists failed")
			return false
		}
		return ok
	}
	return false
}

// InvalidateNamespace drops every entry under the namespace prefix and
// returns the number removed from the external tier (the LRU tier is purged
// by prefix as well, counted together).
func (m *Manager) InvalidateNamespace(namespace string) int {
	removed := m.purgeLRUPrefix(namespace + ":")
	if m.kv != nil {
		n, err := m.kv.DeleteNamespace(namespace)
		if err != nil {
			m.log.Warn().Err(err).Str("namespace", namespace).Msg("KV namespace invalidation failed")
		} else if n > removed {
			removed = n
		}
	}
	m.log.Debug().Str("namespace", namespace).Int("removed", removed).Msg("Namespace invalidated")
	return removed
}

// InvalidateByTags drops every entry carrying any of the tags and returns
// the number of keys removed.
func (m *Manager) InvalidateByTags(tags []string) int {
	keys := make(map[string]struct{})

	m.mu.Lock()
	for _, tag := range tags {
		for key := range m.tagIndex[tag] {
			keys[key] = struct{}{}
		}
		delete(m.tagIndex, tag)
	}
	m.mu.Unlock()

	if m.kv != nil {
		kvKeys, err := m.kv.KeysByTags(tags)
		if err != nil {
			m.log.Warn().Err(err).Msg("KV tag lookup failed")
		}
		for _, k := range kvKeys {
			keys[k] = struct{}{}
		}
	}

	for key := range keys {
		m.lru.Delete(key)
		if m.kv != nil {
			_, _ = m.kv.Delete(key)
		}
	}
	return len(keys)
}

// SweepExpired drops expired entries from both tiers. Run periodically.
func (m *Manager) SweepExpired() int {
	removed := m.lru.Sweep()
	if m.kv != nil {
		n, err := m.kv.SweepExpired()
		if err != nil {
			m.log.Warn().Err(err).Msg("KV sweep failed")
		} else {
			removed += n
		}
	}
	return removed
}

// --- Specialised wrappers ---

// CacheQueryResult stores a processed query result keyed by its request hash.
func (m *Manager) CacheQueryResult(hash string, result interface{}, ttl time.Duration, tables []string) {
	m.Set(hash, result, ttl, NamespaceQueryResults, tableTags(tables))
}

// GetQueryResult retrieves a cached query result.
func (m *Manager) GetQueryResult(hash string, dest interface{}) bool {
	return m.Get(hash, NamespaceQueryResults, dest)
}

// CacheSchemaMetadata stores introspected schema metadata.
func (m *Manager) CacheSchemaMetadata(key string, snapshot interface{}, ttl time.Duration) {
	m.Set(key, snapshot, ttl, NamespaceSchema, nil)
}

// CacheExecutionPlan stores a computed execution plan for 30 minutes.
func (m *Manager) CacheExecutionPlan(hash string, plan interface{}, tables []string) {
	m.Set(hash, plan, 30*time.Minute, NamespacePlans, tableTags(tables))
}

// GetExecutionPlan retrieves a cached execution plan.
func (m *Manager) GetExecutionPlan(hash string, dest interface{}) bool {
	return m.Get(hash, NamespacePlans, dest)
}

// CacheTableEmbeddings stores per-query embedding lookups for 30 minutes.
func (m *Manager) CacheTableEmbeddings(hash string, hits interface{}) {
	m.Set(hash, hits, 30*time.Minute, NamespaceEmbeddings, nil)
}

// GetTableEmbeddings retrieves a cached embedding lookup.
func (m *Manager) GetTableEmbeddings(hash string, dest interface{}) bool {
	return m.Get(hash, NamespaceEmbeddings, dest)
}

// InvalidateTableCache drops cached results and plans that touch a table.
func (m *Manager) InvalidateTableCache(table string) int {
	return m.InvalidateByTags([]string{"table:" + table})
}

func tableTags(tables []string) []string {
	tags := make([]string, 0, len(tables))
	for _, t := range tables {
		tags = append(tags, "table:"+t)
	}
	return tags
}

// --- internal helpers ---

func (m *Manager) indexTags(fullKey string, tags []string) {
	if len(tags) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range tags {
		set, ok := m.tagIndex[tag]
		if !ok {
			set = make(map[string]struct{})
			m.tagIndex[tag] = set
		}
		set[fullKey] = struct{}{}
	}
}

func (m *Manager) dropFromTagIndex(fullKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tag, set := range m.tagIndex {
		delete(set, fullKey)
		if len(set) == 0 {
			delete(m.tagIndex, tag)
		}
	}
}

// purgeLRUPrefix removes LRU entries whose key starts with prefix.
func (m *Manager) purgeLRUPrefix(prefix string) int {
	m.lru.mu.Lock()
	var keys []string
	for key := range m.lru.items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.lru.mu.Unlock()

	for _, key := range keys {
		m.lru.Delete(key)
	}
	return len(keys)
}
