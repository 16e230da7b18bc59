package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pricelens/pricelens/internal/database"
)

// KVStore is the external key/value backend. It is addressed by string keys
// only; no pattern iteration beyond the namespace column. Values are opaque
// byte blobs (msgpack, encoded by the manager).
type KVStore struct {
	db *database.DB
}

// NewKVStore wraps the cache-profile database.
func NewKVStore(db *database.DB) *KVStore {
	return &KVStore{db: db}
}

// Get returns the value for key, or nil and false on miss or expiry.
func (s *KVStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRow(
		"SELECT value, expires_at FROM kv_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv get failed: %w", err)
	}
	if time.Now().Unix() >= expiresAt {
		_, _ = s.db.Exec("DELETE FROM kv_entries WHERE key = ?", key)
		return nil, false, nil
	}
	return value, true, nil
}

// Set upserts a value with its namespace, TTL, and tags.
func (s *KVStore) Set(key, namespace string, value []byte, ttl time.Duration, tags []string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO kv_entries (key, namespace, value, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   namespace = excluded.namespace,
		   value = excluded.value,
		   expires_at = excluded.expires_at,
		   created_at = excluded.created_at`,
		key, namespace, value, now.Add(ttl).Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("kv set failed: %w", err)
	}

	// Rewrite the tag index for this key
	if _, err := s.db.Exec("DELETE FROM kv_tags WHERE key = ?", key); err != nil {
		return fmt.Errorf("kv tag clear failed: %w", err)
	}
	for _, tag := range tags {
		if _, err := s.db.Exec("INSERT OR IGNORE INTO kv_tags (tag, key) VALUES (?, ?)", tag, key); err != nil {
			return fmt.Errorf("kv tag write failed: %w", err)
		}
	}
	return nil
}

// Delete removes a key and its tag index rows.
func (s *KVStore) Delete(key string) (bool, error) {
	res, err := s.db.Exec("DELETE FROM kv_entries WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("kv delete failed: %w", err)
	}
	_, _ = s.db.Exec("DELETE FROM kv_tags WHERE key = ?", key)
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Exists reports whether a non-expired entry is present.
func (s *KVStore) Exists(key string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM kv_entries WHERE key = ? AND expires_at > ?",
		key, time.Now().Unix(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("kv exists failed: %w", err)
	}
	return count > 0, nil
}

// DeleteNamespace removes every entry in a namespace and returns the count.
func (s *KVStore) DeleteNamespace(namespace string) (int, error) {
	_, _ = s.db.Exec(
		"DELETE FROM kv_tags WHERE key IN (SELECT key FROM kv_entries WHERE namespace = ?)",
		namespace,
	)
	res, err := s.db.Exec("DELETE FROM kv_entries WHERE namespace = ?", namespace)
	if err != nil {
		return 0, fmt.Errorf("kv namespace delete failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// KeysByTags returns the union of keys carrying any of the given tags.
func (s *KVStore) KeysByTags(tags []string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string
	for _, tag := range tags {
		rows, err := s.db.Query("SELECT key FROM kv_tags WHERE tag = ?", tag)
		if err != nil {
			return nil, fmt.Errorf("kv tag lookup failed: %w", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return nil, err
			}
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// SweepExpired removes expired entries and their tag rows.
func (s *KVStore) SweepExpired() (int, error) {
	now := time.Now().Unix()
	_, _ = s.db.Exec(
		"DELETE FROM kv_tags WHERE key IN (SELECT key FROM kv_entries WHERE expires_at <= ?)", now,
	)
	res, err := s.db.Exec("DELETE FROM kv_entries WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("kv sweep failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
