package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// KVRepository stores JSON values under string keys
type KVRepository struct {
	db *DB
}

// NewKVRepository creates a new key/value repository
func NewKVRepository(db *DB) *KVRepository {
	return &KVRepository{db: db}
}

// Get returns the raw value stored under key. ok is false when there is none.
func (r *KVRepository) Get(key string) (value []byte, ok bool, err error) {
	var s string
	err = r.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(s), true, nil
}

// Put stores a raw value under key, replacing any previous one
func (r *KVRepository) Put(key string, value []byte) error {
	_, err := r.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(value), time.Now().UTC())
	return err
}

// GetJSON decodes the value under key into v. ok is false when the key is
// absent; a value that does not decode is returned as an error.
func (r *KVRepository) GetJSON(key string, v any) (bool, error) {
	raw, ok, err := r.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, err
	}
	return true, nil
}

// PutJSON encodes v and stores it under key
func (r *KVRepository) PutJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.Put(key, b)
}

// Delete removes the given keys
func (r *KVRepository) Delete(keys ...string) error {
	for _, k := range keys {
		if _, err := r.db.Exec(`DELETE FROM kv WHERE key = ?`, k); err != nil {
			return err
		}
	}
	return nil
}

// keys lists stored keys in ascending order
func (r *KVRepository) keys() ([]string, error) {
	rows, err := r.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
