// Key-value operations of the SQLite backend.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/kvsync/pkg/types"
)

// Get returns the value stored under key.
// Returns ErrNotFound if the key is absent.
func (b *Backend) Get(key string) (any, error) {
	if err := types.ValidateKey(key); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	var kind, text string
	err := b.db.QueryRow(`SELECT kind, value FROM kv WHERE key = ?`, key).Scan(&kind, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}

	v, err := decodeValue(kind, text)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return v, nil
}

// Set stores value under key and appends a change log row.
// Adding a key beyond Config.MaxKeys returns ErrQuotaExceeded and posts a
// quota violation change to this backend's own subscribers.
func (b *Backend) Set(key string, value any) error {
	if err := types.ValidateKey(key); err != nil {
		return err
	}
	kind, text, err := encodeValue(value)
	if err != nil {
		return err
	}

	err = b.set(key, kind, text)
	if errors.Is(err, types.ErrQuotaExceeded) {
		b.deliver(types.NewChange(types.ReasonQuotaViolationChange, key))
	}
	return err
}

func (b *Backend) set(key, kind, text string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if b.config.MaxKeys > 0 {
		var exists, count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM kv WHERE key = ?`, key).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			if err := tx.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&count); err != nil {
				return err
			}
			if count >= b.config.MaxKeys {
				return fmt.Errorf("set %q: %w", key, types.ErrQuotaExceeded)
			}
		}
	}

	ts := now()
	_, err = tx.Exec(`INSERT INTO kv (key, kind, value, version, writer_id, updated_at)
VALUES (?, ?, ?, 1, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    kind = excluded.kind,
    value = excluded.value,
    version = kv.version + 1,
    writer_id = excluded.writer_id,
    updated_at = excluded.updated_at`,
		key, kind, text, b.writerID, ts)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	if err := b.logChange(tx, key, opSet, ts); err != nil {
		return err
	}
	return tx.Commit()
}

// Remove deletes key. Returns ErrNotFound if the key is absent.
func (b *Backend) Remove(key string) error {
	if err := types.ValidateKey(key); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotFound
	}

	if err := b.logChange(tx, key, opRemove, now()); err != nil {
		return err
	}
	return tx.Commit()
}

// Keys returns all keys in ascending order.
func (b *Backend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Snapshot returns a copy of every stored entry.
func (b *Backend) Snapshot() (map[string]any, error) {
	records, err := b.records()
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(records))
	for _, r := range records {
		v, err := decodeValue(r.Kind, string(r.Value))
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", r.Key, err)
		}
		out[r.Key] = v
	}
	return out, nil
}

// records reads every kv row in key order.
func (b *Backend) records() ([]record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.Query(`SELECT key, kind, value, version, updated_at FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record
	for rows.Next() {
		var r record
		var text string
		if err := rows.Scan(&r.Key, &r.Kind, &text, &r.Version, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Value = []byte(text)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *Backend) logChange(tx *sql.Tx, key, op, ts string) error {
	_, err := tx.Exec(`INSERT INTO changes (change_id, key, operation, writer_id, changed_at)
VALUES (?, ?, ?, ?, ?)`, generateUUID(), key, op, b.writerID, ts)
	if err != nil {
		return fmt.Errorf("log change %q: %w", key, err)
	}
	return nil
}
