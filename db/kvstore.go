package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// KVStore is a namespaced key-value store over the kv_store table. Values
// are JSON documents stored as text.
//
// Writes are last-writer-wins. Multi-key Set and Remove run in a single
// transaction, so readers see all of a batch or none of it.
type KVStore struct {
	database  *Database
	namespace string
}

// Namespace returns the namespace this store reads and writes.
func (s *KVStore) Namespace() string {
	return s.namespace
}

// GetAll returns every key in the namespace.
func (s *KVStore) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	conn, err := s.database.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		"SELECT key, value FROM kv_store WHERE namespace = ?", s.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.namespace, err)
	}
	return scanValues(rows)
}

// Get returns the subset of keys that exist. Missing keys are simply absent
// from the result; that is not an error.
func (s *KVStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if len(keys) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	conn, err := s.database.conn()
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, s.namespace)
	for _, k := range keys {
		args = append(args, k)
	}

	query := "SELECT key, value FROM kv_store WHERE namespace = ? AND key IN (" + placeholders(len(keys)) + ")"
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.namespace, err)
	}
	return scanValues(rows)
}

// Set upserts every item.
func (s *KVStore) Set(ctx context.Context, items map[string]json.RawMessage) error {
	if len(items) == 0 {
		return nil
	}

	conn, err := s.database.conn()
	if err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for key, value := range items {
		if _, err := stmt.ExecContext(ctx, s.namespace, key, string(value)); err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", s.namespace, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Remove deletes the given keys. Keys that do not exist are ignored.
func (s *KVStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	conn, err := s.database.conn()
	if err != nil {
		return err
	}

	args := make([]any, 0, len(keys)+1)
	args = append(args, s.namespace)
	for _, k := range keys {
		args = append(args, k)
	}

	query := "DELETE FROM kv_store WHERE namespace = ? AND key IN (" + placeholders(len(keys)) + ")"
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.namespace, err)
	}
	return nil
}

// RemoveIfUnchanged deletes each key whose stored value still equals the
// expected one. The batch runs in one transaction and the number of deleted
// rows is returned.
func (s *KVStore) RemoveIfUnchanged(ctx context.Context, expected map[string]json.RawMessage) (int, error) {
	if len(expected) == 0 {
		return 0, nil
	}

	conn, err := s.database.conn()
	if err != nil {
		return 0, err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	stmt, err := tx.PrepareContext(ctx,
		"DELETE FROM kv_store WHERE namespace = ? AND key = ? AND value = ?")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	var removed int64
	for key, value := range expected {
		res, err := stmt.ExecContext(ctx, s.namespace, key, string(value))
		if err != nil {
			return 0, fmt.Errorf("failed to delete %s/%s: %w", s.namespace, key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count deleted rows: %w", err)
		}
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(removed), nil
}

// scanValues drains rows of (key, value) into a map and closes rows.
func scanValues(rows *sql.Rows) (map[string]json.RawMessage, error) {
	defer rows.Close()

	result := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return result, nil
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
