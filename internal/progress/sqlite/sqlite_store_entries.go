package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"quiz-runner/internal/progress"
)

var _ progress.Backend = (*SQLiteStore)(nil)

func (s *SQLiteStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	found := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for idx, key := range keys {
		args[idx] = key
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT entry_key, entry_value FROM progress_entries WHERE entry_key IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query progress entries")
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "scan progress entry")
		}
		found[key] = value
	}

	return found, rows.Err()
}

// Apply writes the whole mutation in one transaction so the attempt record
// and the answer buffer are never observed half-updated.
func (s *SQLiteStore) Apply(ctx context.Context, m progress.Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin progress transaction")
	}
	defer tx.Rollback()

	for _, key := range m.Delete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM progress_entries WHERE entry_key = ?`, key); err != nil {
			return errors.Wrapf(err, "delete %s", key)
		}
	}

	now := time.Now().UTC().UnixNano()
	for key, value := range m.Set {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO progress_entries (entry_key, entry_value, updated_at_unix)
			 VALUES (?, ?, ?)
			 ON CONFLICT(entry_key) DO UPDATE SET
				entry_value = excluded.entry_value,
				updated_at_unix = excluded.updated_at_unix`,
			key,
			value,
			now,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert %s", key)
		}
	}

	return errors.Wrap(tx.Commit(), "commit progress transaction")
}
