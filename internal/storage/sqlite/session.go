package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/membank/internal/core"
)

func (s *Store) SessionContext(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, content FROM session_context`)
	if err != nil {
		return nil, fmt.Errorf("failed to query session context: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, content string
		if err := rows.Scan(&key, &content); err != nil {
			return nil, err
		}
		out[key] = content
	}
	return out, rows.Err()
}

func (s *Store) UpdateSessionContext(ctx context.Context, key, content string) error {
	if key == "" {
		return &core.ValidationError{Subject: "session context", Problems: []string{"empty key"}}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_context (key, content, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		key, content, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session context: %w", err)
	}
	return nil
}
