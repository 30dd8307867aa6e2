package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sandevgo/membank/internal/core"
)

// Session context entries live under the session partition as one raw text
// file per key, with a .ctx extension so they never collide with block files.
// File names carry the URL-path-escaped key so any key round trips and
// distinct keys never share a file.
const sessionExt = ".ctx"

func (s *Store) sessionPath(key string) string {
	return filepath.Join(s.tierDir(core.TierSession), url.PathEscape(key)+sessionExt)
}

func (s *Store) SessionContext(ctx context.Context) (map[string]string, error) {
	dir := s.tierDir(core.TierSession)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list session context: %w", err)
	}

	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != sessionExt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read session context %s: %w", e.Name(), err)
		}
		key, err := url.PathUnescape(strings.TrimSuffix(e.Name(), sessionExt))
		if err != nil {
			return nil, fmt.Errorf("decode session context key %s: %w", e.Name(), err)
		}
		out[key] = string(data)
	}
	return out, nil
}

func (s *Store) UpdateSessionContext(ctx context.Context, key, content string) error {
	if key == "" {
		return &core.ValidationError{Subject: "session context", Problems: []string{"empty key"}}
	}
	dir := s.tierDir(core.TierSession)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session partition: %w", err)
	}
	if err := os.WriteFile(s.sessionPath(key), []byte(content), 0644); err != nil {
		return fmt.Errorf("write session context %s: %w", key, err)
	}
	return nil
}
