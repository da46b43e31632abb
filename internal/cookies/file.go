package cookies

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps the jar as a plain `name=value; ...` text file.
type FileStore struct {
	Path string
	now  func() time.Time
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, now: time.Now}
}

func (s *FileStore) Load(ctx context.Context) (*Jar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrCookieLoad, s.Path, err)
	}
	return NewJar(ParseCookieString(string(data))...), nil
}

// Save rewrites the file atomically. Attributes other than name and value
// are not representable in this format and are dropped.
func (s *FileStore) Save(ctx context.Context, jar *Jar) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if jar == nil {
		return fmt.Errorf("%w: nil jar", ErrCookieSave)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".cookies-*")
	if err != nil {
		return fmt.Errorf("%w (%s): %w", ErrCookieSave, s.Path, err)
	}
	tmpPath := tmp.Name()
	_, werr := tmp.WriteString(strings.TrimSpace(jar.Header(now())))
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpPath, 0o600)
	}
	if werr == nil {
		werr = os.Rename(tmpPath, s.Path)
	}
	if werr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w (%s): %w", ErrCookieSave, s.Path, werr)
	}
	return nil
}
