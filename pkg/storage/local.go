package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// LocalStore serves scan exports and artifacts from a directory tree.
// Keys are slash-separated paths relative to Root.
type LocalStore struct {
	Root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{Root: root}
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

// Put writes data under key, creating parent directories.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", key, err)
	}
	return os.WriteFile(p, data, 0644)
}

// Get reads the object stored under key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.path(key))
}

// List returns the keys of all regular files below prefix in lexical order.
// A missing prefix lists nothing. An unreadable prefix is an error, while
// unreadable subdirectories below it are left out.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	root := s.path(prefix)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			switch {
			case p == root && errors.Is(err, fs.ErrNotExist):
				return fs.SkipAll
			case p == root:
				return err
			case d != nil && d.IsDir():
				return fs.SkipDir
			}
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.Type().IsRegular() {
			rel, _ := filepath.Rel(s.Root, p)
			keys = append(keys, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	sort.Strings(keys)
	return keys, nil
}
