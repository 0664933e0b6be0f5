package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// UploadDir copies every regular file under dir into store below prefix.
func UploadDir(ctx context.Context, store BlobStore, dir, prefix string) (int, error) {
	count := 0
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := store.Put(ctx, key, data); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		count++
		return nil
	})
	return count, err
}
