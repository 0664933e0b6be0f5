// Package loader reads semicolon-delimited scan exports into a single combined finding table.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/DrSkyle/scantrail/internal/swarm"
	"github.com/DrSkyle/scantrail/pkg/finding"
	"github.com/DrSkyle/scantrail/pkg/storage"
)

// Fetch concurrency bounds. Local reads are fast enough that the limit grows to the ceiling.
const (
	fetchStart = 4
	fetchMin   = 1
	fetchMax   = 16
)

var (
	// ErrInputNotFound is fatal: a named input path does not exist.
	ErrInputNotFound = errors.New("input path not found")
	// ErrInputUnreadable is fatal: a named file or directory exists but cannot be read.
	ErrInputUnreadable = errors.New("input path unreadable")
	// ErrMissingColumns marks a file skipped because required headers are absent.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrNoTimestamp marks a file skipped because no scan time could be derived.
	ErrNoTimestamp = errors.New("no scan timestamp")
)

// SkippedFile records a file that was not loaded and why.
type SkippedFile struct {
	Source string
	Err    error
}

// Result is the combined finding table plus per-file diagnostics.
type Result struct {
	Findings []finding.Finding
	Files    []string
	Skipped  []SkippedFile
	Warnings []string
}

// Empty reports whether no finding was loaded.
func (r *Result) Empty() bool { return len(r.Findings) == 0 }

// Loader resolves inputs and parses them.
type Loader struct {
	Logger *slog.Logger

	// Open returns the store behind a directory or s3:// input. Overridable in tests.
	Open func(ctx context.Context, addr string) (storage.BlobStore, string, error)

	// Workers caps concurrent file fetches. Zero uses the default ceiling.
	Workers int
}

// New returns a Loader that logs through logger.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Logger: logger, Open: storage.Open}
}

type source struct {
	name string
	read func(ctx context.Context) ([]byte, error)
	// named is set for files listed explicitly; their read failures are fatal.
	named bool
}

// Load accepts a comma-separated list of files, a directory, or an s3://bucket/prefix URL.
// Missing or unreadable named paths fail the whole load. Files found by listing a directory
// or prefix that cannot be read, and malformed files, are skipped and reported in Result.Skipped.
func (l *Loader) Load(ctx context.Context, input string) (*Result, error) {
	sources, err := l.resolve(ctx, input)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	if len(sources) == 0 {
		l.warn(res, "no CSV files found", "input", input)
		return res, nil
	}

	fetched := l.fetch(ctx, sources)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Files are merged in resolution order regardless of fetch completion order.
	for i, src := range sources {
		if err := fetched[i].err; err != nil {
			if src.named {
				return nil, fmt.Errorf("%w: %s: %v", ErrInputUnreadable, src.name, err)
			}
			res.Skipped = append(res.Skipped, SkippedFile{Source: src.name, Err: err})
			l.warn(res, "skipping unreadable file", "file", src.name, "error", err)
			continue
		}

		rows, err := Parse(src.name, bytes.NewReader(fetched[i].data))
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedFile{Source: src.name, Err: err})
			l.warn(res, "skipping file", "file", src.name, "error", err)
			continue
		}

		l.Logger.Info("loaded scan file", "file", src.name, "rows", len(rows))
		res.Files = append(res.Files, src.name)
		res.Findings = append(res.Findings, rows...)
	}

	if len(res.Files) == 0 {
		l.warn(res, "no scan file could be loaded", "input", input)
	}
	return res, nil
}

type fetchResult struct {
	data []byte
	err  error
}

func (l *Loader) fetch(ctx context.Context, sources []source) []fetchResult {
	limit := l.Workers
	if limit <= 0 {
		limit = fetchMax
	}
	pool := swarm.NewPool(fetchStart, fetchMin, limit)
	pool.Throttled = storage.IsThrottled

	out := make([]fetchResult, len(sources))
	errs := pool.Run(ctx, len(sources), func(ctx context.Context, i int) error {
		data, err := sources[i].read(ctx)
		out[i].data = data
		return err
	})
	for i, err := range errs {
		out[i].err = err
	}

	stats := pool.Stats()
	l.Logger.Debug("fetched scan files", "files", len(sources), "completed", stats.Completed, "limit", stats.Limit)
	return out
}

func (l *Loader) warn(res *Result, msg string, args ...any) {
	l.Logger.Warn(msg, args...)
	parts := []string{msg}
	for i := 0; i+1 < len(args); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", args[i], args[i+1]))
	}
	res.Warnings = append(res.Warnings, strings.Join(parts, " "))
}

func (l *Loader) resolve(ctx context.Context, input string) ([]source, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInputNotFound)
	}
	if storage.IsS3(input) {
		return l.resolveRemote(ctx, input)
	}

	var out []source
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrInputNotFound, p)
			}
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}

		if !info.IsDir() {
			src, err := l.fileSource(ctx, p)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
			continue
		}

		found, err := l.dirSources(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// fileSource reads a named file through the store of its directory.
func (l *Loader) fileSource(ctx context.Context, p string) (source, error) {
	store, _, err := l.Open(ctx, filepath.Dir(p))
	if err != nil {
		return source{}, fmt.Errorf("%w: %s: %v", ErrInputUnreadable, p, err)
	}
	key := filepath.Base(p)
	return source{
		name:  p,
		named: true,
		read:  func(ctx context.Context) ([]byte, error) { return store.Get(ctx, key) },
	}, nil
}

// dirSources lists the CSV files directly inside dir in lexical order.
func (l *Loader) dirSources(ctx context.Context, dir string) ([]source, error) {
	store, _, err := l.Open(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInputUnreadable, dir, err)
	}
	keys, err := store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInputUnreadable, dir, err)
	}

	var out []source
	for _, key := range keys {
		if strings.Contains(key, "/") || !strings.EqualFold(path.Ext(key), ".csv") {
			continue
		}
		key := key
		out = append(out, source{
			name: filepath.Join(dir, key),
			read: func(ctx context.Context) ([]byte, error) { return store.Get(ctx, key) },
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func (l *Loader) resolveRemote(ctx context.Context, input string) ([]source, error) {
	store, prefix, err := l.Open(ctx, input)
	if err != nil {
		return nil, err
	}

	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInputNotFound, input, err)
	}

	base := strings.TrimSuffix(input, "/"+prefix)
	base = strings.TrimSuffix(base, "/")

	var out []source
	for _, key := range keys {
		if !strings.EqualFold(path.Ext(key), ".csv") {
			continue
		}
		key := key
		out = append(out, source{
			name: base + "/" + key,
			read: func(ctx context.Context) ([]byte, error) { return store.Get(ctx, key) },
		})
	}
	return out, nil
}
