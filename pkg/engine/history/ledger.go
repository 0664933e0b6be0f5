// Package history keeps an append-only ledger of analysis runs and derives run-over-run signals.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// RunSummary is the ledger entry written after each analysis.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Timestamp   int64  `json:"timestamp"`
	PeriodStart int64  `json:"period_start"`
	PeriodEnd   int64  `json:"period_end"`
	Input       string `json:"input"`

	Snapshots int     `json:"snapshots"`
	Findings  int     `json:"findings"`
	Failing   int     `json:"failing"`
	Passing   int     `json:"passing"`
	PassRate  float64 `json:"pass_rate"`

	// FailBySeverity counts failing findings of the latest snapshot per severity name.
	FailBySeverity map[string]int `json:"fail_by_severity"`

	OpenRecords     int `json:"open_records"`
	ResolvedRecords int `json:"resolved_records"`

	// NewRecords and PersistentRecords split the open records by their first failing scan.
	NewRecords        int `json:"new_records"`
	PersistentRecords int `json:"persistent_records"`

	// FailByProject is only set when an account directory is configured.
	FailByProject map[string]int `json:"fail_by_project,omitempty"`
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Backend defines the storage interface for run summaries.
type Backend interface {
	Append(ctx context.Context, s RunSummary) error
	Load(ctx context.Context, n int) ([]RunSummary, error)
}

// Client manages historical state.
type Client struct {
	backend Backend
}

// NewClient initializes a history client.
// Defaults to FileBackend.
func NewClient(backend Backend) *Client {
	if backend == nil {
		backend = &FileBackend{}
	}
	return &Client{
		backend: backend,
	}
}

// Open picks an S3 backend for "s3://bucket/key" and a file backend otherwise.
func Open(ctx context.Context, location string) (*Client, error) {
	if strings.HasPrefix(location, "s3://") {
		b, err := NewS3Backend(ctx, location)
		if err != nil {
			return nil, err
		}
		return NewClient(b), nil
	}
	return NewClient(NewLocalBackend(location)), nil
}

// Append records a new run.
func (c *Client) Append(ctx context.Context, s RunSummary) error {
	if s.RunID == "" {
		s.RunID = NewRunID()
	}
	return c.backend.Append(ctx, s)
}

// LoadWindow retrieves the last n runs, oldest first.
func (c *Client) LoadWindow(ctx context.Context, n int) ([]RunSummary, error) {
	return c.backend.Load(ctx, n)
}

// NewLocalBackend creates a file-based backend at the specified path.
func NewLocalBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// FileBackend implements local filesystem storage.
type FileBackend struct {
	Path string
}

func (b *FileBackend) path() (string, error) {
	if b.Path != "" {
		return b.Path, nil
	}
	return GetLedgerPath()
}

func (b *FileBackend) Append(ctx context.Context, s RunSummary) error {
	path, err := b.path()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

func (b *FileBackend) Load(ctx context.Context, n int) ([]RunSummary, error) {
	path, err := b.path()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return []RunSummary{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	history, err := decode(bufio.NewScanner(f))
	if err != nil {
		return nil, err
	}
	return tail(history, n), nil
}

// decode skips lines that are not valid entries.
func decode(scanner *bufio.Scanner) ([]RunSummary, error) {
	var history []RunSummary
	for scanner.Scan() {
		var s RunSummary
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			continue
		}
		history = append(history, s)
	}
	return history, scanner.Err()
}

func tail(history []RunSummary, n int) []RunSummary {
	if n > 0 && len(history) > n {
		return history[len(history)-n:]
	}
	return history
}

// GetLedgerPath provides the default local storage path.
func GetLedgerPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".scantrail", "ledger.jsonl"), nil
}
