package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"runtime/debug"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrSkyle/scantrail/pkg/config"
	"github.com/DrSkyle/scantrail/pkg/engine/history"
	"github.com/DrSkyle/scantrail/pkg/engine/notifier"
	"github.com/DrSkyle/scantrail/pkg/loader"
	"github.com/DrSkyle/scantrail/pkg/storage"
	"github.com/DrSkyle/scantrail/pkg/telemetry"
	"github.com/DrSkyle/scantrail/pkg/version"
)

// ErrEmptyResult indicates no finding survived loading and filtering.
// Artifacts are still written; callers treat it as a warning.
var ErrEmptyResult = errors.New("analysis produced an empty result")

// Mode selects which artifacts a run produces.
type Mode int

const (
	// ModeFull writes trend and remediation artifacts.
	ModeFull Mode = iota
	// ModeRemediation writes remediation artifacts only.
	ModeRemediation
)

// Config holds engine settings.
type Config struct {
	Input string
	Mode  Mode

	Analysis     config.AnalysisConfig
	Output       config.OutputConfig
	Integrations config.IntegrationConfig

	// Telemetry config.
	OtelEndpoint  string // "http://localhost:4318" or via env
	SkipTelemetry bool   // Set true if embedding in an app that already has OTEL

	Logger *slog.Logger
}

// DefaultConfig returns a config populated from pkg/config defaults.
func DefaultConfig() Config {
	return Config{
		Analysis:     config.DefaultAnalysisConfig(),
		Output:       config.DefaultOutputConfig(),
		Integrations: config.DefaultIntegrationConfig(),
	}
}

// Engine is the runtime core.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	// Immutable config.
	config    Config
	outputDir string
	s3Target  string // "s3://bucket/prefix" or empty

	// openTarget resolves s3Target for the upload.
	openTarget func(ctx context.Context, addr string) (storage.BlobStore, string, error)

	// External dependencies.
	Loader   *loader.Loader
	History  *history.Client
	Notifier *notifier.SlackClient

	shutdown telemetry.ShutdownFunc
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	// Safe defaults.
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		ReplaceAttr: RedactSensitiveData,
	})
	e := &Engine{
		Logger:    slog.New(handler),
		Tracer:    otel.Tracer("scantrail/engine"),
		config:     DefaultConfig(),
		outputDir:  config.DefaultOutputDir,
		openTarget: storage.Open,
	}

	// Apply options.
	for _, opt := range opts {
		opt(e)
	}

	if e.Loader == nil {
		e.Loader = loader.New(e.Logger)
	}

	if e.s3Target != "" {
		staging, err := os.MkdirTemp("", config.StagingDir+"-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
		e.outputDir = staging
	}

	// Initialize telemetry.
	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			e.shutdown = shutdown
		}
		e.Tracer = otel.Tracer("scantrail/engine")
	}

	// Initialize history.
	if e.History == nil {
		ledger := e.config.Integrations.Ledger
		switch {
		case ledger != "":
		case e.s3Target != "":
			ledger = strings.TrimSuffix(e.s3Target, "/") + "/" + path.Join(config.LedgerDir, config.LedgerFile)
		default:
			ledger = config.LedgerPath(e.outputDir)
		}
		client, err := history.Open(ctx, ledger)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		e.History = client
	}

	if e.Notifier == nil && e.config.Integrations.SlackWebhook != "" {
		e.Notifier = notifier.NewSlackClient(e.config.Integrations.SlackWebhook, e.config.Integrations.SlackChannel)
	}

	return e, nil
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.Logger = l
		}
	}
}

// WithHistory replaces the ledger client.
func WithHistory(c *history.Client) Option {
	return func(e *Engine) {
		e.History = c
	}
}

// WithNotifier sets the Slack client.
func WithNotifier(n *notifier.SlackClient) Option {
	return func(e *Engine) {
		e.Notifier = n
	}
}

// WithLoader overrides the input loader.
func WithLoader(l *loader.Loader) Option {
	return func(e *Engine) {
		e.Loader = l
	}
}

// WithConfig sets raw config. An s3:// output directory is staged in a fresh temporary
// directory, uploaded after the run and then removed.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
		if dir := cfg.Output.Dir; dir != "" {
			if storage.IsS3(dir) {
				e.s3Target = dir
				e.outputDir = ""
			} else {
				e.outputDir = dir
			}
		}
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
	}
}

// OutputDir is the local directory artifacts are written to.
func (e *Engine) OutputDir() string { return e.outputDir }

// Shutdown flushes telemetry.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.shutdown == nil {
		return nil
	}
	return e.shutdown(ctx)
}

// recoverPanic converts a panic into an error on the active span.
func (e *Engine) recoverPanic(ctx context.Context, errp *error) {
	if r := recover(); r != nil {
		// Use independent span.
		_, span := e.Tracer.Start(ctx, "CriticalPanic")

		stack := debug.Stack()

		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "CRITICAL FAILURE")
		span.SetAttributes(
			attribute.String("crash.stack", string(stack)),
			attribute.String("crash.reason", fmt.Sprintf("%v", r)),
		)
		span.End()

		e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))
		*errp = fmt.Errorf("analysis aborted: %v", r)
	}
}

// RedactSensitiveData scrubs sensitive keys from logs.
func RedactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"password": true, "access_key": true, "token": true,
		"secret": true, "api_key": true, "private_key": true, "auth_token": true,
		"refresh_token": true, "credential": true, "webhook": true,
		"slack_webhook": true, "webhook_url": true,
	}

	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}
