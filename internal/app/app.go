// Package app wires a configured dataset: its partition strategy, object
// storage, manifest catalog and writer.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/dpblh/kite/internal/config"
	"github.com/dpblh/kite/internal/layout"
	"github.com/dpblh/kite/internal/manifest"
	"github.com/dpblh/kite/internal/router"
	"github.com/dpblh/kite/internal/storage"
	"github.com/dpblh/kite/internal/writer"
	"github.com/dpblh/kite/pkg/partition"
	"github.com/dpblh/kite/pkg/types"
)

// notifierBuffer is the channel size of notifier subscribers.
const notifierBuffer = 256

// App holds the resources of one configured dataset.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	strategy *partition.Strategy
	storage  storage.ObjectStorage
	catalog  *manifest.SQLiteCatalog
	notifier *router.Notifier
	writer   *writer.Writer
}

// New resolves and validates the configuration, then opens storage and the
// manifest catalog. A nil logger discards logs.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Debug("storage initialized", zap.String("type", cfg.Storage.Type))

	catalog, err := manifest.NewCatalog(cfg.Manifest.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize manifest catalog: %w", err)
	}
	logger.Debug("manifest catalog initialized", zap.String("path", cfg.Manifest.Path))

	notifier := router.NewNotifier(notifierBuffer)
	w, err := writer.New(writer.Options{
		Strategy:    strategy,
		Storage:     store,
		Catalog:     catalog,
		Notifier:    notifier,
		Compression: cfg.Dataset.Compression,
		TempDir:     cfg.Writer.TempDir,
		Concurrency: cfg.Writer.Concurrency,
		Logger:      logger.With(zap.String("dataset", cfg.Dataset.Name)),
	})
	if err != nil {
		catalog.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		strategy: strategy,
		storage:  store,
		catalog:  catalog,
		notifier: notifier,
		writer:   w,
	}, nil
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Strategy returns the dataset's partition strategy, nil when unpartitioned.
func (a *App) Strategy() *partition.Strategy { return a.strategy }

// Storage returns the object storage.
func (a *App) Storage() storage.ObjectStorage { return a.storage }

// Catalog returns the manifest catalog.
func (a *App) Catalog() manifest.Catalog { return a.catalog }

// Notifier returns the bus that announces written files.
func (a *App) Notifier() *router.Notifier { return a.notifier }

// Writer returns the dataset writer.
func (a *App) Writer() *writer.Writer { return a.writer }

// ReadRecords decodes JSON lines from r using the dataset schema.
func (a *App) ReadRecords(r io.Reader) ([]interface{}, error) {
	return ReadRecords(r, a.cfg.Dataset.Schema)
}

// ReadRecords decodes JSON lines from r. With a schema each line becomes a
// *types.Record, otherwise it stays a map.
func ReadRecords(r io.Reader, schema *types.Schema) ([]interface{}, error) {
	var records []interface{}
	line := 0
	err := writer.ScanJSONL(r, func(raw interface{}) error {
		line++
		rec, err := decode(raw, schema)
		if err != nil {
			return fmt.Errorf("record %d: %w", line, err)
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

func decode(raw interface{}, schema *types.Schema) (interface{}, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("record must be a JSON object, got %T", raw)
	}
	if schema == nil {
		return m, nil
	}
	return types.RecordFromJSON(schema, m)
}

// Ingest reads JSON lines from r and writes them to the dataset.
func (a *App) Ingest(ctx context.Context, r io.Reader) ([]writer.FileInfo, error) {
	records, err := a.ReadRecords(r)
	if err != nil {
		return nil, err
	}
	files, err := a.writer.Write(ctx, a.cfg.Dataset.Name, records)
	if err != nil {
		return files, err
	}
	a.logger.Info("ingest complete",
		zap.String("dataset", a.cfg.Dataset.Name),
		zap.Int("records", len(records)),
		zap.Int("files", len(files)))
	return files, nil
}

// Files lists the registered files under a partition path prefix.
func (a *App) Files(ctx context.Context, prefix string) ([]*manifest.FileRecord, error) {
	segments, err := layout.Parse(prefix)
	if err != nil {
		return nil, err
	}
	return a.catalog.FindFiles(ctx, a.cfg.Dataset.Name, segments)
}

// Partitions summarises the dataset's partitions.
func (a *App) Partitions(ctx context.Context) ([]manifest.PartitionSummary, error) {
	return a.catalog.ListPartitions(ctx, a.cfg.Dataset.Name)
}

// Reconcile compares the manifest with object storage.
func (a *App) Reconcile(ctx context.Context) (*manifest.ReconciliationReport, error) {
	return manifest.Reconcile(ctx, a.catalog, a.storage, a.cfg.Dataset.Name)
}

// Close waits for in-flight writes and releases the catalog.
func (a *App) Close() error {
	if err := a.writer.Close(); err != nil {
		a.logger.Warn("writer close failed", zap.Error(err))
	}
	return a.catalog.Close()
}
