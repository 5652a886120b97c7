// Package writer writes dataset records into partitioned files: records
// are grouped by partition, encoded as JSON lines, compressed, uploaded to
// object storage and registered in the manifest.
package writer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	kerrors "github.com/dpblh/kite/internal/errors"
	"github.com/dpblh/kite/internal/layout"
	"github.com/dpblh/kite/internal/manifest"
	"github.com/dpblh/kite/internal/router"
	"github.com/dpblh/kite/internal/storage"
	"github.com/dpblh/kite/pkg/partition"
)

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = kerrors.New(kerrors.ErrCategoryInternal, kerrors.CodeClosed, "writer is closed")

// Options configures a Writer.
type Options struct {
	// Strategy partitions the records; nil writes unpartitioned files.
	Strategy *partition.Strategy

	// Accessor reads partition fields; nil uses partition.DefaultAccessor.
	Accessor partition.FieldAccessor

	// Storage receives the partition files. Required.
	Storage storage.ObjectStorage

	// Catalog registers written files. Optional.
	Catalog manifest.Catalog

	// Notifier is told about written files. Optional.
	Notifier *router.Notifier

	// Compression is none, snappy or zstd.
	Compression string

	// TempDir holds files before upload; empty uses the OS temp dir.
	TempDir string

	// Concurrency bounds the partitions written in parallel.
	Concurrency int

	Logger *zap.Logger
}

// FileInfo describes one written partition file.
type FileInfo struct {
	FileID      string
	Dataset     string
	Partition   string
	Key         partition.Key
	ObjectPath  string
	Records     int64
	SizeBytes   int64
	Compression string
	CreatedAt   time.Time
}

// Writer writes records into partition files.
type Writer struct {
	router      *router.Router
	storage     storage.ObjectStorage
	catalog     manifest.Catalog
	notifier    *router.Notifier
	compressor  Compressor
	tempDir     string
	concurrency int
	logger      *zap.Logger

	locks      *pathLocks
	registered sync.Map // dataset name -> struct{}

	inFlight sync.WaitGroup
	closedMu sync.RWMutex
	closed   bool
}

// New creates a writer.
func New(opts Options) (*Writer, error) {
	if opts.Storage == nil {
		return nil, kerrors.NewValidationError(kerrors.CodeInvalidConfig, "writer: storage is required")
	}
	compressor, err := CompressorFor(opts.Compression)
	if err != nil {
		return nil, kerrors.NewValidationError(kerrors.CodeInvalidConfig, "writer: "+err.Error())
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("writer: failed to create temp dir: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Writer{
		router:      router.New(opts.Strategy, opts.Accessor),
		storage:     opts.Storage,
		catalog:     opts.Catalog,
		notifier:    opts.Notifier,
		compressor:  compressor,
		tempDir:     opts.TempDir,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		locks:       newPathLocks(),
	}, nil
}

// Router returns the router the writer groups records with.
func (w *Writer) Router() *router.Router {
	return w.router
}

// Write partitions records and writes one file per partition. Files are
// returned in the order their partitions first appear in records. When a
// partition fails the files already written stay registered and the error
// is returned alongside them.
func (w *Writer) Write(ctx context.Context, dataset string, records []interface{}) ([]FileInfo, error) {
	if err := w.begin(); err != nil {
		return nil, err
	}
	defer w.inFlight.Done()

	if len(records) == 0 {
		return nil, nil
	}
	if err := w.registerDataset(ctx, dataset); err != nil {
		return nil, err
	}

	groups, order, err := w.router.Group(records)
	if err != nil {
		return nil, err
	}

	results := make([]*FileInfo, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, p := range order {
		i, group := i, groups[p]
		g.Go(func() error {
			info, err := w.writePartition(gctx, dataset, group)
			if err != nil {
				return fmt.Errorf("partition %q: %w", group.Path, err)
			}
			results[i] = info
			return nil
		})
	}
	err = g.Wait()

	files := make([]FileInfo, 0, len(results))
	for _, info := range results {
		if info != nil {
			files = append(files, *info)
		}
	}
	return files, err
}

func (w *Writer) registerDataset(ctx context.Context, dataset string) error {
	if dataset == "" {
		return kerrors.NewValidationError(kerrors.CodeInvalidConfig, "writer: dataset name is required")
	}
	if w.catalog == nil {
		return nil
	}
	if _, ok := w.registered.Load(dataset); ok {
		return nil
	}
	if err := w.catalog.RegisterDataset(ctx, dataset, w.router.Strategy()); err != nil {
		return err
	}
	w.registered.Store(dataset, struct{}{})
	return nil
}

func (w *Writer) writePartition(ctx context.Context, dataset string, group *router.Group) (*FileInfo, error) {
	unlock := w.locks.lock(group.Path)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate file id: %w", err)
	}
	fileID := id.String()
	objectPath := path.Join(dataset, group.Path, fileID+".jsonl"+w.compressor.Extension())

	localPath, size, err := w.encodeFile(group.Records)
	if err != nil {
		return nil, err
	}
	defer os.Remove(localPath)

	if err := w.storage.Upload(ctx, localPath, objectPath); err != nil {
		return nil, err
	}

	info := &FileInfo{
		FileID:      fileID,
		Dataset:     dataset,
		Partition:   group.Path,
		Key:         group.Key,
		ObjectPath:  objectPath,
		Records:     int64(len(group.Records)),
		SizeBytes:   size,
		Compression: w.compressor.Name(),
		CreatedAt:   time.Now(),
	}

	if w.catalog != nil {
		err := w.catalog.RegisterFile(ctx, &manifest.FileRecord{
			FileID:        info.FileID,
			Dataset:       dataset,
			PartitionPath: info.Partition,
			ObjectPath:    objectPath,
			RecordCount:   info.Records,
			SizeBytes:     size,
			Compression:   info.Compression,
			CreatedAt:     info.CreatedAt,
		})
		if err != nil {
			if derr := w.storage.Delete(context.WithoutCancel(ctx), objectPath); derr != nil {
				w.logger.Warn("failed to remove unregistered object",
					zap.String("object", objectPath), zap.Error(derr))
			}
			return nil, err
		}
	}

	if w.notifier != nil {
		w.notifier.Publish(router.Notification{
			Type:      router.FileWritten,
			Dataset:   dataset,
			Partition: info.Partition,
			FileID:    info.FileID,
			Object:    objectPath,
			Records:   info.Records,
			Timestamp: info.CreatedAt.UnixNano(),
		})
	}

	w.logger.Debug("partition file written",
		zap.String("dataset", dataset),
		zap.String("partition", info.Partition),
		zap.Int64("records", info.Records),
		zap.String("object", objectPath),
		zap.Int64("size_bytes", size))

	return info, nil
}

// encodeFile writes records to a compressed temp file and returns its path
// and size.
func (w *Writer) encodeFile(records []interface{}) (string, int64, error) {
	f, err := os.CreateTemp(w.tempDir, "kite-*.jsonl"+w.compressor.Extension())
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	fail := func(err error) (string, int64, error) {
		f.Close()
		os.Remove(f.Name())
		return "", 0, err
	}

	cw, err := w.compressor.Compress(f)
	if err != nil {
		return fail(fmt.Errorf("failed to start %s stream: %w", w.compressor.Name(), err))
	}
	if err := EncodeJSONL(cw, records); err != nil {
		cw.Close()
		return fail(fmt.Errorf("failed to encode records: %w", err))
	}
	if err := cw.Close(); err != nil {
		return fail(fmt.Errorf("failed to flush %s stream: %w", w.compressor.Name(), err))
	}

	stat, err := f.Stat()
	if err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), stat.Size(), nil
}

// Read downloads one partition file and decodes its records. Numbers decode
// as json.Number.
func (w *Writer) Read(ctx context.Context, objectPath string) ([]interface{}, error) {
	dir, err := os.MkdirTemp(w.tempDir, "read-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	localPath := filepath.Join(dir, path.Base(objectPath))
	if err := w.storage.Download(ctx, objectPath, localPath); err != nil {
		return nil, err
	}
	return readFile(localPath, objectPath)
}

// ReadPartition reads every registered file of a dataset under the given
// partition prefix (for example "event_type=click"), in manifest order.
func (w *Writer) ReadPartition(ctx context.Context, dataset, prefix string) ([]interface{}, error) {
	if w.catalog == nil {
		return nil, kerrors.NewValidationError(kerrors.CodeInvalidConfig, "writer: reading partitions requires a catalog")
	}
	segments, err := layout.Parse(prefix)
	if err != nil {
		return nil, err
	}
	files, err := w.catalog.FindFiles(ctx, dataset, segments)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp(w.tempDir, "read-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	objects := make([]string, len(files))
	for i, f := range files {
		objects[i] = f.ObjectPath
	}
	result, err := storage.NewBatchDownloader(w.storage, w.concurrency, dir).Download(ctx, objects)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	var records []interface{}
	for _, object := range objects {
		decoded, err := readFile(result.LocalPaths[object], object)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", object, err)
		}
		records = append(records, decoded...)
	}
	return records, nil
}

func readFile(localPath, objectPath string) ([]interface{}, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := compressorForObject(objectPath).Decompress(f)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return DecodeJSONL(r)
}

// Close stops accepting writes and waits for in-flight writes to finish.
func (w *Writer) Close() error {
	w.closedMu.Lock()
	w.closed = true
	w.closedMu.Unlock()

	w.inFlight.Wait()
	return nil
}

func (w *Writer) begin() error {
	w.closedMu.RLock()
	defer w.closedMu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.inFlight.Add(1)
	return nil
}
