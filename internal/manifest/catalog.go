package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"

	kerrors "github.com/dpblh/kite/internal/errors"
	"github.com/dpblh/kite/internal/layout"
	"github.com/dpblh/kite/pkg/partition"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrFileNotFound is returned when a file ID is not in the catalog.
var ErrFileNotFound = kerrors.NewManifestError(kerrors.CodeFileNotFound, "file not found", nil)

// ErrStrategyMismatch is returned when a dataset is registered again with a
// different partition strategy.
var ErrStrategyMismatch = kerrors.NewManifestError(kerrors.CodeStrategyMismatch, "partition strategy does not match the registered dataset", nil)

// Catalog tracks the partition files of datasets.
type Catalog interface {
	// RegisterDataset records the strategy a dataset is partitioned with.
	// Registering an existing dataset with the same strategy is a no-op.
	RegisterDataset(ctx context.Context, name string, strategy *partition.Strategy) error

	// RegisterFile adds a file to the catalog, assigning an ID when empty.
	RegisterFile(ctx context.Context, file *FileRecord) error

	// GetFile retrieves a single file by ID.
	GetFile(ctx context.Context, fileID string) (*FileRecord, error)

	// DeleteFile removes a file from the catalog.
	DeleteFile(ctx context.Context, fileID string) error

	// FindFiles returns the files of a dataset whose partition path starts
	// with the given segments. An empty prefix returns every file.
	FindFiles(ctx context.Context, dataset string, prefix []layout.Segment) ([]*FileRecord, error)

	// ListPartitions summarises the partitions of a dataset.
	ListPartitions(ctx context.Context, dataset string) ([]PartitionSummary, error)

	// Close closes the catalog database connection.
	Close() error
}

// FileRecord represents a partition file in the manifest.
type FileRecord struct {
	FileID        string
	Dataset       string
	PartitionPath string
	ObjectPath    string
	RecordCount   int64
	SizeBytes     int64
	Compression   string
	CreatedAt     time.Time
}

// PartitionSummary aggregates the files of one partition.
type PartitionSummary struct {
	Path      string
	Files     int
	Records   int64
	SizeBytes int64
}

// DatasetRecord describes a registered dataset.
type DatasetRecord struct {
	Name      string
	Strategy  string
	CreatedAt time.Time
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serialises writers
}

// NewCatalog opens (creating if needed) a SQLite catalog.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	catalog := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := catalog.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}
	return catalog, nil
}

func (c *SQLiteCatalog) initSchema() error {
	statements := []string{
		CreateDatasetsTableSQL,
		CreateFilesTableSQL,
		CreatePartitionLevelsTableSQL,
		CreateSchemaInfoTableSQL,
	}
	statements = append(statements, CreateIndexesSQL...)
	for _, stmt := range statements {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}

	var version int
	err := c.db.QueryRow("SELECT version FROM schema_info LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = c.db.Exec("INSERT INTO schema_info (version) VALUES (?)", schemaVersion)
		return err
	case err != nil:
		return err
	case version > schemaVersion:
		return fmt.Errorf("catalog schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return nil
}

// RegisterDataset records the strategy descriptor of a dataset.
func (c *SQLiteCatalog) RegisterDataset(ctx context.Context, name string, strategy *partition.Strategy) error {
	descriptor, err := describeStrategy(strategy)
	if err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to encode strategy", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, err := c.getDataset(ctx, name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to look up dataset", err)
	}
	if err == nil {
		if existing.Strategy != descriptor {
			return ErrStrategyMismatch.WithDetails(map[string]interface{}{
				"dataset":    name,
				"registered": existing.Strategy,
				"requested":  descriptor,
			})
		}
		return nil
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT INTO datasets (name, strategy, created_at) VALUES (?, ?, ?)",
		name, descriptor, time.Now().UnixNano())
	if err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to register dataset", err)
	}
	return nil
}

// GetDataset returns a registered dataset.
func (c *SQLiteCatalog) GetDataset(ctx context.Context, name string) (*DatasetRecord, error) {
	rec, err := c.getDataset(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kerrors.Newf(kerrors.ErrCategoryManifest, kerrors.CodeQueryFailed, "dataset %q is not registered", name)
	}
	if err != nil {
		return nil, kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to look up dataset", err)
	}
	return rec, nil
}

func (c *SQLiteCatalog) getDataset(ctx context.Context, name string) (*DatasetRecord, error) {
	var rec DatasetRecord
	var createdAt int64
	err := c.db.QueryRowContext(ctx,
		"SELECT name, strategy, created_at FROM datasets WHERE name = ?", name).
		Scan(&rec.Name, &rec.Strategy, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

// RegisterFile inserts the file and its partition levels in one
// transaction.
func (c *SQLiteCatalog) RegisterFile(ctx context.Context, file *FileRecord) error {
	segments, err := layout.Parse(file.PartitionPath)
	if err != nil {
		return err
	}
	if file.FileID == "" {
		file.FileID = uuid.NewString()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (
			file_id, dataset, partition_path, object_path,
			record_count, size_bytes, compression, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.FileID, file.Dataset, file.PartitionPath, file.ObjectPath,
		file.RecordCount, file.SizeBytes, file.Compression, file.CreatedAt.UnixNano())
	if err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed,
			fmt.Sprintf("failed to register file %s", file.ObjectPath), err)
	}

	for level, seg := range segments {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO partition_levels (file_id, level, field, value) VALUES (?, ?, ?, ?)",
			file.FileID, level, seg.Field, seg.Value)
		if err != nil {
			return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to register partition level", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to commit", err)
	}
	return nil
}

// GetFile retrieves a single file by ID.
func (c *SQLiteCatalog) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	row := c.db.QueryRowContext(ctx, selectFilesSQL+" WHERE f.file_id = ?", fileID)
	rec, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound.WithDetails(map[string]interface{}{"file_id": fileID})
	}
	if err != nil {
		return nil, kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to get file", err)
	}
	return rec, nil
}

// DeleteFile removes a file and its partition levels.
func (c *SQLiteCatalog) DeleteFile(ctx context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM partition_levels WHERE file_id = ?", fileID); err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to delete partition levels", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE file_id = ?", fileID); err != nil {
		return kerrors.NewManifestError(kerrors.CodeRegisterFailed, "failed to delete file", err)
	}
	return tx.Commit()
}

// FindFiles returns the files of a dataset under a partition path prefix.
func (c *SQLiteCatalog) FindFiles(ctx context.Context, dataset string, prefix []layout.Segment) ([]*FileRecord, error) {
	query, args := buildPrefixQuery(dataset, prefix)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to find files", err)
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to scan file", err)
		}
		files = append(files, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to iterate files", err)
	}
	return files, nil
}

// ListPartitions summarises the partitions of a dataset, ordered by path.
func (c *SQLiteCatalog) ListPartitions(ctx context.Context, dataset string) ([]PartitionSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT partition_path, COUNT(*), SUM(record_count), SUM(size_bytes)
		FROM files
		WHERE dataset = ?
		GROUP BY partition_path
		ORDER BY partition_path`, dataset)
	if err != nil {
		return nil, kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to list partitions", err)
	}
	defer rows.Close()

	var out []PartitionSummary
	for rows.Next() {
		var s PartitionSummary
		if err := rows.Scan(&s.Path, &s.Files, &s.Records, &s.SizeBytes); err != nil {
			return nil, kerrors.NewManifestError(kerrors.CodeQueryFailed, "failed to scan partition", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

const selectFilesSQL = `
	SELECT f.file_id, f.dataset, f.partition_path, f.object_path,
		f.record_count, f.size_bytes, f.compression, f.created_at
	FROM files f`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(s scanner) (*FileRecord, error) {
	var rec FileRecord
	var createdAt int64
	if err := s.Scan(&rec.FileID, &rec.Dataset, &rec.PartitionPath, &rec.ObjectPath,
		&rec.RecordCount, &rec.SizeBytes, &rec.Compression, &createdAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	return &rec, nil
}

// strategyDescriptor is the stored form of a strategy.
type strategyDescriptor struct {
	Transforms []partition.Transform `json:"transforms"`
}

func describeStrategy(s *partition.Strategy) (string, error) {
	data, err := json.Marshal(strategyDescriptor{Transforms: s.Transforms()})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Ensure SQLiteCatalog implements Catalog
var _ Catalog = (*SQLiteCatalog)(nil)
