// Package manifest provides the catalog of partition files written to a
// dataset. The catalog is a SQLite database and is the source of truth for
// which objects belong to which partition.
package manifest

// schemaVersion is bumped whenever the statements below change.
const schemaVersion = 1

// CreateDatasetsTableSQL stores each dataset with the descriptor of the
// partition strategy its files were written with.
const CreateDatasetsTableSQL = `
CREATE TABLE IF NOT EXISTS datasets (
    name TEXT PRIMARY KEY,
    strategy TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateFilesTableSQL stores one row per partition file.
const CreateFilesTableSQL = `
CREATE TABLE IF NOT EXISTS files (
    file_id TEXT PRIMARY KEY,
    dataset TEXT NOT NULL,
    partition_path TEXT NOT NULL,
    object_path TEXT NOT NULL UNIQUE,
    record_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    compression TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreatePartitionLevelsTableSQL stores the field=value segments of each
// file's partition path, one row per level, for prefix pruning.
const CreatePartitionLevelsTableSQL = `
CREATE TABLE IF NOT EXISTS partition_levels (
    file_id TEXT NOT NULL,
    level INTEGER NOT NULL,
    field TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (file_id, level),
    FOREIGN KEY (file_id) REFERENCES files(file_id) ON DELETE CASCADE
)`

// CreateSchemaInfoTableSQL records the applied schema version.
const CreateSchemaInfoTableSQL = `
CREATE TABLE IF NOT EXISTS schema_info (
    version INTEGER NOT NULL
)`

// CreateIndexesSQL creates indexes for partition listing and pruning.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_files_partition ON files(dataset, partition_path)`,
	`CREATE INDEX IF NOT EXISTS idx_files_created ON files(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_levels_lookup ON partition_levels(level, field, value, file_id)`,
}
