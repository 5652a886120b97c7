package manifest

import (
	"context"
	"fmt"
	"time"

	"github.com/dpblh/kite/internal/storage"
)

// ReconciliationReport contains the results of a manifest-storage
// reconciliation for one dataset.
type ReconciliationReport struct {
	// DanglingEntries are catalog files whose object does not exist.
	DanglingEntries []DanglingEntry
	// OrphanedObjects are objects under the dataset with no catalog file.
	OrphanedObjects []string
	// TotalManifestEntries is the number of catalog files checked.
	TotalManifestEntries int
	// TotalStorageObjects is the number of storage objects scanned.
	TotalStorageObjects int
	// RunAt is when the reconciliation was performed.
	RunAt time.Time
}

// DanglingEntry represents a catalog file pointing to a missing object.
type DanglingEntry struct {
	FileID     string
	ObjectPath string
}

// HasIssues returns true if the report contains any dangling entries or orphaned objects.
func (r *ReconciliationReport) HasIssues() bool {
	return len(r.DanglingEntries) > 0 || len(r.OrphanedObjects) > 0
}

// Reconcile checks consistency between the catalog and object storage for a
// dataset. Orphans are typically left by writes that uploaded an object but
// failed to register it.
func Reconcile(ctx context.Context, catalog Catalog, store storage.ObjectStorage, dataset string) (*ReconciliationReport, error) {
	report := &ReconciliationReport{RunAt: time.Now()}

	files, err := catalog.FindFiles(ctx, dataset, nil)
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list catalog files: %w", err)
	}
	report.TotalManifestEntries = len(files)

	tracked := make(map[string]bool, len(files))
	for _, f := range files {
		tracked[f.ObjectPath] = true
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exists, err := store.Exists(ctx, f.ObjectPath)
		if err != nil {
			return nil, fmt.Errorf("reconciliation: failed to check object %s: %w", f.ObjectPath, err)
		}
		if !exists {
			report.DanglingEntries = append(report.DanglingEntries, DanglingEntry{
				FileID:     f.FileID,
				ObjectPath: f.ObjectPath,
			})
		}
	}

	objects, err := store.ListObjects(ctx, dataset+"/")
	if err != nil {
		return nil, fmt.Errorf("reconciliation: failed to list storage objects: %w", err)
	}
	report.TotalStorageObjects = len(objects)

	for _, obj := range objects {
		if !tracked[obj] {
			report.OrphanedObjects = append(report.OrphanedObjects, obj)
		}
	}

	return report, nil
}
