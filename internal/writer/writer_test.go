package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpblh/kite/internal/manifest"
	"github.com/dpblh/kite/internal/router"
	"github.com/dpblh/kite/internal/storage"
	"github.com/dpblh/kite/pkg/partition"
	"github.com/dpblh/kite/pkg/types"
)

type fixture struct {
	store   *storage.LocalStorage
	catalog *manifest.SQLiteCatalog
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(dir, "storage"))
	require.NoError(t, err)
	catalog, err := manifest.NewCatalog(filepath.Join(dir, "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	return &fixture{store: store, catalog: catalog, dir: dir}
}

func (f *fixture) writer(t *testing.T, strategy *partition.Strategy, compression string) *Writer {
	t.Helper()
	w, err := New(Options{
		Strategy:    strategy,
		Storage:     f.store,
		Catalog:     f.catalog,
		Compression: compression,
		TempDir:     filepath.Join(f.dir, "tmp"),
		Concurrency: 4,
	})
	require.NoError(t, err)
	return w
}

func eventTypeStrategy(t *testing.T) *partition.Strategy {
	t.Helper()
	s, err := partition.NewBuilder().Identity("event_type", 0).Build()
	require.NoError(t, err)
	return s
}

func events(n int, eventTypes ...string) []interface{} {
	out := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]interface{}{
			"user_id":    i,
			"event_type": eventTypes[i%len(eventTypes)],
		})
	}
	return out
}

func TestWrite_GroupsByPartition(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "snappy")
	ctx := context.Background()

	files, err := w.Write(ctx, "events", events(3, "click", "view"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "event_type=click", files[0].Partition)
	assert.Equal(t, int64(2), files[0].Records)
	assert.Equal(t, "event_type=view", files[1].Partition)
	assert.Equal(t, int64(1), files[1].Records)

	for _, fi := range files {
		assert.True(t, strings.HasPrefix(fi.ObjectPath, "events/"+fi.Partition+"/"), fi.ObjectPath)
		assert.True(t, strings.HasSuffix(fi.ObjectPath, ".jsonl.sz"), fi.ObjectPath)
		assert.Equal(t, "snappy", fi.Compression)
		assert.Positive(t, fi.SizeBytes)
		assert.Equal(t, "events", fi.Dataset)

		exists, err := f.store.Exists(ctx, fi.ObjectPath)
		require.NoError(t, err)
		assert.True(t, exists)
	}

	records, err := w.Read(ctx, files[0].ObjectPath)
	require.NoError(t, err)
	require.Len(t, records, 2)
	first := records[0].(map[string]interface{})
	assert.Equal(t, json.Number("0"), first["user_id"])
	assert.Equal(t, "click", first["event_type"])

	registered, err := f.catalog.GetFile(ctx, files[0].FileID)
	require.NoError(t, err)
	assert.Equal(t, files[0].ObjectPath, registered.ObjectPath)
	assert.Equal(t, int64(2), registered.RecordCount)
}

func TestWrite_Compressions(t *testing.T) {
	for _, compression := range []string{"none", "snappy", "zstd"} {
		t.Run(compression, func(t *testing.T) {
			f := newFixture(t)
			w := f.writer(t, eventTypeStrategy(t), compression)

			input := events(50, "click")
			files, err := w.Write(context.Background(), "events", input)
			require.NoError(t, err)
			require.Len(t, files, 1)

			records, err := w.Read(context.Background(), files[0].ObjectPath)
			require.NoError(t, err)
			require.Len(t, records, 50)
			last := records[49].(map[string]interface{})
			assert.Equal(t, json.Number("49"), last["user_id"])
		})
	}
}

func TestWrite_Unpartitioned(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, nil, "none")

	files, err := w.Write(context.Background(), "logs", events(4, "a", "b"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "", files[0].Partition)
	assert.Equal(t, 0, files[0].Key.Len())
	assert.Equal(t, "logs/"+files[0].FileID+".jsonl", files[0].ObjectPath)
}

func TestWrite_EmptyInput(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "none")

	files, err := w.Write(context.Background(), "events", nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWrite_RoutingErrorWritesNothing(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "none")
	ctx := context.Background()

	input := events(3, "click")
	input = append(input, map[string]interface{}{"user_id": 99})

	_, err := w.Write(ctx, "events", input)
	require.Error(t, err)
	assert.True(t, errors.Is(err, partition.ErrFieldNotFound))
	name, ok := partition.FieldOf(err)
	assert.True(t, ok)
	assert.Equal(t, "event_type", name)

	objects, err := f.store.ListObjects(ctx, "events/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestWrite_SchemaRecords(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "zstd")
	schema := types.MustSchema("events",
		types.FieldDef{Name: "user_id", Type: types.TypeLong},
		types.FieldDef{Name: "event_type", Type: types.TypeString},
		types.FieldDef{Name: "at", Type: types.TypeTimestamp, Nullable: true},
	)
	rec, err := types.RecordFromMap(schema, map[string]interface{}{
		"user_id":    int64(7),
		"event_type": "purchase",
		"at":         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	files, err := w.Write(context.Background(), "events", []interface{}{rec})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "event_type=purchase", files[0].Partition)

	records, err := w.Read(context.Background(), files[0].ObjectPath)
	require.NoError(t, err)
	require.Len(t, records, 1)
	got := records[0].(map[string]interface{})
	assert.Equal(t, json.Number("7"), got["user_id"])
	assert.Equal(t, "2024-05-01T12:00:00Z", got["at"])
}

func TestWrite_PublishesNotifications(t *testing.T) {
	f := newFixture(t)
	notifier := router.NewNotifier(8)
	sub, err := notifier.Subscribe("events", "event_type=click")
	require.NoError(t, err)

	w, err := New(Options{
		Strategy:    eventTypeStrategy(t),
		Storage:     f.store,
		Catalog:     f.catalog,
		Notifier:    notifier,
		Compression: "none",
		TempDir:     f.dir,
	})
	require.NoError(t, err)

	files, err := w.Write(context.Background(), "events", events(4, "click", "view"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	select {
	case n := <-sub.Ch:
		assert.Equal(t, router.FileWritten, n.Type)
		assert.Equal(t, "event_type=click", n.Partition)
		assert.Equal(t, files[0].ObjectPath, n.Object)
		assert.Equal(t, int64(2), n.Records)
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}

	select {
	case n := <-sub.Ch:
		t.Fatalf("unexpected notification for %s", n.Partition)
	default:
	}
}

// failingCatalog accepts datasets and rejects every file.
type failingCatalog struct {
	manifest.Catalog
}

func (failingCatalog) RegisterDataset(context.Context, string, *partition.Strategy) error {
	return nil
}

func (failingCatalog) RegisterFile(context.Context, *manifest.FileRecord) error {
	return errors.New("catalog unavailable")
}

func TestWrite_RegisterFailureRemovesObject(t *testing.T) {
	f := newFixture(t)
	w, err := New(Options{
		Strategy: eventTypeStrategy(t),
		Storage:  f.store,
		Catalog:  failingCatalog{},
		TempDir:  f.dir,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = w.Write(ctx, "events", events(2, "click"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog unavailable")

	objects, err := f.store.ListObjects(ctx, "events/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestWrite_StrategyMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.writer(t, eventTypeStrategy(t), "none").Write(ctx, "events", events(1, "click"))
	require.NoError(t, err)

	other, err := partition.NewBuilder().Hash("user_id", 4).Build()
	require.NoError(t, err)
	_, err = f.writer(t, other, "none").Write(ctx, "events", events(1, "click"))
	assert.True(t, errors.Is(err, manifest.ErrStrategyMismatch), "got %v", err)
}

func TestWrite_ConcurrentSamePartition(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "snappy")
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Write(ctx, "events", events(10, "click")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	files, err := f.catalog.FindFiles(ctx, "events", nil)
	require.NoError(t, err)
	assert.Len(t, files, writers)

	records, err := w.ReadPartition(ctx, "events", "event_type=click")
	require.NoError(t, err)
	assert.Len(t, records, writers*10)
	assert.Equal(t, 0, w.locks.size())
}

func TestReadPartition_Prunes(t *testing.T) {
	f := newFixture(t)
	s, err := partition.NewBuilder().
		Identity("event_type", 0).
		IntRange("user_id", 9, 19).
		Build()
	require.NoError(t, err)
	w := f.writer(t, s, "zstd")
	ctx := context.Background()

	files, err := w.Write(ctx, "events", events(30, "click", "view", "purchase"))
	require.NoError(t, err)
	assert.Len(t, files, 9)

	all, err := w.ReadPartition(ctx, "events", "")
	require.NoError(t, err)
	assert.Len(t, all, 30)

	clicks, err := w.ReadPartition(ctx, "events", "event_type=click")
	require.NoError(t, err)
	assert.Len(t, clicks, 10)
	for _, r := range clicks {
		assert.Equal(t, "click", r.(map[string]interface{})["event_type"])
	}

	low, err := w.ReadPartition(ctx, "events", "event_type=view/user_id=0")
	require.NoError(t, err)
	// user ids 1, 4, 7 are views at or below the first bound.
	assert.Len(t, low, 3)

	none, err := w.ReadPartition(ctx, "events", "event_type=signup")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = w.ReadPartition(ctx, "events", "no-equals-sign")
	assert.Error(t, err)
}

func TestReadPartition_RequiresCatalog(t *testing.T) {
	f := newFixture(t)
	w, err := New(Options{Storage: f.store, TempDir: f.dir})
	require.NoError(t, err)

	_, err = w.ReadPartition(context.Background(), "events", "")
	assert.Error(t, err)
}

func TestRead_MissingObject(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, nil, "none")

	_, err := w.Read(context.Background(), "events/missing.jsonl")
	assert.True(t, errors.Is(err, storage.ErrObjectNotFound), "got %v", err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err, "storage is required")

	f := newFixture(t)
	_, err = New(Options{Storage: f.store, Compression: "lz4", TempDir: f.dir})
	assert.Error(t, err)

	w, err := New(Options{Storage: f.store, TempDir: f.dir})
	require.NoError(t, err)
	_, err = w.Write(context.Background(), "", events(1, "click"))
	assert.Error(t, err, "dataset name is required")
}

func TestWrite_CancelledContext(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "none")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Write(ctx, "events", events(2, "click"))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestClose_RejectsWrites(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "none")
	require.NoError(t, w.Close())

	_, err := w.Write(context.Background(), "events", events(1, "click"))
	assert.True(t, errors.Is(err, ErrWriterClosed))
}

func TestWrite_DistinctObjectNames(t *testing.T) {
	f := newFixture(t)
	w := f.writer(t, eventTypeStrategy(t), "none")
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		files, err := w.Write(ctx, "events", events(1, fmt.Sprintf("t%d", i%2)))
		require.NoError(t, err)
		for _, fi := range files {
			assert.False(t, seen[fi.ObjectPath], "duplicate object %s", fi.ObjectPath)
			seen[fi.ObjectPath] = true
		}
	}
	assert.Len(t, seen, 5)
}
