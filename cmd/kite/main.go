// Package main implements the kite command: inspect a dataset's partition
// strategy, compute record keys, write partitioned files and list them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/dpblh/kite/internal/app"
	"github.com/dpblh/kite/internal/config"
	"github.com/dpblh/kite/internal/router"
	"github.com/dpblh/kite/internal/writer"
	"github.com/dpblh/kite/pkg/partition"
)

var (
	version = "dev"
	commit  = "unknown"
)

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string) error
}

var commands = []command{
	{"describe", "print the partition strategy and its cardinality", runDescribe},
	{"key", "print the partition key and path of each input record", runKey},
	{"write", "write input records into partition files", runWrite},
	{"ls", "list registered files, optionally under a partition prefix", runList},
	{"partitions", "summarise the dataset's partitions", runPartitions},
	{"cat", "print the records of the files under a partition prefix", runCat},
	{"fsck", "compare the manifest with object storage", runFsck},
}

func usage() {
	fmt.Fprintf(os.Stderr, "kite - partition strategies for dataset storage\n\n")
	fmt.Fprintf(os.Stderr, "Usage: kite <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-11s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "  %-11s %s\n", "version", "print version information")
	fmt.Fprintf(os.Stderr, "\nRun 'kite <command> -h' for command options.\n")
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  KITE_DATA_DIR        Base directory for data files\n")
	fmt.Fprintf(os.Stderr, "  KITE_DATASET         Dataset name\n")
	fmt.Fprintf(os.Stderr, "  KITE_STORAGE_TYPE    Storage type (local, s3)\n")
	fmt.Fprintf(os.Stderr, "  KITE_LOG_LEVEL       Log level (debug, info, warn, error)\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	name := os.Args[1]
	switch name {
	case "-h", "-help", "--help", "help":
		usage()
		return
	case "version", "-version", "--version":
		fmt.Printf("kite version %s (commit: %s)\n", version, commit)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, c := range commands {
		if c.name == name {
			if err := c.run(ctx, os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "kite %s: %v\n", name, err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Fprintf(os.Stderr, "kite: unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}

// common holds the flags every command accepts.
type common struct {
	configFile string
	dataDir    string
	dataset    string
	debug      bool
}

func newFlagSet(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet("kite "+name, flag.ExitOnError)
	c := &common{}
	fs.StringVar(&c.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&c.dataDir, "data-dir", "", "Base directory for all data files")
	fs.StringVar(&c.dataset, "dataset", "", "Dataset name (overrides the configuration)")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	return fs, c
}

// loadConfig loads configuration from file, environment, and command line flags.
func (c *common) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if c.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(c.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.dataset != "" {
		cfg.Dataset.Name = c.dataset
	}
	if c.debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	return cfg, nil
}

// open loads the configuration and opens the dataset.
func (c *common) open(ctx context.Context) (*app.App, *zap.Logger, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	return a, logger, nil
}

// strategy loads the configuration and builds its strategy without opening
// storage.
func (c *common) strategy() (*config.Config, *partition.Strategy, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	s, err := cfg.Strategy()
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func runDescribe(_ context.Context, args []string) error {
	fs, c := newFlagSet("describe")
	fs.Parse(args)

	cfg, s, err := c.strategy()
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Printf("dataset %q is unpartitioned\n", cfg.Dataset.Name)
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tTRANSFORM\tFIELD\tCARDINALITY")
	for i, t := range s.Transforms() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, t.Kind(), t.Name(), formatCardinality(t.Cardinality()))
	}
	tw.Flush()

	total, err := s.Cardinality()
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\ncardinality: %s\n", s, formatCardinality(total))
	return nil
}

func formatCardinality(n int64) string {
	if n == partition.Unknown {
		return "unknown"
	}
	return fmt.Sprintf("%d", n)
}

func runKey(_ context.Context, args []string) error {
	fs, c := newFlagSet("key")
	input := fs.String("input", "-", "JSON lines file of records (- for stdin)")
	fs.Parse(args)

	cfg, s, err := c.strategy()
	if err != nil {
		return err
	}
	in, err := openInput(*input)
	if err != nil {
		return err
	}
	defer in.Close()

	records, err := app.ReadRecords(in, cfg.Dataset.Schema)
	if err != nil {
		return err
	}

	r := router.New(s, nil)
	for i, rec := range records {
		key, path, err := r.Route(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", i+1, err)
		}
		fmt.Printf("%v\t%s\n", key, path)
	}
	return nil
}

func runWrite(ctx context.Context, args []string) error {
	fs, c := newFlagSet("write")
	input := fs.String("input", "-", "JSON lines file of records (- for stdin)")
	fs.Parse(args)

	a, logger, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	in, err := openInput(*input)
	if err != nil {
		return err
	}
	defer in.Close()

	files, err := a.Ingest(ctx, in)
	for _, f := range files {
		fmt.Printf("%s\t%d\t%s\n", f.ObjectPath, f.Records, f.Partition)
	}
	return err
}

func runList(ctx context.Context, args []string) error {
	fs, c := newFlagSet("ls")
	prefix := fs.String("prefix", "", "Partition path prefix, e.g. event_type=click")
	fs.Parse(args)

	a, logger, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	files, err := a.Files(ctx, *prefix)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE ID\tPARTITION\tRECORDS\tBYTES\tOBJECT")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", f.FileID, f.PartitionPath, f.RecordCount, f.SizeBytes, f.ObjectPath)
	}
	return tw.Flush()
}

func runPartitions(ctx context.Context, args []string) error {
	fs, c := newFlagSet("partitions")
	fs.Parse(args)

	a, logger, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	partitions, err := a.Partitions(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTITION\tFILES\tRECORDS\tBYTES")
	for _, p := range partitions {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", p.Path, p.Files, p.Records, p.SizeBytes)
	}
	return tw.Flush()
}

func runCat(ctx context.Context, args []string) error {
	fs, c := newFlagSet("cat")
	prefix := fs.String("prefix", "", "Partition path prefix, e.g. event_type=click")
	fs.Parse(args)

	a, logger, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	records, err := a.Writer().ReadPartition(ctx, a.Config().Dataset.Name, *prefix)
	if err != nil {
		return err
	}
	return writer.EncodeJSONL(os.Stdout, records)
}

func runFsck(ctx context.Context, args []string) error {
	fs, c := newFlagSet("fsck")
	fs.Parse(args)

	a, logger, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer a.Close()

	report, err := a.Reconcile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("manifest entries: %d\nstorage objects:  %d\n", report.TotalManifestEntries, report.TotalStorageObjects)
	for _, d := range report.DanglingEntries {
		fmt.Printf("dangling %s %s\n", d.FileID, d.ObjectPath)
	}
	for _, o := range report.OrphanedObjects {
		fmt.Printf("orphan   %s\n", o)
	}
	if report.HasIssues() {
		return fmt.Errorf("%d dangling entries, %d orphaned objects",
			len(report.DanglingEntries), len(report.OrphanedObjects))
	}
	fmt.Println("ok")
	return nil
}
