package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/dvloznov/finance-migrator/internal/amqp"
	"github.com/dvloznov/finance-migrator/internal/backend"
	"github.com/dvloznov/finance-migrator/internal/config"
	"github.com/dvloznov/finance-migrator/internal/logger"
	"github.com/dvloznov/finance-migrator/internal/migration"
	"github.com/dvloznov/finance-migrator/internal/remote"
)

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitCorrupt    = 2
	exitIncomplete = 3
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitError
	}

	switch args[0] {
	case "run":
		return runMigrate(ctx, args[1:], stdout, stderr)
	case "verify":
		return runVerify(ctx, args[1:], stdout, stderr)
	case "plan":
		return runPlan(stdout)
	case "enqueue":
		return runEnqueue(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Finance Migrator")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  migrate <command> [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  run       Migrate a caller's local snapshot to the remote store")
	fmt.Fprintln(w, "  verify    Report snapshot records missing from the remote store")
	fmt.Fprintln(w, "  plan      Print the per-unit migration plan")
	fmt.Fprintln(w, "  enqueue   Queue a migration for the worker over AMQP")
	fmt.Fprintln(w, "  help      Show this help message")
	fmt.Fprintln(w, "\nRun 'migrate <command> -h' for more information on a command.")
}

// commonFlags are the overrides shared by run and verify.
type commonFlags struct {
	caller         *string
	snapshotSource *string
	snapshotDir    *string
	backend        *string
	remoteSQLite   *string
	logLevel       *string
}

func registerCommon(fs *flag.FlagSet, cfg *config.Config) commonFlags {
	return commonFlags{
		caller:         fs.String("caller", "", "ID of the signed-in user (required)"),
		snapshotSource: fs.String("snapshot-source", cfg.SnapshotSource, "Snapshot source: file, gcs or sqlite"),
		snapshotDir:    fs.String("snapshot-dir", cfg.SnapshotDir, "Directory holding <caller>.json snapshots"),
		backend:        fs.String("backend", cfg.RemoteBackend, "Remote backend: bigquery, dynamodb, sqlite, notion or memory"),
		remoteSQLite:   fs.String("remote-sqlite", cfg.RemoteSQLitePath, "Database path for the sqlite backend"),
		logLevel:       fs.String("log-level", cfg.LogLevel, "Log level"),
	}
}

func (f commonFlags) apply(cfg *config.Config) {
	cfg.SnapshotSource = *f.snapshotSource
	cfg.SnapshotDir = *f.snapshotDir
	cfg.RemoteBackend = *f.backend
	cfg.RemoteSQLitePath = *f.remoteSQLite
	cfg.LogLevel = *f.logLevel
}

// setup parses flags, validates configuration and opens the backend stack.
func setup(ctx context.Context, name string, args []string, stderr io.Writer, extra func(fs *flag.FlagSet, cfg *config.Config) func()) (context.Context, *config.Config, *backend.Stack, string, int) {
	cfg := config.Load()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	common := registerCommon(fs, cfg)
	var applyExtra func()
	if extra != nil {
		applyExtra = extra(fs, cfg)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, "", exitError
	}
	common.apply(cfg)
	if applyExtra != nil {
		applyExtra()
	}

	callerID := strings.TrimSpace(*common.caller)
	if callerID == "" {
		fmt.Fprintln(stderr, "Error: -caller is required")
		return nil, nil, nil, "", exitError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return nil, nil, nil, "", exitError
	}

	log := logger.NewWithLevel(cfg.LogLevel)
	ctx = logger.WithContext(ctx, log)

	stack, err := backend.Build(ctx, cfg, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize backends")
		return nil, nil, nil, "", exitError
	}
	return ctx, cfg, stack, callerID, exitOK
}

func runMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var dryRun, asJSON *bool
	var concurrency *int
	ctx, _, stack, callerID, code := setup(ctx, "run", args, stderr, func(fs *flag.FlagSet, cfg *config.Config) func() {
		dryRun = fs.Bool("dry-run", false, "Write to an in-memory store instead of the configured backend")
		asJSON = fs.Bool("json", false, "Print the report as JSON")
		concurrency = fs.Int("concurrency", cfg.UnitConcurrency, "Units migrated in parallel")
		return func() {
			cfg.UnitConcurrency = *concurrency
			if *dryRun {
				cfg.RemoteBackend = config.BackendMemory
			}
		}
	})
	if code != exitOK {
		return code
	}
	defer stack.Close()

	report, err := stack.Migrator.Migrate(ctx, callerID, func(msg string) {
		fmt.Fprintln(stdout, msg)
	})
	if err != nil {
		fmt.Fprintf(stderr, "Migration aborted: %v\n", err)
		if errors.Is(err, migration.ErrCorruptSnapshot) {
			return exitCorrupt
		}
		return exitError
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "Failed to encode report: %v\n", err)
			return exitError
		}
		return exitOK
	}

	printReport(stdout, report)
	return exitOK
}

func printReport(w io.Writer, report *migration.Report) {
	if report.NoData {
		return
	}

	fmt.Fprintf(w, "\nUnits: %d (%d skipped), records written: %d, failures: %d\n",
		report.UnitsTotal, report.UnitsSkipped, report.TotalWritten(), len(report.Failures))

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Collection", "Attempted", "Written"})
	for _, c := range remote.AllCollections {
		if report.Attempted[c] == 0 && report.Written[c] == 0 {
			continue
		}
		table.Append([]string{string(c), strconv.Itoa(report.Attempted[c]), strconv.Itoa(report.Written[c])})
	}
	table.Render()

	if !report.HasFailures() {
		return
	}

	fmt.Fprintln(w, "\nFailures:")
	failures := tablewriter.NewWriter(w)
	failures.SetHeader([]string{"Unit", "Group", "Record", "Kind", "Cause"})
	failures.SetAutoWrapText(false)
	for _, f := range report.Failures {
		unit := f.UnitName
		if unit == "" {
			unit = f.UnitID
		}
		failures.Append([]string{unit, string(f.Group), f.RecordID, string(f.Kind), f.Cause})
	}
	failures.Render()
}

func runVerify(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, _, stack, callerID, code := setup(ctx, "verify", args, stderr, nil)
	if code != exitOK {
		return code
	}
	defer stack.Close()

	if stack.Remote.Verifier == nil {
		fmt.Fprintln(stderr, "The configured backend cannot list stored records")
		return exitError
	}

	snap, err := stack.Reader.Read(ctx, callerID)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to read snapshot: %v\n", err)
		if errors.Is(err, migration.ErrCorruptSnapshot) {
			return exitCorrupt
		}
		return exitError
	}
	if snap == nil {
		fmt.Fprintln(stdout, migration.MessageNoData)
		return exitOK
	}

	expected := migration.ExpectedIDs(stack.Migrator.Plan(), callerID, snap)

	table := tablewriter.NewWriter(stdout)
	table.SetHeader([]string{"Collection", "Expected", "Present", "Missing"})
	table.SetAutoWrapText(false)

	missingTotal := 0
	for _, c := range remote.AllCollections {
		ids := expected[c]
		if len(ids) == 0 {
			continue
		}
		found, err := stack.Remote.Verifier.ExistingIDs(ctx, c, ids)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to check %s: %v\n", c, err)
			return exitError
		}

		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		missingTotal += len(missing)
		table.Append([]string{string(c), strconv.Itoa(len(ids)), strconv.Itoa(len(ids) - len(missing)), strings.Join(missing, ", ")})
	}
	table.Render()

	if missingTotal > 0 {
		fmt.Fprintf(stdout, "\n%d records missing remotely\n", missingTotal)
		return exitIncomplete
	}
	fmt.Fprintln(stdout, "\nAll records present")
	return exitOK
}

func runPlan(stdout io.Writer) int {
	table := tablewriter.NewWriter(stdout)
	table.SetHeader([]string{"#", "Group", "Collection", "Depends On", "Label"})
	for i, step := range migration.DefaultPlan() {
		table.Append([]string{strconv.Itoa(i + 1), string(step.Group), string(step.Collection), string(step.DependsOn), step.Label})
	}
	table.Render()
	return exitOK
}

func runEnqueue(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	caller := fs.String("caller", "", "ID of the signed-in user (required)")
	amqpURL := fs.String("amqp-url", cfg.AMQPURL, "AMQP broker URL")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	cfg.AMQPURL = *amqpURL

	if strings.TrimSpace(*caller) == "" {
		fmt.Fprintln(stderr, "Error: -caller is required")
		return exitError
	}
	if cfg.AMQPURL == "" {
		fmt.Fprintln(stderr, "Error: -amqp-url or AMQP_URL is required")
		return exitError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	ctx = logger.WithContext(ctx, logger.NewWithLevel(cfg.LogLevel))

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPProgressKey)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to connect to AMQP: %v\n", err)
		return exitError
	}
	defer client.Close()

	if err := client.PublishMigrationRequest(ctx, strings.TrimSpace(*caller)); err != nil {
		fmt.Fprintf(stderr, "Failed to enqueue migration: %v\n", err)
		return exitError
	}
	fmt.Fprintf(stdout, "Migration queued for %s\n", strings.TrimSpace(*caller))
	return exitOK
}
