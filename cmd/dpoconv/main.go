package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/dpoconv/internal/api"
	"github.com/MikeSquared-Agency/dpoconv/internal/config"
	"github.com/MikeSquared-Agency/dpoconv/internal/convert"
	"github.com/MikeSquared-Agency/dpoconv/internal/events"
	"github.com/MikeSquared-Agency/dpoconv/internal/mapping"
	"github.com/MikeSquared-Agency/dpoconv/internal/record"
	"github.com/MikeSquared-Agency/dpoconv/internal/storage"
	"github.com/MikeSquared-Agency/dpoconv/internal/store"
	"github.com/MikeSquared-Agency/dpoconv/internal/stream"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "convert"
	if len(args) > 0 {
		switch args[0] {
		case "convert", "serve", "schema", "mapping":
			cmd, args = args[0], args[1:]
		}
	}

	cfg := config.Load()
	switch cmd {
	case "serve":
		return runServe(ctx, cfg, args, stderr)
	case "schema":
		return runSchema(stdout, stderr)
	case "mapping":
		return runMapping(cfg, args, stdout, stderr)
	default:
		return runConvert(ctx, cfg, args, stderr)
	}
}

type convertFlags struct {
	input, output   string
	defaultRejected string
	userField       string
	chosenField     string
	rejectField     string
	systemText      string
	mappingFile     string
	databaseURL     string
	source          string
	logLevel        string
}

func newConvertFlagSet(name string, cfg config.Config, f *convertFlags, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.input, "input", storage.Stdio, "input path (.jsonl or .json array), s3://bucket/key, or - for stdin")
	fs.StringVar(&f.input, "i", storage.Stdio, "shorthand for -input")
	fs.StringVar(&f.output, "output", storage.Stdio, "output JSONL path, s3://bucket/key, or - for stdout")
	fs.StringVar(&f.output, "o", storage.Stdio, "shorthand for -output")
	fs.StringVar(&f.defaultRejected, "default-rejected", cfg.DefaultRejected, "rejected_response used when a record has none")
	fs.StringVar(&f.userField, "user-field", "", "field holding the user query (e.g. question)")
	fs.StringVar(&f.chosenField, "chosen-field", "", "field holding the chosen reply (e.g. answer_zh)")
	fs.StringVar(&f.rejectField, "reject-field", "", "field holding the rejected reply (e.g. answer_en)")
	fs.StringVar(&f.systemText, "system-text", "", "system prompt prepended in mapping mode")
	fs.StringVar(&f.mappingFile, "mapping", cfg.MappingFile, "YAML mapping preset; explicit flags override it")
	fs.StringVar(&f.databaseURL, "database-url", cfg.DatabaseURL, "also store converted records in Postgres")
	fs.StringVar(&f.source, "source", "", "source label for stored rows and events (default: input path)")
	fs.StringVar(&f.logLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	return fs
}

func runConvert(ctx context.Context, cfg config.Config, args []string, stderr io.Writer) int {
	var f convertFlags
	fs := newConvertFlagSet("dpoconv", cfg, &f, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "dpoconv: unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return exitUsage
	}

	logger := setupLogging(f.logLevel, stderr)

	m, err := resolveMapping(fs, f)
	if err != nil {
		fmt.Fprintf(stderr, "dpoconv: %v\n", err)
		return exitUsage
	}
	if f.source == "" {
		f.source = f.input
	}

	opener := storage.NewOpener(storage.S3Config{Endpoint: cfg.S3Endpoint, Region: cfg.S3Region}, logger)

	in, err := opener.OpenInput(ctx, f.input)
	if err != nil {
		fmt.Fprintf(stderr, "dpoconv: %v\n", err)
		return exitError
	}
	defer in.Close()

	out, err := opener.CreateOutput(ctx, f.output)
	if err != nil {
		fmt.Fprintf(stderr, "dpoconv: %v\n", err)
		return exitError
	}
	outClosed := false
	defer func() {
		if !outClosed {
			out.Close()
		}
	}()

	sinks := []convert.Sink{stream.NewWriter(out)}
	runID := uuid.New()
	if f.databaseURL != "" {
		db, err := store.New(ctx, f.databaseURL)
		if err != nil {
			fmt.Fprintf(stderr, "dpoconv: %v\n", err)
			return exitError
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(stderr, "dpoconv: %v\n", err)
			return exitError
		}
		sink := db.NewSink(f.source)
		runID = sink.RunID()
		sinks = append(sinks, sink)
		logger.Info("database sink ready", "run_id", runID)
	}

	stats, runErr := convert.New(record.NewNormalizer(m), logger, sinks...).Run(ctx, in)

	outClosed = true
	closeErr := out.Close()

	if runErr != nil {
		var fe *stream.FramingError
		if errors.As(runErr, &fe) {
			fmt.Fprintf(stderr, "Error: %v\n", fe)
		} else {
			fmt.Fprintf(stderr, "dpoconv: %v\n", runErr)
		}
		return exitError
	}
	if closeErr != nil {
		fmt.Fprintf(stderr, "dpoconv: close output: %v\n", closeErr)
		return exitError
	}

	if stats.Written == 0 {
		fmt.Fprintln(stderr, convert.NoRecordsMessage)
	}

	if cfg.NatsURL != "" {
		publishCompleted(ctx, cfg, logger, events.ConversionCompleted{
			RunID:          runID.String(),
			Source:         f.source,
			Output:         f.output,
			Format:         stats.Format,
			RecordsRead:    stats.Read,
			RecordsWritten: stats.Written,
			RecordsSkipped: stats.Skipped,
			Timestamp:      time.Now().UTC(),
		})
	}
	return exitOK
}

// resolveMapping layers the mapping: preset file first, then any flag the
// user set explicitly.
func resolveMapping(fs *flag.FlagSet, f convertFlags) (record.Mapping, error) {
	m := record.Mapping{DefaultRejected: f.defaultRejected}
	if f.mappingFile != "" {
		preset, err := mapping.LoadFile(f.mappingFile)
		if err != nil {
			return record.Mapping{}, err
		}
		pm := preset.Mapping()
		if pm.DefaultRejected == "" {
			pm.DefaultRejected = m.DefaultRejected
		}
		m = pm
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "user-field":
			m.UserField = f.userField
		case "chosen-field":
			m.ChosenField = f.chosenField
		case "reject-field":
			m.RejectField = f.rejectField
		case "system-text":
			m.SystemText = f.systemText
		case "default-rejected":
			m.DefaultRejected = f.defaultRejected
		}
	})
	return m, nil
}

// runMapping prints the mapping a convert run with the same flags would use,
// as a YAML preset.
func runMapping(cfg config.Config, args []string, stdout, stderr io.Writer) int {
	var f convertFlags
	fs := newConvertFlagSet("dpoconv mapping", cfg, &f, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "dpoconv: unexpected arguments: %v\n", fs.Args())
		return exitUsage
	}

	m, err := resolveMapping(fs, f)
	if err != nil {
		fmt.Fprintf(stderr, "dpoconv: %v\n", err)
		return exitUsage
	}
	data, err := mapping.Marshal(mapping.FromMapping(m))
	if err != nil {
		fmt.Fprintf(stderr, "dpoconv: marshal mapping: %v\n", err)
		return exitError
	}
	stdout.Write(data)
	return exitOK
}

func publishCompleted(ctx context.Context, cfg config.Config, logger *slog.Logger, ev events.ConversionCompleted) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
	if err != nil {
		logger.Warn("failed to connect to NATS", "error", err)
		return
	}
	defer client.Close()

	if err := client.PublishCompleted(ctx, ev); err != nil {
		logger.Warn("failed to publish conversion event", "error", err)
	}
}

func runServe(ctx context.Context, cfg config.Config, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("dpoconv serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("port", cfg.Port, "listen port")
	dir := fs.String("dir", cfg.ServeDir, "directory to serve")
	index := fs.String("index", cfg.IndexFile, "file served for / and /index.html")
	mappingFile := fs.String("mapping", cfg.MappingFile, "YAML mapping preset used by the convert endpoint")
	logLevel := fs.String("log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger := setupLogging(*logLevel, stderr)

	m := record.Mapping{DefaultRejected: cfg.DefaultRejected}
	if *mappingFile != "" {
		preset, err := mapping.LoadFile(*mappingFile)
		if err != nil {
			fmt.Fprintf(stderr, "dpoconv: %v\n", err)
			return exitUsage
		}
		m = preset.Mapping()
		if m.DefaultRejected == "" {
			m.DefaultRejected = cfg.DefaultRejected
		}
	}

	srv := api.NewServer(api.Options{
		Port:      *port,
		APIToken:  cfg.APIToken,
		ServeDir:  *dir,
		IndexFile: *index,
		Mapping:   m,
	}, logger)

	if err := srv.Start(ctx); err != nil {
		logger.Error("HTTP server error", "error", err)
		return exitError
	}
	logger.Info("dpoconv stopped")
	return exitOK
}

func runSchema(stdout, stderr io.Writer) int {
	data, err := json.MarshalIndent(record.JSONSchema(), "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "dpoconv: marshal schema: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, string(data))
	return exitOK
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
