package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"catalogflow/config"
	"catalogflow/decoder"
	"catalogflow/logger"
	"catalogflow/metrics"
	"catalogflow/models"
	"catalogflow/reader"
	"catalogflow/session"
	"catalogflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && (args[0] == "run" || args[0] == "generate") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "generate":
		err = generate(ctx, args)
	default:
		err = run(ctx, args)
	}
	if err != nil {
		log.WithError(err).Error(cmd + " failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	log := logger.GetLogger()

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config/config.yml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return fmt.Errorf("failed to configure logger: %w", err)
	}

	env := config.AppEnvironment()
	log.WithEnv("APP_ENV", "LOG_LEVEL", "AWS_REGION").WithFields(logger.Fields{
		"service":     cfg.Catalogflow.Name,
		"version":     cfg.Catalogflow.Version,
		"environment": env,
	}).Info("starting catalogflow")

	if len(cfg.Queries) == 0 && config.IsProductionLike(env) {
		return fmt.Errorf("no queries configured for %s", env)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		if cfg.Metrics.CloudWatch.Enabled {
			cw, err := metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
			if err != nil {
				log.WithComponent("main").WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
			} else {
				recorder.WithCloudWatch(cw)
				defer recorder.Flush(context.Background())
			}
		}
		go func() {
			if err := recorder.Serve(ctx, cfg.Metrics.ListenAddr); err != nil {
				log.WithComponent("main").WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	opener := &reader.ParquetOpener{BatchSize: cfg.Reader.BatchSize, Parallelism: cfg.Reader.Parallelism}
	if cfg.Reader.S3.Enabled {
		src, err := reader.NewS3SourceFromConfig(ctx, cfg.Reader.S3)
		if err != nil {
			return fmt.Errorf("failed to create S3 source: %w", err)
		}
		opener.S3 = src
	}

	s, err := session.New(cfg.Session.ChunkSize,
		session.WithOpener(opener),
		session.WithMetrics(recorder),
		session.WithPrefetch(cfg.Session.PrefetchBatches),
	)
	if err != nil {
		return err
	}
	for _, q := range cfg.Queries {
		params := decoder.Params{
			InstrumentID:   q.InstrumentID,
			BarType:        q.BarType,
			PricePrecision: q.PricePrecision,
			SizePrecision:  q.SizePrecision,
		}
		if err := s.Register(ctx, q.Name, q.Path, q.Kind, params); err != nil {
			_ = s.Close()
			return err
		}
	}

	result, err := s.QueryResult(ctx)
	if err != nil {
		return err
	}
	defer result.Close()

	start := time.Now()
	perKind := make(map[string]int)
	var first, last uint64
	for chunk, err := range result.Chunks(ctx) {
		if err != nil {
			return err
		}
		lo, hi := chunk.TsRange()
		if result.Stats().Chunks == 1 {
			first = lo
		}
		last = hi
		for _, d := range chunk.Data() {
			perKind[d.Kind().String()]++
		}
	}

	stats := result.Stats()
	summary := logger.Fields{
		"session_id":    s.ID(),
		"queries":       len(cfg.Queries),
		"chunks":        stats.Chunks,
		"rows":          stats.Rows,
		"first_ts_init": first,
		"last_ts_init":  last,
	}
	for kind, n := range perKind {
		summary["rows_"+kind] = n
	}
	logger.LogDuration(log.WithFields(summary), "main", "query", time.Since(start), nil)

	for _, c := range logger.Report() {
		if c.Warnings > 0 || c.Errors > 0 {
			log.WithFields(logger.Fields{
				"reported_component": c.Component,
				"warnings":           c.Warnings,
				"errors":             c.Errors,
			}).Info("component report")
		}
	}
	log.Info("catalogflow stopped")
	return nil
}

// generate writes a small sample catalog, one file per kind.
func generate(ctx context.Context, args []string) error {
	log := logger.GetLogger().WithComponent("generate")

	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	out := fs.String("out", "testdata", "Directory the sample files are written to")
	upload := fs.String("upload", "", "Optional s3://bucket/prefix the files are uploaded to")
	region := fs.String("region", os.Getenv("AWS_REGION"), "AWS region for -upload")
	compression := fs.String("compression", "snappy", "Parquet compression: snappy, gzip or none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}

	opts := writer.Options{Compression: *compression}
	ethusdt := models.InstrumentID{Symbol: "ETHUSDT", Venue: "BINANCE"}
	audusd := models.InstrumentID{Symbol: "AUD/USD", Venue: "SIM"}
	adabtc := models.InstrumentID{Symbol: "ADABTC", Venue: "BINANCE"}
	base := uint64(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())

	files := map[string]func() ([]byte, error){
		"order_book_deltas.parquet": func() ([]byte, error) {
			return writer.WriteBytes(writer.SampleDeltas(writer.Series{Instrument: ethusdt, Start: base, Step: 1_000_000, Count: 1077}), opts)
		},
		"quote_ticks.parquet": func() ([]byte, error) {
			return writer.WriteBytes(writer.SampleQuotes(writer.Series{Instrument: audusd, Start: base, Step: 100_000, Count: 9500}), opts)
		},
		"trade_ticks.parquet": func() ([]byte, error) {
			return writer.WriteBytes(writer.SampleTrades(writer.Series{Instrument: ethusdt, Start: base, Step: 10_000_000, Count: 100}), opts)
		},
		"bars.parquet": func() ([]byte, error) {
			return writer.WriteBytes(writer.SampleBars(writer.Series{Instrument: adabtc, Start: base + 60_000_000_000, Step: 60_000_000_000, Count: 10}, "1-MINUTE-LAST-EXTERNAL"), opts)
		},
	}

	var putter writer.ObjectPutter
	if *upload != "" {
		client, err := reader.NewS3Client(ctx, config.S3Config{Region: *region})
		if err != nil {
			return err
		}
		putter = client
	}

	var errs []error
	for name, build := range files {
		data, err := build()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		path := filepath.Join(*out, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			errs = append(errs, err)
			continue
		}
		log.WithFields(logger.Fields{"path": path, "bytes": len(data)}).Info("sample file written")

		if putter != nil {
			if err := writer.Upload(ctx, putter, strings.TrimSuffix(*upload, "/")+"/"+name, data, opts); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
