package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"lasttrips/internal/analysis"
	"lasttrips/internal/archive"
	"lasttrips/internal/config"
	"lasttrips/internal/gtfs"
	"lasttrips/internal/metrics"
	"lasttrips/internal/report"
	"lasttrips/internal/server"
	"lasttrips/internal/storage"
)

const usage = "usage: lasttrips <stop_id> <route_id> <direction_id>"

// errUsage exits with status 2.
var errUsage = errors.New(usage)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func parseTarget(args []string) (analysis.Target, error) {
	if len(args) != 3 {
		return analysis.Target{}, errUsage
	}
	dir, err := strconv.Atoi(args[2])
	if err != nil || (dir != 0 && dir != 1) {
		return analysis.Target{}, fmt.Errorf("direction_id must be 0 or 1: %w", errUsage)
	}
	return analysis.Target{StopID: args[0], RouteID: args[1], DirectionID: dir}, nil
}

func run(args []string) error {
	target, err := parseTarget(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	// Cancel the evaluation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return err
	}
	defer db.Close()

	loader := gtfs.NewLoader(gtfs.NewDownloader(cfg.GTFSURL, cfg.GTFSDir, logger), db, gtfs.DefaultOptions(), logger)
	if err := loader.EnsureData(ctx, cfg.GTFSPath); err != nil {
		logger.Error("failed to ensure GTFS data", "error", err)
		return err
	}
	if cfg.Refresh && cfg.GTFSPath == "" {
		if err := loader.Refresh(ctx); err != nil {
			logger.Error("GTFS refresh failed", "error", err)
			return err
		}
	}

	collector := metrics.NewCollector(cfg.HorizonMinutes, cfg.LookbackMinutes)

	source, err := archive.NewS3Source(ctx, archive.S3Config{
		Bucket:       cfg.ArchiveBucket,
		ObjectPrefix: cfg.ArchiveObjectPrefix,
		Region:       cfg.ArchiveRegion,
		Endpoint:     cfg.ArchiveEndpoint,
		Anonymous:    cfg.ArchiveAnonymous,
	}, logger)
	if err != nil {
		logger.Error("failed to configure archive client", "error", err)
		return err
	}
	arch, err := archive.New(source, cfg.CacheDir, cfg.MemoryCacheSize, cfg.Location(), logger)
	if err != nil {
		logger.Error("failed to open archive cache", "error", err)
		return err
	}
	arch.SetObserver(collector)

	finder := analysis.NewFinder(db, arch, cfg.HorizonMinutes, logger)
	scorer := analysis.NewScorer(arch)
	evaluator := analysis.NewEvaluator(db, finder, scorer, cfg.LookbackMinutes, logger)
	evaluator.SetObserver(collector)

	runID := uuid.NewString()
	logger = logger.With("run", runID)
	if err := db.CreateRun(ctx, runID, target.StopID, target.RouteID, target.DirectionID); err != nil {
		logger.Error("failed to record run", "error", err)
		return err
	}

	title := fmt.Sprintf("Last trips at stop %s", target.StopID)
	board := report.NewBoard(title, target)

	if cfg.MetricsAddr != "" {
		srv := server.New(cfg.MetricsAddr, board, collector.Handler(), logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	dates := cfg.Dates()
	logger.Info("evaluation starting",
		"stop", target.StopID,
		"route", target.RouteID,
		"direction", target.DirectionID,
		"dates", len(dates),
	)

	out := report.NewCSVWriter(os.Stdout)
	_, err = evaluator.Evaluate(ctx, target, dates, func(row analysis.Row) error {
		if err := out.Write(row); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		if err := db.SaveEvaluation(ctx, runID, toEvaluation(row)); err != nil {
			return err
		}
		board.Add(row)
		return nil
	})
	board.Finish(err)

	if cfg.HTMLReport != "" {
		if werr := writeReport(cfg.HTMLReport, board.Page()); werr != nil {
			logger.Error("failed to write HTML report", "error", werr)
			if err == nil {
				err = werr
			}
		}
	}

	if err != nil {
		logger.Error("evaluation failed", "error", err)
		return err
	}
	logger.Info("evaluation complete")
	return nil
}

func toEvaluation(row analysis.Row) storage.Evaluation {
	e := storage.Evaluation{
		ServiceDate:        row.Date.Format("2006-01-02"),
		Accurate:           row.Accurate,
		FalsePositive:      row.FalsePositive,
		FalseNegative:      row.FalseNegative,
		ScheduledTripID:    row.ScheduledTripID,
		ScheduledDeparture: row.ScheduledDeparture,
		Found:              row.Found,
	}
	if row.Found {
		e.ActualTripID = row.Actual.TripID
		e.ActualVehicleID = row.Actual.VehicleID
		e.ActualTimestamp = row.Actual.Minute.Format(report.MinuteLayout)
	}
	return e
}

func writeReport(path string, page report.Page) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Report(page).Render(context.Background(), f); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	return f.Close()
}
