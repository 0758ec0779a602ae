package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/scanmap/internal/config"
	"github.com/star/scanmap/internal/focalplane"
	"github.com/star/scanmap/internal/health"
	"github.com/star/scanmap/internal/mapstore"
	"github.com/star/scanmap/internal/metrics"
	"github.com/star/scanmap/internal/scan"
	"github.com/star/scanmap/internal/sim"
)

func newRunCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Simulate a scan run and write the accumulated maps",
		Long: `Simulate the configured scan strategy across all scheduled
observations, accumulate hit and Stokes maps across workers, and write
the result to a timestamped SQLite file in the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, root)
		},
	}
}

func runScan(cmd *cobra.Command, root *rootOptions) error {
	logger := newLogger(root.Verbose)
	slog.SetDefault(logger)

	cfg, err := loadConfig(root, logger)
	if err != nil {
		return err
	}

	dets, err := loadDetectors(cfg, logger)
	if err != nil {
		return err
	}

	coord := cfg.Scan.Coord
	if coord == "" {
		coord = scan.CoordEcliptic
	}

	params := sim.Params{
		Scan:          cfg.Scan.ToScan(),
		Schedule:      cfg.Schedule.Ranges(),
		Workers:       cfg.Workers,
		Detectors:     dets,
		Rings:         cfg.Map.Rings,
		SubmapSize:    cfg.Map.SubmapSize,
		Axis:          cfg.Axis.Source,
		SlewDegPerDay: cfg.Axis.SlewDegPerDay,
		Epoch:         cfg.Axis.Epoch,
		Logger:        logger,
	}
	params.Scan.Coord = coord
	if cfg.Axis.Source == sim.AxisFixed {
		q, err := cfg.Axis.FixedQuaternion()
		if err != nil {
			return err
		}
		params.FixedAxis = q
	}

	runner, err := sim.NewRunner(params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Monitor.Addr != "" {
		monitor := startMonitor(cfg.Monitor.Addr, logger)
		defer shutdownMonitor(monitor, logger)
	}
	health.SetReady(true)
	defer health.SetReady(false)

	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	path, err := writeMaps(cfg, coord, runner.NPix(), res)
	if err != nil {
		return err
	}

	logger.Info("maps written",
		"path", path,
		"run_id", res.RunID,
		"samples", res.Samples,
		"invalid", res.Invalid,
		"elapsed", res.Elapsed.String(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

// loadDetectors reads the configured focal plane file, or builds a
// synthetic layout when none is given.
func loadDetectors(cfg *config.Config, logger *slog.Logger) ([]focalplane.Detector, error) {
	if cfg.FocalPlane.File != "" {
		return focalplane.LoadFile(cfg.FocalPlane.File, logger)
	}
	return focalplane.Synthetic(cfg.FocalPlane.SyntheticDetectors, cfg.FocalPlane.SyntheticFOVDeg)
}

// writeMaps persists the run result to a fresh timestamped map file and
// prunes old files beyond the retention limit. Persistence runs under a
// background context so an interrupt arriving after the compute finished
// does not discard the result.
func writeMaps(cfg *config.Config, coord string, npix int64, res *sim.Result) (string, error) {
	ctx := context.Background()

	out := mapstore.NewOutput(cfg.Map.OutputDir, cfg.Map.Keep)
	path, err := out.Path(time.Now())
	if err != nil {
		return "", err
	}

	store, err := mapstore.Open(path)
	if err != nil {
		return "", err
	}
	defer store.Close()

	meta := mapstore.Metadata{
		Scheme:    "ringgrid",
		Rings:     int64(cfg.Map.Rings),
		NPix:      npix,
		RunID:     res.RunID,
		Coord:     coord,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.WriteMeta(ctx, meta); err != nil {
		return "", err
	}
	if err := store.WriteHits(ctx, res.Hits); err != nil {
		return "", err
	}
	if err := store.WriteStokes(ctx, res.Stokes); err != nil {
		return "", err
	}
	metrics.IncMapWrites()

	if err := out.Prune(); err != nil {
		return "", err
	}
	return path, nil
}

// startMonitor serves metrics and health endpoints on addr.
func startMonitor(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", health.Healthz)
	mux.HandleFunc("/readyz", health.Readyz)

	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("monitor listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitor server error", "error", err)
		}
	}()
	return srv
}

func shutdownMonitor(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("monitor shutdown error", "error", err)
	}
}
