// Command scanmap simulates satellite scan runs and accumulates sky maps.
//
// The run subcommand generates boresight pointing for a configured scan
// strategy, expands it across the focal plane, accumulates hit and Stokes
// maps across workers, and writes the result to a SQLite file. The mapinfo
// and crossings subcommands inspect stored maps and report target
// visibility windows.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/star/scanmap/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions holds global flags shared by all subcommands.
type rootOptions struct {
	ConfigPath string
	Verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "scanmap",
		Short: "Satellite scan simulator and sky map accumulator",
		Long: `scanmap simulates the pointing of a spinning, precessing satellite
telescope and accumulates the resulting sky coverage into hit and
Stokes maps stored as SQLite files.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML run configuration")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newMapInfoCommand(opts))
	cmd.AddCommand(newCrossingsCommand(opts))

	return cmd
}

// newLogger builds the process logger. Logs go to stderr so that
// subcommands emitting results on stdout stay machine-readable.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the configured file, or starts from defaults when no
// file is given, then applies environment overrides.
func loadConfig(opts *rootOptions, logger *slog.Logger) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.LoadFile(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	applyEnvOverrides(&cfg, logger)
	return &cfg, nil
}

// applyEnvOverrides layers SCANMAP_* environment variables over the file
// configuration. Unparseable values keep the configured value.
func applyEnvOverrides(cfg *config.Config, logger *slog.Logger) {
	if v := os.Getenv("SCANMAP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		} else {
			logger.Warn("invalid SCANMAP_WORKERS value, using configured", "value", v)
		}
	}
	if v := os.Getenv("SCANMAP_RINGS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Map.Rings = n
		} else {
			logger.Warn("invalid SCANMAP_RINGS value, using configured", "value", v)
		}
	}
	if v := os.Getenv("SCANMAP_OUTPUT_DIR"); v != "" {
		cfg.Map.OutputDir = v
	}
	if v := os.Getenv("SCANMAP_MONITOR_ADDR"); v != "" {
		cfg.Monitor.Addr = v
	}
}
