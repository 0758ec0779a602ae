package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/config"
	"github.com/star/scanmap/internal/ephem"
	"github.com/star/scanmap/internal/passes"
	"github.com/star/scanmap/internal/scan"
	"github.com/star/scanmap/internal/sim"
)

func newCrossingsCommand(root *rootOptions) *cobra.Command {
	var (
		maxCrossings int
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "crossings",
		Short: "Report when the boresight crosses configured sky targets",
		Long: `Generate the boresight pointing for the configured schedule and report
every interval during which it falls within a target's acceptance
radius. Targets are read from the run configuration and interpreted in
the output coordinate system.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrossings(cmd, root, maxCrossings, asJSON)
		},
	}

	cmd.Flags().IntVar(&maxCrossings, "max", 0, "cap crossings reported per target (0 = unlimited)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of text")
	return cmd
}

func runCrossings(cmd *cobra.Command, root *rootOptions, maxCrossings int, asJSON bool) error {
	logger := newLogger(root.Verbose)

	cfg, err := loadConfig(root, logger)
	if err != nil {
		return err
	}
	if len(cfg.Targets) == 0 {
		return errors.New("no targets configured")
	}

	ranges := cfg.Schedule.Ranges()
	if len(ranges) == 0 {
		return errors.New("empty schedule")
	}
	rng := scan.SampleRange{
		First: ranges[0].First,
		Count: ranges[len(ranges)-1].End() - ranges[0].First,
	}

	bore, err := buildBoresight(cfg, rng)
	if err != nil {
		return err
	}

	epoch := cfg.Axis.Epoch
	if epoch.IsZero() {
		epoch = time.Unix(0, 0).UTC()
	}

	results := passes.Predict(cmd.Context(), passes.Request{
		Bore:         bore,
		Rng:          rng,
		SampleRate:   cfg.Scan.SampleRateHz,
		Epoch:        epoch,
		Targets:      cfg.Targets,
		MaxCrossings: maxCrossings,
	})

	w := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(w).Encode(results)
	}

	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(w, "%s: error: %s\n", res.Name, res.Error)
			continue
		}
		fmt.Fprintf(w, "%s: %d crossings\n", res.Name, len(res.Crossings))
		for _, c := range res.Crossings {
			fmt.Fprintf(w, "  %s  ->  %s  (%.1fs, closest %.3f deg)\n",
				c.StartTime.Format(time.RFC3339),
				c.EndTime.Format(time.RFC3339),
				c.DurationSeconds,
				c.MinSeparationDeg,
			)
		}
	}
	return nil
}

// buildBoresight generates the boresight sequence for rng with the
// configured precession axis, rotated into the output coordinate system.
func buildBoresight(cfg *config.Config, rng scan.SampleRange) ([]quaternion.Quaternion, error) {
	sc := cfg.Scan.ToScan()
	if sc.Coord == "" {
		sc.Coord = scan.CoordEcliptic
	}

	obs, err := scan.NewObservation(sc, rng)
	if err != nil {
		return nil, err
	}

	switch cfg.Axis.Source {
	case "", sim.AxisDefault:
		err = obs.SetPrecession(nil)
	case sim.AxisSlew:
		var qs []quaternion.Quaternion
		qs, err = scan.SlewAxis(rng, sc.SampleRate, cfg.Axis.SlewDegPerDay)
		if err == nil {
			err = obs.SetPrecession(qs)
		}
	case sim.AxisSolar:
		if cfg.Axis.Epoch.IsZero() {
			return nil, errors.New("solar axis requires a mission epoch")
		}
		var qs []quaternion.Quaternion
		qs, err = ephem.SolarAxis(rng, sc.SampleRate, cfg.Axis.Epoch)
		if err == nil {
			err = obs.SetPrecession(qs)
		}
	case sim.AxisFixed:
		var q quaternion.Quaternion
		q, err = cfg.Axis.FixedQuaternion()
		if err == nil {
			err = obs.SetFixedPrecession(q)
		}
	default:
		err = fmt.Errorf("unknown axis source %q", cfg.Axis.Source)
	}
	if err != nil {
		return nil, err
	}

	bore := obs.Boresight()
	if sc.Coord == scan.CoordEcliptic {
		return bore, nil
	}
	frame, err := ephem.FrameRotation(sc.Coord)
	if err != nil {
		return nil, err
	}
	rotated := make([]quaternion.Quaternion, len(bore))
	for i, q := range bore {
		rotated[i] = quaternion.Prod(frame, q)
	}
	return rotated, nil
}
