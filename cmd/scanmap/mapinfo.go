package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/scanmap/internal/mapstore"
)

// mapSummary is the mapinfo report for one stored map file.
type mapSummary struct {
	Path             string    `json:"path"`
	Scheme           string    `json:"scheme"`
	Rings            int64     `json:"rings"`
	NPix             int64     `json:"npix"`
	RunID            string    `json:"run_id"`
	Coord            string    `json:"coord"`
	CreatedAt        time.Time `json:"created_at"`
	TotalHits        int64     `json:"total_hits"`
	CoveredPixels    int64     `json:"covered_pixels"`
	MaxHits          int64     `json:"max_hits"`
	CoverageFraction float64   `json:"coverage_fraction"`
}

func newMapInfoCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "mapinfo [file]",
		Short: "Describe a stored map file",
		Long: `Print the metadata and coverage statistics of a map file. With no
argument the newest file in the configured output directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return showMapInfo(cmd, root, path, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of text")
	return cmd
}

func showMapInfo(cmd *cobra.Command, root *rootOptions, path string, asJSON bool) error {
	logger := newLogger(root.Verbose)

	if path == "" {
		cfg, err := loadConfig(root, logger)
		if err != nil {
			return err
		}
		out := mapstore.NewOutput(cfg.Map.OutputDir, cfg.Map.Keep)
		latest, _, err := out.Latest()
		if err != nil {
			return err
		}
		path = latest
	}

	store, err := mapstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	meta, err := store.ReadMeta(ctx)
	if err != nil {
		return err
	}
	hits, err := store.ReadHits(ctx)
	if err != nil {
		return err
	}

	sum := mapSummary{
		Path:      path,
		Scheme:    meta.Scheme,
		Rings:     meta.Rings,
		NPix:      meta.NPix,
		RunID:     meta.RunID,
		Coord:     meta.Coord,
		CreatedAt: meta.CreatedAt,
	}
	for _, h := range hits {
		if h == 0 {
			continue
		}
		sum.TotalHits += h
		sum.CoveredPixels++
		if h > sum.MaxHits {
			sum.MaxHits = h
		}
	}
	if meta.NPix > 0 {
		sum.CoverageFraction = float64(sum.CoveredPixels) / float64(meta.NPix)
	}

	w := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(w).Encode(sum)
	}

	fmt.Fprintf(w, "file:      %s\n", sum.Path)
	fmt.Fprintf(w, "scheme:    %s (%d rings, %d pixels)\n", sum.Scheme, sum.Rings, sum.NPix)
	fmt.Fprintf(w, "run:       %s\n", sum.RunID)
	fmt.Fprintf(w, "coord:     %s\n", sum.Coord)
	fmt.Fprintf(w, "created:   %s\n", sum.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "hits:      %d total, max %d per pixel\n", sum.TotalHits, sum.MaxHits)
	fmt.Fprintf(w, "coverage:  %d/%d pixels (%.1f%%)\n", sum.CoveredPixels, sum.NPix, 100*sum.CoverageFraction)
	return nil
}
