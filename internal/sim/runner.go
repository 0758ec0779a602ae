// Package sim drives full scan-simulation runs: boresight generation,
// pointing expansion, per-worker map accumulation, and the collective
// reduce that makes every worker's map identical.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/collect"
	"github.com/star/scanmap/internal/ephem"
	"github.com/star/scanmap/internal/focalplane"
	"github.com/star/scanmap/internal/metrics"
	"github.com/star/scanmap/internal/pixel"
	"github.com/star/scanmap/internal/pointing"
	"github.com/star/scanmap/internal/quat"
	"github.com/star/scanmap/internal/scan"
	"github.com/star/scanmap/internal/skymap"
)

// Precession axis sources.
const (
	AxisDefault = "default" // fixed default axis
	AxisSlew    = "slew"    // constant-rate axis rotation
	AxisSolar   = "solar"   // anti-solar axis from the ephemeris
	AxisFixed   = "fixed"   // caller-supplied fixed quaternion
)

// Params configures a simulation run.
type Params struct {
	Scan          scan.Config
	Schedule      []scan.SampleRange // observations, processed in order
	Workers       int
	Detectors     []focalplane.Detector
	Rings         int   // ring-grid resolution
	SubmapSize    int64 // 0 means skymap.DefaultSubmapSize
	Axis          string
	SlewDegPerDay float64               // used when Axis == AxisSlew
	FixedAxis     quaternion.Quaternion // used when Axis == AxisFixed
	Epoch         time.Time             // UTC time of global sample zero, used when Axis == AxisSolar
	Logger        *slog.Logger
}

// Result is the reduced output of a run. The maps are shared by every
// worker and read-only.
type Result struct {
	RunID   string
	Hits    *skymap.HitMap
	Stokes  *skymap.StokesMap
	Samples int64 // boresight samples generated across all workers
	Invalid int64 // pointing samples rejected across all detectors
	Elapsed time.Duration
}

// Runner executes simulation runs for one fixed parameter set.
type Runner struct {
	params Params
	grid   *pixel.RingGrid
	logger *slog.Logger
	runID  string
}

// NewRunner validates params and prepares a runner with a fresh run ID.
func NewRunner(p Params) (*Runner, error) {
	if err := p.Scan.Validate(); err != nil {
		return nil, err
	}
	if p.Scan.Coord == "" {
		p.Scan.Coord = scan.CoordEcliptic
	}
	if p.Workers < 1 {
		return nil, fmt.Errorf("worker count %d, need at least 1", p.Workers)
	}
	if len(p.Schedule) == 0 {
		return nil, errors.New("empty observation schedule")
	}
	for i, rng := range p.Schedule {
		if err := rng.Validate(); err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
	}
	if len(p.Detectors) == 0 {
		return nil, errors.New("no detectors")
	}

	switch p.Axis {
	case "", AxisDefault:
		p.Axis = AxisDefault
	case AxisSlew:
		if math.IsNaN(p.SlewDegPerDay) || math.IsInf(p.SlewDegPerDay, 0) {
			return nil, fmt.Errorf("slew rate %v deg/day is not finite", p.SlewDegPerDay)
		}
	case AxisSolar:
		if p.Epoch.IsZero() {
			return nil, errors.New("solar axis requires a mission epoch")
		}
	case AxisFixed:
		if n := quat.Norm(p.FixedAxis); math.Abs(n-1) > 1e-6 {
			return nil, fmt.Errorf("fixed axis norm %v, want unit", n)
		}
	default:
		return nil, fmt.Errorf("unknown axis source %q", p.Axis)
	}

	grid, err := pixel.NewRingGrid(p.Rings)
	if err != nil {
		return nil, err
	}
	if p.SubmapSize <= 0 {
		p.SubmapSize = skymap.DefaultSubmapSize
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	return &Runner{
		params: p,
		grid:   grid,
		logger: p.Logger,
		runID:  uuid.NewString(),
	}, nil
}

// RunID returns the UUID stamped on this runner's logs and map products.
func (r *Runner) RunID() string { return r.runID }

// NPix returns the pixel count of the run's map space.
func (r *Runner) NPix() int64 { return r.grid.NPix() }

// Run executes the schedule across the worker group and returns the
// reduced maps. Any worker failure aborts the whole run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	group, err := collect.NewGroup(r.params.Workers)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, rng := range r.params.Schedule {
		total += rng.Count
	}
	r.logger.Info("run starting",
		"run_id", r.runID,
		"workers", r.params.Workers,
		"observations", len(r.params.Schedule),
		"detectors", len(r.params.Detectors),
		"samples", total,
		"axis", r.params.Axis,
		"npix", r.grid.NPix(),
	)

	metrics.SetWorkers(r.params.Workers)
	defer metrics.SetWorkers(0)

	outs := make([]workerOut, r.params.Workers)
	errs := make([]error, r.params.Workers)
	var wg sync.WaitGroup
	for rank := 0; rank < r.params.Workers; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			outs[rank], errs[rank] = r.worker(ctx, rank, group)
		}(rank)
	}
	wg.Wait()

	if err := pickErr(errs); err != nil {
		r.logger.Error("run failed", "run_id", r.runID, "error", err)
		return nil, err
	}

	res := &Result{
		RunID:   r.runID,
		Hits:    outs[0].hits,
		Stokes:  outs[0].stokes,
		Elapsed: time.Since(start),
	}
	for _, o := range outs {
		res.Samples += o.samples
		res.Invalid += o.invalid
	}

	r.logger.Info("run complete",
		"run_id", r.runID,
		"samples", res.Samples,
		"invalid", res.Invalid,
		"hit_total", res.Hits.Total(),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

type workerOut struct {
	hits    *skymap.HitMap
	stokes  *skymap.StokesMap
	samples int64
	invalid int64
}

func (r *Runner) worker(ctx context.Context, rank int, group *collect.Group) (workerOut, error) {
	var out workerOut

	hits, err := skymap.NewHitMap(r.grid.NPix(), r.params.SubmapSize)
	if err != nil {
		group.Abort(rank, err)
		return out, err
	}
	stokes, err := skymap.NewStokesMap(r.grid.NPix(), r.params.SubmapSize)
	if err != nil {
		group.Abort(rank, err)
		return out, err
	}

	// The generators work in ecliptic coordinates; rotate the boresight
	// once per observation when a different frame is configured.
	var frame quaternion.Quaternion
	rotate := r.params.Scan.Coord != scan.CoordEcliptic
	if rotate {
		frame, err = ephem.FrameRotation(r.params.Scan.Coord)
		if err != nil {
			group.Abort(rank, err)
			return out, err
		}
	}

	for i, sched := range r.params.Schedule {
		if err := ctx.Err(); err != nil {
			group.Abort(rank, err)
			return out, err
		}
		if err := r.observe(rank, i, sched, frame, rotate, hits, stokes, &out); err != nil {
			group.Abort(rank, err)
			return out, err
		}
	}

	tReduce := time.Now()
	redHits, err := group.AllReduceHits(ctx, rank, hits)
	if err != nil {
		return out, err
	}
	metrics.ObserveReduce("hits", time.Since(tReduce))

	tReduce = time.Now()
	redStokes, err := group.AllReduceStokes(ctx, rank, stokes)
	if err != nil {
		return out, err
	}
	metrics.ObserveReduce("stokes", time.Since(tReduce))

	out.hits = redHits
	out.stokes = redStokes
	return out, nil
}

// observe generates this worker's share of one scheduled observation
// and accumulates it into the local maps.
func (r *Runner) observe(rank, obsIdx int, sched scan.SampleRange, frame quaternion.Quaternion, rotate bool, hits *skymap.HitMap, stokes *skymap.StokesMap, out *workerOut) error {
	split := sched.Split(r.params.Workers)[rank]

	obs, err := scan.NewObservation(r.params.Scan, split)
	if err != nil {
		return fmt.Errorf("observation %d: %w", obsIdx, err)
	}

	switch r.params.Axis {
	case AxisSlew:
		axis, err := scan.SlewAxis(split, r.params.Scan.SampleRate, r.params.SlewDegPerDay)
		if err != nil {
			return fmt.Errorf("observation %d: %w", obsIdx, err)
		}
		if err := obs.SetPrecession(axis); err != nil {
			return fmt.Errorf("observation %d: %w", obsIdx, err)
		}
	case AxisSolar:
		axis, err := ephem.SolarAxis(split, r.params.Scan.SampleRate, r.params.Epoch)
		if err != nil {
			return fmt.Errorf("observation %d: %w", obsIdx, err)
		}
		if err := obs.SetPrecession(axis); err != nil {
			return fmt.Errorf("observation %d: %w", obsIdx, err)
		}
	case AxisFixed:
		if err := obs.SetFixedPrecession(r.params.FixedAxis); err != nil {
			return fmt.Errorf("observation %d: %w", obsIdx, err)
		}
	default:
		if err := obs.SetPrecession(nil); err != nil {
			return fmt.Errorf("observation %d: %w", obsIdx, err)
		}
	}

	metrics.AddSamplesGenerated(split.Count)
	out.samples += split.Count

	bore := obs.Boresight()
	if rotate {
		rotated := make([]quaternion.Quaternion, len(bore))
		for i, q := range bore {
			rotated[i] = quaternion.Prod(frame, q)
		}
		bore = rotated
	}
	hwp := obs.HWPAngles()

	tAcc := time.Now()
	for _, det := range r.params.Detectors {
		res := pointing.Expand(bore, det.Quat, r.grid)
		if res.Invalid > 0 {
			metrics.AddSamplesInvalid(int64(res.Invalid))
			out.invalid += int64(res.Invalid)
			r.logger.Warn("invalid pointing samples",
				"run_id", r.runID,
				"rank", rank,
				"observation", obsIdx,
				"detector", det.Name,
				"count", res.Invalid,
			)
		}
		for j, ok := range res.Valid {
			if !ok {
				continue
			}
			pix := res.Pixels[j]
			if err := hits.Accumulate(pix); err != nil {
				return fmt.Errorf("observation %d detector %s: %w", obsIdx, det.Name, err)
			}
			psi := res.Angles[j]
			if hwp != nil {
				psi += 2 * hwp[j]
			}
			if err := stokes.Accumulate(pix, psi); err != nil {
				return fmt.Errorf("observation %d detector %s: %w", obsIdx, det.Name, err)
			}
		}
	}
	metrics.ObserveAccumulate(time.Since(tAcc))

	r.logger.Debug("observation accumulated",
		"run_id", r.runID,
		"rank", rank,
		"observation", obsIdx,
		"first", split.First,
		"samples", split.Count,
	)
	return nil
}

// pickErr prefers a worker's own failure over the ReduceError echoes
// the other workers receive from the abort.
func pickErr(errs []error) error {
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var re *collect.ReduceError
		if !errors.As(err, &re) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}
