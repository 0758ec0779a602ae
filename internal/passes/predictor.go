// Package passes predicts when the boresight crosses named sky targets.
//
// A crossing is a maximal run of samples whose boresight direction lies
// within a target's acceptance radius. Boresight samples are discrete
// and already generated, so windows are exact to the sample.
package passes

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/quat"
	"github.com/star/scanmap/internal/scan"
)

// Target is a fixed sky direction with an acceptance radius, expressed
// in the same coordinate system as the boresight samples.
type Target struct {
	Name      string  `json:"name" yaml:"name"`
	LonDeg    float64 `json:"lon_deg" yaml:"lon_deg"`
	LatDeg    float64 `json:"lat_deg" yaml:"lat_deg"`
	RadiusDeg float64 `json:"radius_deg" yaml:"radius_deg"`
}

// TrackPoint is the boresight separation from the target at one sample
// inside a crossing.
type TrackPoint struct {
	Time          time.Time `json:"time"`
	Sample        int64     `json:"sample"`
	SeparationDeg float64   `json:"separation_deg"`
}

// Crossing describes a single pass of the boresight through a target's
// acceptance radius.
type Crossing struct {
	StartTime        time.Time    `json:"start_time"`
	ClosestTime      time.Time    `json:"closest_time"`
	EndTime          time.Time    `json:"end_time"`
	StartSample      int64        `json:"start_sample"`
	EndSample        int64        `json:"end_sample"`
	DurationSeconds  float64      `json:"duration_seconds"`
	MinSeparationDeg float64      `json:"min_separation_deg"`
	Track            []TrackPoint `json:"track"`
}

// TargetCrossings holds the predicted crossings for one target.
type TargetCrossings struct {
	Name      string     `json:"name"`
	Crossings []Crossing `json:"crossings"`
	Error     string     `json:"error,omitempty"`
}

// Request holds the parameters for a crossing prediction request.
type Request struct {
	Bore         []quaternion.Quaternion
	Rng          scan.SampleRange
	SampleRate   float64   // Hz
	Epoch        time.Time // UTC time of global sample zero
	Targets      []Target
	MaxCrossings int // per target; <= 0 means unlimited
}

const trackStepSec = 10 // seconds between track samples inside a crossing

// Predict computes target crossings for the given request.
// Each target is processed in its own goroutine, bounded by a semaphore.
func Predict(ctx context.Context, req Request) []TargetCrossings {
	results := make([]TargetCrossings, len(req.Targets))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, target := range req.Targets {
		wg.Add(1)
		go func(idx int, tg Target) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = TargetCrossings{
					Name:  tg.Name,
					Error: "cancelled",
				}
				return
			}

			crossings, err := predictTarget(ctx, req, tg)
			if err != nil {
				results[idx] = TargetCrossings{
					Name:  tg.Name,
					Error: err.Error(),
				}
				return
			}
			results[idx] = TargetCrossings{
				Name:      tg.Name,
				Crossings: crossings,
			}
		}(i, target)
	}

	wg.Wait()
	return results
}

// predictTarget finds all crossings for a single target.
func predictTarget(ctx context.Context, req Request, tg Target) ([]Crossing, error) {
	if err := validate(req, tg); err != nil {
		return nil, err
	}

	tx, ty, tz := unitVector(tg.LonDeg, tg.LatDeg)
	trackStep := int64(trackStepSec * req.SampleRate)
	if trackStep < 1 {
		trackStep = 1
	}

	var (
		crossings []Crossing
		cur       *Crossing
	)

	for i := int64(0); i < req.Rng.Count; i++ {
		if ctx.Err() != nil {
			return crossings, nil
		}

		bx, by, bz := quat.Rotate(req.Bore[i], 0, 0, 1)
		sepDeg := quat.Angle(bx, by, bz, tx, ty, tz) * 180 / math.Pi
		inside := sepDeg <= tg.RadiusDeg

		switch {
		case inside && cur == nil:
			// Entering the acceptance radius.
			cur = &Crossing{
				StartTime:        sampleTime(req, i),
				ClosestTime:      sampleTime(req, i),
				StartSample:      req.Rng.First + i,
				EndSample:        req.Rng.First + i,
				MinSeparationDeg: sepDeg,
				Track: []TrackPoint{{
					Time:          sampleTime(req, i),
					Sample:        req.Rng.First + i,
					SeparationDeg: sepDeg,
				}},
			}

		case inside:
			cur.EndSample = req.Rng.First + i
			if sepDeg < cur.MinSeparationDeg {
				cur.MinSeparationDeg = sepDeg
				cur.ClosestTime = sampleTime(req, i)
			}
			if (cur.EndSample-cur.StartSample)%trackStep == 0 {
				cur.Track = append(cur.Track, TrackPoint{
					Time:          sampleTime(req, i),
					Sample:        req.Rng.First + i,
					SeparationDeg: sepDeg,
				})
			}

		case cur != nil:
			// Leaving the acceptance radius.
			crossings = append(crossings, closeCrossing(req, cur))
			cur = nil
			if req.MaxCrossings > 0 && len(crossings) >= req.MaxCrossings {
				return crossings, nil
			}
		}
	}

	// Still inside at the end of the data: close the crossing there.
	if cur != nil {
		crossings = append(crossings, closeCrossing(req, cur))
	}

	return crossings, nil
}

func closeCrossing(req Request, cur *Crossing) Crossing {
	cur.EndTime = sampleTime(req, cur.EndSample-req.Rng.First)
	cur.DurationSeconds = cur.EndTime.Sub(cur.StartTime).Seconds()
	return *cur
}

func validate(req Request, tg Target) error {
	if !(req.SampleRate > 0) || math.IsInf(req.SampleRate, 0) {
		return fmt.Errorf("sample rate %v is not positive and finite", req.SampleRate)
	}
	if int64(len(req.Bore)) != req.Rng.Count {
		return fmt.Errorf("boresight length %d does not match range count %d", len(req.Bore), req.Rng.Count)
	}
	if !(tg.RadiusDeg > 0) || tg.RadiusDeg > 90 {
		return fmt.Errorf("target %s: radius %v degrees outside (0, 90]", tg.Name, tg.RadiusDeg)
	}
	if tg.LatDeg < -90 || tg.LatDeg > 90 || math.IsNaN(tg.LatDeg) || math.IsNaN(tg.LonDeg) {
		return fmt.Errorf("target %s: invalid position lon %v lat %v", tg.Name, tg.LonDeg, tg.LatDeg)
	}
	return nil
}

// sampleTime converts a local sample index to wall-clock time.
func sampleTime(req Request, i int64) time.Time {
	sec := float64(req.Rng.First+i) / req.SampleRate
	return req.Epoch.Add(time.Duration(sec * float64(time.Second)))
}

// unitVector converts longitude/latitude in degrees to a unit direction.
func unitVector(lonDeg, latDeg float64) (x, y, z float64) {
	theta := (90 - latDeg) * math.Pi / 180
	phi := lonDeg * math.Pi / 180
	sinT, cosT := math.Sincos(theta)
	sinP, cosP := math.Sincos(phi)
	return sinT * cosP, sinT * sinP, cosT
}
