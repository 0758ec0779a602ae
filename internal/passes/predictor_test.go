package passes

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/westphae/quaternion"

	"github.com/star/scanmap/internal/quat"
	"github.com/star/scanmap/internal/scan"
)

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

// sweepBoresight builds a boresight that traces the equator eastward,
// one revolution per minute, at the given sample rate.
func sweepBoresight(n int64, rate float64) []quaternion.Quaternion {
	bore := make([]quaternion.Quaternion, n)
	for i := int64(0); i < n; i++ {
		lon := 2 * math.Pi / 60 * (float64(i) / rate)
		bore[i] = quaternion.Prod(quat.ZRot(lon), quat.YRot(math.Pi/2))
	}
	return bore
}

func sweepRequest(n int64, targets []Target) Request {
	const rate = 10.0
	return Request{
		Bore:       sweepBoresight(n, rate),
		Rng:        scan.SampleRange{First: 0, Count: n},
		SampleRate: rate,
		Epoch:      testEpoch,
		Targets:    targets,
	}
}

// TestPredictEquatorSweep verifies that a boresight sweeping the
// equator crosses an on-path target once per revolution, with sane
// window geometry, and never crosses a target at the pole.
func TestPredictEquatorSweep(t *testing.T) {
	req := sweepRequest(1200, []Target{
		{Name: "crab", LonDeg: 90, LatDeg: 0, RadiusDeg: 10},
		{Name: "pole", LonDeg: 0, LatDeg: 90, RadiusDeg: 5},
	})

	results := Predict(context.Background(), req)

	if len(results) != 2 {
		t.Fatalf("expected 2 target results, got %d", len(results))
	}

	crab := results[0]
	if crab.Name != "crab" {
		t.Errorf("result 0 name = %q, want crab", crab.Name)
	}
	if crab.Error != "" {
		t.Fatalf("unexpected error: %s", crab.Error)
	}

	// Two revolutions over 1200 samples at 10 Hz: one crossing each.
	if len(crab.Crossings) != 2 {
		t.Fatalf("expected 2 crossings, got %d", len(crab.Crossings))
	}

	for i, c := range crab.Crossings {
		// The 20-degree window at 6 deg/s is about 3.3 seconds wide.
		if c.DurationSeconds < 2.5 || c.DurationSeconds > 4.1 {
			t.Errorf("crossing %d: duration %.2fs outside expected window", i, c.DurationSeconds)
		}
		samples := c.EndSample - c.StartSample + 1
		if samples < 31 || samples > 36 {
			t.Errorf("crossing %d: %d samples inside radius, want about 33", i, samples)
		}
		// The sweep passes straight through the target.
		if c.MinSeparationDeg > 0.01 {
			t.Errorf("crossing %d: min separation %.4f°, want ~0", i, c.MinSeparationDeg)
		}
		if c.StartTime.After(c.ClosestTime) || c.ClosestTime.After(c.EndTime) {
			t.Errorf("crossing %d: time ordering violated: start=%v closest=%v end=%v",
				i, c.StartTime, c.ClosestTime, c.EndTime)
		}
		if len(c.Track) == 0 {
			t.Errorf("crossing %d: expected track points, got none", i)
		}
		for j, tp := range c.Track {
			if tp.SeparationDeg < 0 || tp.SeparationDeg > 10 {
				t.Errorf("crossing %d track %d: separation %.2f° outside radius", i, j, tp.SeparationDeg)
			}
			if tp.Sample < c.StartSample || tp.Sample > c.EndSample {
				t.Errorf("crossing %d track %d: sample %d outside window", i, j, tp.Sample)
			}
		}

		t.Logf("crossing %d: start=%v dur=%.1fs minSep=%.3f° track=%d pts",
			i, c.StartTime.Format(time.RFC3339), c.DurationSeconds, c.MinSeparationDeg, len(c.Track))
	}

	// The revolutions are one minute apart.
	gap := crab.Crossings[1].StartTime.Sub(crab.Crossings[0].StartTime)
	if gap < 59*time.Second || gap > 61*time.Second {
		t.Errorf("crossing gap = %v, want about 1m", gap)
	}

	pole := results[1]
	if pole.Error != "" {
		t.Fatalf("pole target error: %s", pole.Error)
	}
	if len(pole.Crossings) != 0 {
		t.Errorf("pole target crossed %d times, want 0", len(pole.Crossings))
	}
}

// TestPredictOpenCrossingClosesAtEnd verifies that a crossing still in
// progress when the data runs out is closed at the last sample.
func TestPredictOpenCrossingClosesAtEnd(t *testing.T) {
	// 140 samples end at longitude 83.4°, inside the window that opens
	// around 80°.
	req := sweepRequest(140, []Target{
		{Name: "crab", LonDeg: 90, LatDeg: 0, RadiusDeg: 10},
	})

	results := Predict(context.Background(), req)
	if results[0].Error != "" {
		t.Fatalf("unexpected error: %s", results[0].Error)
	}
	crossings := results[0].Crossings
	if len(crossings) != 1 {
		t.Fatalf("expected 1 open crossing, got %d", len(crossings))
	}

	c := crossings[0]
	if c.EndSample != 139 {
		t.Errorf("EndSample = %d, want 139 (last sample)", c.EndSample)
	}
	wantEnd := testEpoch.Add(13900 * time.Millisecond)
	if d := c.EndTime.Sub(wantEnd); d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("EndTime = %v, want %v", c.EndTime, wantEnd)
	}
}

// TestPredictMaxCrossings verifies the per-target crossing cap.
func TestPredictMaxCrossings(t *testing.T) {
	req := sweepRequest(1200, []Target{
		{Name: "crab", LonDeg: 90, LatDeg: 0, RadiusDeg: 10},
	})
	req.MaxCrossings = 1

	results := Predict(context.Background(), req)
	if results[0].Error != "" {
		t.Fatalf("unexpected error: %s", results[0].Error)
	}
	if len(results[0].Crossings) != 1 {
		t.Errorf("crossings = %d, want capped at 1", len(results[0].Crossings))
	}
}

// TestPredictInvalidTarget verifies that a bad target reports a
// per-target error without disturbing its neighbors.
func TestPredictInvalidTarget(t *testing.T) {
	req := sweepRequest(600, []Target{
		{Name: "good", LonDeg: 90, LatDeg: 0, RadiusDeg: 10},
		{Name: "zero-radius", LonDeg: 10, LatDeg: 0, RadiusDeg: 0},
		{Name: "bad-lat", LonDeg: 10, LatDeg: 95, RadiusDeg: 5},
	})

	results := Predict(context.Background(), req)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].Error != "" {
		t.Errorf("good target should succeed, got error: %s", results[0].Error)
	}
	if results[1].Error == "" {
		t.Error("zero-radius target should report error")
	}
	if results[2].Error == "" {
		t.Error("out-of-range latitude should report error")
	}
}

// TestPredictBoresightLengthMismatch verifies that a request whose
// boresight does not match its sample range is rejected per target.
func TestPredictBoresightLengthMismatch(t *testing.T) {
	req := sweepRequest(100, []Target{
		{Name: "crab", LonDeg: 90, LatDeg: 0, RadiusDeg: 10},
	})
	req.Rng.Count = 200

	results := Predict(context.Background(), req)
	if results[0].Error == "" {
		t.Error("mismatched boresight length should report error")
	}
}

// TestPredictCancellation verifies that a cancelled context returns
// promptly without panicking.
func TestPredictCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := sweepRequest(1200, []Target{
		{Name: "crab", LonDeg: 90, LatDeg: 0, RadiusDeg: 10},
	})

	results := Predict(ctx, req)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func BenchmarkPredict100Targets(b *testing.B) {
	targets := make([]Target, 100)
	for i := range targets {
		targets[i] = Target{
			Name:      "t",
			LonDeg:    float64(i*360) / 100,
			LatDeg:    0,
			RadiusDeg: 5,
		}
	}
	req := sweepRequest(1200, targets)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Predict(context.Background(), req)
	}
}
