// Package skymap holds worker-local sky maps accumulated from expanded
// pointing and merged by the collective reduction. Pixel storage is chunked
// into fixed-size submaps allocated on first touch, so a worker whose
// samples cover a narrow band of sky only pays memory for that band.
//
// Maps are exclusively owned by one worker while accumulating and are not
// safe for concurrent use; after the reduction they are read-only.
package skymap

import (
	"fmt"
)

// DefaultSubmapSize is the pixel count per submap chunk used when callers
// have no locality information of their own.
const DefaultSubmapSize = 4096

// HitMap counts observation hits per sky pixel over [0, NPix).
type HitMap struct {
	npix    int64
	submap  int64
	chunks  [][]int64
	samples int64
}

// NewHitMap creates an empty hit map over npix pixels chunked into submaps
// of submapSize pixels. A submapSize larger than npix is clamped to it.
func NewHitMap(npix, submapSize int64) (*HitMap, error) {
	if npix <= 0 {
		return nil, fmt.Errorf("pixel count must be positive, got %d", npix)
	}
	if submapSize <= 0 {
		return nil, fmt.Errorf("submap size must be positive, got %d", submapSize)
	}
	if submapSize > npix {
		submapSize = npix
	}
	nsub := (npix + submapSize - 1) / submapSize
	return &HitMap{
		npix:   npix,
		submap: submapSize,
		chunks: make([][]int64, nsub),
	}, nil
}

// NPix returns the size of the pixel index space.
func (m *HitMap) NPix() int64 { return m.npix }

// SubmapSize returns the pixels per submap chunk.
func (m *HitMap) SubmapSize() int64 { return m.submap }

// Accumulate adds one hit to the pixel, allocating its submap on first
// touch. Pixels outside [0, NPix) are rejected.
func (m *HitMap) Accumulate(pix int64) error {
	if pix < 0 || pix >= m.npix {
		return fmt.Errorf("pixel %d out of range [0, %d)", pix, m.npix)
	}
	sub := pix / m.submap
	if m.chunks[sub] == nil {
		m.chunks[sub] = make([]int64, m.submap)
	}
	m.chunks[sub][pix%m.submap]++
	m.samples++
	return nil
}

// Value returns the hit count of the pixel, zero for untouched submaps.
func (m *HitMap) Value(pix int64) int64 {
	if pix < 0 || pix >= m.npix {
		return 0
	}
	c := m.chunks[pix/m.submap]
	if c == nil {
		return 0
	}
	return c[pix%m.submap]
}

// Total returns the number of accumulated hits across all pixels.
func (m *HitMap) Total() int64 { return m.samples }

// Merge adds the other map's counts into this one. Both maps must share the
// same pixel space and submap size.
func (m *HitMap) Merge(other *HitMap) error {
	if other.npix != m.npix || other.submap != m.submap {
		return fmt.Errorf("map shape mismatch: %d/%d pixels, %d/%d submap size",
			m.npix, other.npix, m.submap, other.submap)
	}
	for sub, src := range other.chunks {
		if src == nil {
			continue
		}
		if m.chunks[sub] == nil {
			m.chunks[sub] = make([]int64, m.submap)
		}
		dst := m.chunks[sub]
		for i, v := range src {
			dst[i] += v
		}
	}
	m.samples += other.samples
	return nil
}

// Visit calls fn for every pixel with a nonzero count, in ascending pixel
// order.
func (m *HitMap) Visit(fn func(pix, hits int64)) {
	for sub, c := range m.chunks {
		if c == nil {
			continue
		}
		base := int64(sub) * m.submap
		for i, v := range c {
			if v != 0 {
				fn(base+int64(i), v)
			}
		}
	}
}

// Equal reports whether both maps hold identical counts over the same pixel
// space. Submap chunking does not have to match allocation-wise, only in
// size.
func (m *HitMap) Equal(other *HitMap) bool {
	if other.npix != m.npix || other.submap != m.submap {
		return false
	}
	for sub := range m.chunks {
		a, b := m.chunks[sub], other.chunks[sub]
		if a == nil && b == nil {
			continue
		}
		for i := int64(0); i < m.submap; i++ {
			var av, bv int64
			if a != nil {
				av = a[i]
			}
			if b != nil {
				bv = b[i]
			}
			if av != bv {
				return false
			}
		}
	}
	return true
}

// Stats describes a local map's occupancy and memory footprint.
type Stats struct {
	NPix       int64
	SubmapSize int64
	Submaps    int
	Allocated  int
	SizeBytes  int64
	Samples    int64
}

// Stats returns occupancy statistics for the map.
func (m *HitMap) Stats() Stats {
	s := Stats{
		NPix:       m.npix,
		SubmapSize: m.submap,
		Submaps:    len(m.chunks),
		Samples:    m.samples,
	}
	for _, c := range m.chunks {
		if c != nil {
			s.Allocated++
		}
	}
	// Allocated chunks dominate; add the chunk table itself.
	s.SizeBytes = int64(s.Allocated)*m.submap*8 + int64(len(m.chunks))*24
	return s
}
