package skymap

import (
	"fmt"
	"math"
)

// Channels per pixel in a Stokes map: intensity weight plus the two
// polarization weights.
const stokesChannels = 3

// StokesMap accumulates diagonal Stokes weights per sky pixel: for each
// sample landing in a pixel it adds (1, cos 2psi, sin 2psi) where psi is the
// effective polarization angle, including any half-wave-plate contribution
// folded in by the caller. Chunked like HitMap.
type StokesMap struct {
	npix    int64
	submap  int64
	chunks  [][]float64
	samples int64
}

// NewStokesMap creates an empty Stokes weight map over npix pixels.
func NewStokesMap(npix, submapSize int64) (*StokesMap, error) {
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
	return &StokesMap{
		npix:   npix,
		submap: submapSize,
		chunks: make([][]float64, nsub),
	}, nil
}

// NPix returns the size of the pixel index space.
func (m *StokesMap) NPix() int64 { return m.npix }

// SubmapSize returns the pixels per submap chunk.
func (m *StokesMap) SubmapSize() int64 { return m.submap }

// Accumulate adds one sample's Stokes weights to the pixel. psi is the
// effective polarization angle in radians.
func (m *StokesMap) Accumulate(pix int64, psi float64) error {
	if pix < 0 || pix >= m.npix {
		return fmt.Errorf("pixel %d out of range [0, %d)", pix, m.npix)
	}
	sub := pix / m.submap
	if m.chunks[sub] == nil {
		m.chunks[sub] = make([]float64, m.submap*stokesChannels)
	}
	s, c := math.Sincos(2 * psi)
	base := (pix % m.submap) * stokesChannels
	ch := m.chunks[sub]
	ch[base] += 1
	ch[base+1] += c
	ch[base+2] += s
	m.samples++
	return nil
}

// Value returns the accumulated (intensity, cos, sin) weights of the pixel.
func (m *StokesMap) Value(pix int64) (i, q, u float64) {
	if pix < 0 || pix >= m.npix {
		return 0, 0, 0
	}
	ch := m.chunks[pix/m.submap]
	if ch == nil {
		return 0, 0, 0
	}
	base := (pix % m.submap) * stokesChannels
	return ch[base], ch[base+1], ch[base+2]
}

// Total returns the number of accumulated samples.
func (m *StokesMap) Total() int64 { return m.samples }

// Merge adds the other map's weights into this one. Float sums depend on
// merge order at the level of rounding; integer intensity weights stay
// exact because every contribution is 1.
func (m *StokesMap) Merge(other *StokesMap) error {
	if other.npix != m.npix || other.submap != m.submap {
		return fmt.Errorf("map shape mismatch: %d/%d pixels, %d/%d submap size",
			m.npix, other.npix, m.submap, other.submap)
	}
	for sub, src := range other.chunks {
		if src == nil {
			continue
		}
		if m.chunks[sub] == nil {
			m.chunks[sub] = make([]float64, m.submap*stokesChannels)
		}
		dst := m.chunks[sub]
		for i, v := range src {
			dst[i] += v
		}
	}
	m.samples += other.samples
	return nil
}

// Visit calls fn for every pixel with a nonzero intensity weight, in
// ascending pixel order.
func (m *StokesMap) Visit(fn func(pix int64, i, q, u float64)) {
	for sub, ch := range m.chunks {
		if ch == nil {
			continue
		}
		base := int64(sub) * m.submap
		for p := int64(0); p < m.submap; p++ {
			if w := ch[p*stokesChannels]; w != 0 {
				fn(base+p, w, ch[p*stokesChannels+1], ch[p*stokesChannels+2])
			}
		}
	}
}

// Stats returns occupancy statistics for the map.
func (m *StokesMap) Stats() Stats {
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
	s.SizeBytes = int64(s.Allocated)*m.submap*stokesChannels*8 + int64(len(m.chunks))*24
	return s
}
