package radarcube

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Dim names a cube axis. The names follow the rangeproc DPU terminology.
type Dim string

const (
	DimRangeBin     Dim = "rangebin"
	DimVirtAntenna  Dim = "virt_antenna"
	DimDopplerChirp Dim = "doppler_chirp"
	DimChirp        Dim = "chirp"
	DimRxAntenna    Dim = "rx_antenna"
)

// dimsInterleaved is the axis order of a cube as emitted by the rangeproc
// DPU with interleaved storage; dimsNonInterleaved is the order of raw
// per-chirp ADC style cubes.
var (
	dimsInterleaved    = [3]Dim{DimRangeBin, DimVirtAntenna, DimDopplerChirp}
	dimsNonInterleaved = [3]Dim{DimChirp, DimRxAntenna, DimRangeBin}
)

// Cube is one radar cube frame: complex samples in row-major order over
// three named axes. It is the Go counterpart of the labeled arrays the
// analysis side works with, so every accessor is by axis name or by a
// (rangebin, antenna, chirp) triple rather than bare indices into the
// backing slice.
type Cube struct {
	data  []complex64
	dims  [3]Dim
	shape [3]int

	// Timestamp is the host receive time of the frame.
	Timestamp time.Time
	// Interleaved records the storage order the cube arrived in.
	Interleaved bool
}

// NewCube wraps data in a Cube. len(data) must equal the product of shape.
// The axis order is determined by interleaved, matching the two storage
// layouts the rangeproc DPU can produce.
func NewCube(data []complex64, shape [3]int, interleaved bool, timestamp time.Time) (*Cube, error) {
	n := shape[0] * shape[1] * shape[2]
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("cube shape must be positive in every axis, got %v", shape)
		}
	}
	if len(data) != n {
		return nil, fmt.Errorf("cube data has %d samples, shape %v needs %d", len(data), shape, n)
	}
	dims := dimsNonInterleaved
	if interleaved {
		dims = dimsInterleaved
	}
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	return &Cube{
		data:        data,
		dims:        dims,
		shape:       shape,
		Timestamp:   timestamp,
		Interleaved: interleaved,
	}, nil
}

// Dims returns the axis names in storage order.
func (c *Cube) Dims() [3]Dim { return c.dims }

// Shape returns the axis lengths in storage order.
func (c *Cube) Shape() [3]int { return c.shape }

// Len returns the total number of complex samples.
func (c *Cube) Len() int { return len(c.data) }

// Values returns the backing samples in storage order. The slice is
// shared, not copied.
func (c *Cube) Values() []complex64 { return c.data }

// At returns the sample at the given indices in storage order.
func (c *Cube) At(i, j, k int) complex64 {
	return c.data[(i*c.shape[1]+j)*c.shape[2]+k]
}

// axis returns the position of dim in the storage order.
func (c *Cube) axis(dim Dim) (int, error) {
	for i, d := range c.dims {
		if d == dim {
			return i, nil
		}
	}
	return 0, fmt.Errorf("cube has no axis %q (axes are %v)", dim, c.dims)
}

// Isel extracts the sub-cube plane where the named axis is fixed at
// index. The result is a flat slice in the storage order of the two
// remaining axes.
func (c *Cube) Isel(dim Dim, index int) ([]complex64, error) {
	ax, err := c.axis(dim)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= c.shape[ax] {
		return nil, fmt.Errorf("index %d out of range for axis %q of length %d", index, dim, c.shape[ax])
	}

	out := make([]complex64, 0, len(c.data)/c.shape[ax])
	for i := 0; i < c.shape[0]; i++ {
		if ax == 0 && i != index {
			continue
		}
		for j := 0; j < c.shape[1]; j++ {
			if ax == 1 && j != index {
				continue
			}
			for k := 0; k < c.shape[2]; k++ {
				if ax == 2 && k != index {
					continue
				}
				out = append(out, c.At(i, j, k))
			}
		}
	}
	return out, nil
}

// RangeProfile returns the complex range profile of one antenna in one
// chirp, ordered by range bin. It understands both storage layouts.
func (c *Cube) RangeProfile(chirp, antenna int) ([]complex64, error) {
	rangeAx, err := c.axis(DimRangeBin)
	if err != nil {
		return nil, err
	}

	var chirpDim, antDim Dim
	if c.Interleaved {
		chirpDim, antDim = DimDopplerChirp, DimVirtAntenna
	} else {
		chirpDim, antDim = DimChirp, DimRxAntenna
	}
	chirpAx, _ := c.axis(chirpDim)
	antAx, _ := c.axis(antDim)

	if chirp < 0 || chirp >= c.shape[chirpAx] {
		return nil, fmt.Errorf("chirp %d out of range (%d chirps)", chirp, c.shape[chirpAx])
	}
	if antenna < 0 || antenna >= c.shape[antAx] {
		return nil, fmt.Errorf("antenna %d out of range (%d antennas)", antenna, c.shape[antAx])
	}

	idx := [3]int{}
	idx[chirpAx] = chirp
	idx[antAx] = antenna

	profile := make([]complex64, c.shape[rangeAx])
	for bin := 0; bin < c.shape[rangeAx]; bin++ {
		idx[rangeAx] = bin
		profile[bin] = c.At(idx[0], idx[1], idx[2])
	}
	return profile, nil
}

// Magnitudes converts a complex slice to per-element magnitudes.
func Magnitudes(samples []complex64) []float64 {
	mags := make([]float64, len(samples))
	for i, s := range samples {
		mags[i] = math.Hypot(float64(real(s)), float64(imag(s)))
	}
	return mags
}

// PeakRangeBin returns the strongest range bin of one antenna/chirp pair
// and its magnitude.
func (c *Cube) PeakRangeBin(chirp, antenna int) (bin int, magnitude float64, err error) {
	profile, err := c.RangeProfile(chirp, antenna)
	if err != nil {
		return 0, 0, err
	}
	mags := Magnitudes(profile)
	bin = floats.MaxIdx(mags)
	return bin, mags[bin], nil
}
