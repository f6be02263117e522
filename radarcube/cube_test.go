package radarcube

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildCube creates a 4x2x3 interleaved cube whose sample values encode
// their own indices: value = 100*bin + 10*ant + chirp.
func buildCube(t *testing.T) *Cube {
	t.Helper()
	shape := [3]int{4, 2, 3}
	data := make([]complex64, shape[0]*shape[1]*shape[2])
	idx := 0
	for bin := 0; bin < shape[0]; bin++ {
		for ant := 0; ant < shape[1]; ant++ {
			for chirp := 0; chirp < shape[2]; chirp++ {
				data[idx] = complex(float32(100*bin+10*ant+chirp), 0)
				idx++
			}
		}
	}
	cube, err := NewCube(data, shape, true, time.Now())
	require.NoError(t, err)
	return cube
}

func TestNewCubeValidation(t *testing.T) {
	_, err := NewCube(make([]complex64, 5), [3]int{2, 2, 2}, true, time.Time{})
	assert.Error(t, err, "sample count must match the shape")

	_, err = NewCube(nil, [3]int{0, 2, 2}, true, time.Time{})
	assert.Error(t, err, "zero axis length must be rejected")
}

func TestCubeDims(t *testing.T) {
	cube := buildCube(t)
	assert.Equal(t, [3]Dim{DimRangeBin, DimVirtAntenna, DimDopplerChirp}, cube.Dims())
	assert.Equal(t, [3]int{4, 2, 3}, cube.Shape())
	assert.Equal(t, 24, cube.Len())

	flat, err := NewCube(make([]complex64, 24), [3]int{3, 2, 4}, false, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, [3]Dim{DimChirp, DimRxAntenna, DimRangeBin}, flat.Dims())
}

func TestCubeAt(t *testing.T) {
	cube := buildCube(t)
	assert.Equal(t, complex64(complex(312, 0)), cube.At(3, 1, 2))
	assert.Equal(t, complex64(complex(0, 0)), cube.At(0, 0, 0))
}

func TestCubeIsel(t *testing.T) {
	cube := buildCube(t)

	// Fix the antenna axis: remaining plane is (rangebin, doppler_chirp).
	plane, err := cube.Isel(DimVirtAntenna, 1)
	require.NoError(t, err)
	require.Len(t, plane, 4*3)
	assert.Equal(t, complex64(complex(10, 0)), plane[0])   // bin 0, chirp 0
	assert.Equal(t, complex64(complex(312, 0)), plane[11]) // bin 3, chirp 2

	_, err = cube.Isel(DimVirtAntenna, 2)
	assert.Error(t, err, "index beyond axis length")

	_, err = cube.Isel(DimChirp, 0)
	assert.Error(t, err, "axis of the other storage layout")
}

func TestCubeRangeProfile(t *testing.T) {
	cube := buildCube(t)

	profile, err := cube.RangeProfile(2, 1)
	require.NoError(t, err)
	require.Len(t, profile, 4)
	for bin, v := range profile {
		assert.Equal(t, complex64(complex(float32(100*bin+10+2), 0)), v)
	}

	_, err = cube.RangeProfile(3, 0)
	assert.Error(t, err, "chirp out of range")
	_, err = cube.RangeProfile(0, -1)
	assert.Error(t, err, "negative antenna")
}

func TestMagnitudesAndPeak(t *testing.T) {
	mags := Magnitudes([]complex64{complex(3, 4), complex(0, 2)})
	assert.InDelta(t, 5.0, mags[0], 1e-9)
	assert.InDelta(t, 2.0, mags[1], 1e-9)

	cube := buildCube(t)
	bin, mag, err := cube.PeakRangeBin(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, bin, "highest bin index carries the largest encoded value")
	assert.InDelta(t, 300.0, mag, 1e-6)
}
