package radarcube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometryDerivedValues(t *testing.T) {
	geom, err := NewGeometry(2, 3, 64, 8)
	require.NoError(t, err)

	assert.Equal(t, 6, geom.VirtualAntennas())
	assert.Equal(t, 4, geom.DopplerChirps())
	assert.Equal(t, 6*64*4, geom.Samples())
	assert.Equal(t, 6*64*4*4, geom.FrameBytes())
}

func TestNewGeometryValidation(t *testing.T) {
	cases := []struct {
		name                 string
		tx, rx, bins, chirps int
		wantErr              string
	}{
		{"zero tx", 0, 3, 64, 8, "must all be positive"},
		{"negative bins", 2, 3, -4, 8, "must all be positive"},
		{"chirps not divisible by tx", 2, 3, 64, 7, "divisible by tx antennas"},
		{"bins not divisible by 4", 2, 3, 66, 8, "divisible by 4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGeometry(tc.tx, tc.rx, tc.bins, tc.chirps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestGeometrySingleTxNoMIMO(t *testing.T) {
	geom, err := NewGeometry(1, 4, 128, 16)
	require.NoError(t, err)
	assert.Equal(t, 4, geom.VirtualAntennas())
	assert.Equal(t, 16, geom.DopplerChirps())
}
