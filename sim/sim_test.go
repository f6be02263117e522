package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loeens/mmwave-spi-ftdi-reader/framereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
)

func testGeometry(t *testing.T) radarcube.Geometry {
	t.Helper()
	geom, err := radarcube.NewGeometry(2, 2, 16, 4)
	require.NoError(t, err)
	return geom
}

func TestSimulatedFrameRoundTrip(t *testing.T) {
	geom := testGeometry(t)
	transport := New(geom, time.Millisecond, []Target{{RangeBin: 5, Amplitude: 5000, PhaseStep: 0.1}})

	fr, err := framereader.New(transport, geom.FrameBytes(), 256, 0)
	require.NoError(t, err)
	defer fr.Close()

	frame, err := fr.ReadFrame(context.Background())
	require.NoError(t, err)
	require.Len(t, frame.Data, geom.FrameBytes())

	cube, err := radarcube.Parse(frame.Data, geom, frame.Timestamp)
	require.NoError(t, err)

	// The synthetic target dominates the noise floor on every antenna.
	for ant := 0; ant < geom.VirtualAntennas(); ant++ {
		bin, mag, err := cube.PeakRangeBin(0, ant)
		require.NoError(t, err)
		assert.Equal(t, 5, bin, "target must appear in its configured range bin (antenna %d)", ant)
		assert.Greater(t, mag, 3000.0)
	}
}

func TestSimulatedFramePacing(t *testing.T) {
	geom := testGeometry(t)
	period := 20 * time.Millisecond
	transport := New(geom, period, nil)

	fr, err := framereader.New(transport, geom.FrameBytes(), geom.FrameBytes(), 0)
	require.NoError(t, err)
	defer fr.Close()

	start := time.Now()
	_, err = fr.ReadFrame(context.Background())
	require.NoError(t, err)
	_, err = fr.ReadFrame(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), period, "second frame must wait for the frame period")
}

func TestSimulatedTransportClose(t *testing.T) {
	geom := testGeometry(t)
	transport := New(geom, time.Millisecond, nil)

	require.NoError(t, transport.Close())
	err := transport.WaitReady(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	err = transport.ReadChunk(context.Background(), make([]byte, 4))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSimulatedDefaultTarget(t *testing.T) {
	geom := testGeometry(t)
	transport := New(geom, time.Millisecond, nil)

	fr, err := framereader.New(transport, geom.FrameBytes(), geom.FrameBytes(), 0)
	require.NoError(t, err)
	defer fr.Close()

	frame, err := fr.ReadFrame(context.Background())
	require.NoError(t, err)

	cube, err := radarcube.Parse(frame.Data, geom, frame.Timestamp)
	require.NoError(t, err)
	bin, _, err := cube.PeakRangeBin(0, 0)
	require.NoError(t, err)
	assert.Equal(t, geom.RangeBins/2, bin)
}
