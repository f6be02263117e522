package cubereader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loeens/mmwave-spi-ftdi-reader/config"
	"github.com/loeens/mmwave-spi-ftdi-reader/framereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
	"github.com/loeens/mmwave-spi-ftdi-reader/sim"
)

func testConfig() *config.Config {
	conf := config.NewDefaultConfig()
	conf.Radar = config.RadarConfig{
		TxAntennas:     2,
		RxAntennas:     2,
		RangeBins:      16,
		ChirpsPerFrame: 4,
	}
	conf.SPI.MaxChunkSize = 256
	return conf
}

func TestNewRejectsBadGeometry(t *testing.T) {
	conf := testConfig()
	conf.Radar.RangeBins = 18

	_, err := New(conf, framereader.NewMockTransport(nil))
	assert.Error(t, err)
}

func TestNextParsesSimulatedFrames(t *testing.T) {
	conf := testConfig()
	geom, err := radarcube.NewGeometry(2, 2, 16, 4)
	require.NoError(t, err)

	reader, err := New(conf, sim.New(geom, time.Millisecond, []sim.Target{{RangeBin: 7, Amplitude: 4000}}))
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, geom, reader.Geometry())

	cube, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [3]int{16, 4, 2}, cube.Shape())
	assert.True(t, cube.Interleaved)

	bin, _, err := cube.PeakRangeBin(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, bin)
}

func TestNextFrameReturnsRawPayload(t *testing.T) {
	conf := testConfig()
	geom, err := radarcube.NewGeometry(2, 2, 16, 4)
	require.NoError(t, err)

	reader, err := New(conf, sim.New(geom, time.Millisecond, nil))
	require.NoError(t, err)
	defer reader.Close()

	frame, cube, err := reader.NextFrame(context.Background())
	require.NoError(t, err)
	assert.Len(t, frame.Data, geom.FrameBytes())
	assert.Equal(t, uint64(0), frame.Index)
	require.NotNil(t, cube)

	// The cube is the parse of exactly this payload.
	reparsed, err := radarcube.Parse(frame.Data, geom, frame.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, reparsed.Values(), cube.Values())
}

func TestStreamStopsOnCancel(t *testing.T) {
	conf := testConfig()
	geom, err := radarcube.NewGeometry(2, 2, 16, 4)
	require.NoError(t, err)

	reader, err := New(conf, sim.New(geom, time.Millisecond, nil))
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	stream := reader.Stream(ctx)

	cube, ok := <-stream
	require.True(t, ok)
	require.NotNil(t, cube)

	cancel()
	for range stream {
		// Drain whatever was in flight.
	}
	assert.NoError(t, reader.Err(), "cancellation is a clean stop")
}

func TestParseErrorIsPersistent(t *testing.T) {
	// A frame reader delivering 8-byte frames against a geometry that
	// needs 16: Parse fails, and the failure must stick exactly like a
	// transport failure does.
	geom, err := radarcube.NewGeometry(1, 1, 4, 1)
	require.NoError(t, err)

	fr, err := framereader.New(framereader.NewMockTransport(make([]byte, 32)), 8, 64, 0)
	require.NoError(t, err)
	reader := &Reader{geom: geom, frames: fr}

	_, err = reader.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame length mismatch")

	_, err2 := reader.Next(context.Background())
	assert.Equal(t, err, err2, "later calls must return the first error")
	_, _, err3 := reader.NextFrame(context.Background())
	assert.Equal(t, err, err3)
	assert.Equal(t, err, reader.Err())
}

func TestNextAfterTransportFailure(t *testing.T) {
	conf := testConfig()

	// Mock with too little data for one frame.
	reader, err := New(conf, framereader.NewMockTransport(make([]byte, 16)))
	require.NoError(t, err)

	_, err = reader.Next(context.Background())
	require.Error(t, err)

	// The reader stays down after the first failure.
	_, err = reader.Next(context.Background())
	assert.Error(t, err)
}
