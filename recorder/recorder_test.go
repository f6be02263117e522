package recorder

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loeens/mmwave-spi-ftdi-reader/config"
	"github.com/loeens/mmwave-spi-ftdi-reader/framereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
)

func testRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	geom, err := radarcube.NewGeometry(2, 3, 64, 8)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "capture.db")
	rec, err := New(dbPath, geom, config.NewDefaultConfig().SPI)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec, dbPath
}

func TestRecordFrames(t *testing.T) {
	rec, _ := testRecorder(t)

	for i := 0; i < 3; i++ {
		frame := framereader.Frame{
			Data:      []byte{1, 2, 3, 4},
			Index:     uint64(i),
			Timestamp: time.Now(),
			Duration:  2 * time.Millisecond,
			Overrun:   i == 2,
		}
		require.NoError(t, rec.RecordFrame(frame))
	}

	n, err := rec.FrameCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCaptureMetadataPersisted(t *testing.T) {
	rec, dbPath := testRecorder(t)

	frame := framereader.Frame{Data: []byte{9, 9, 9, 9}, Timestamp: time.Now()}
	require.NoError(t, rec.RecordFrame(frame))
	captureID := rec.CaptureID()
	require.NoError(t, rec.Close())

	// Independent connection sees the committed capture.
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var rangeBins, frameBytes int
	var device string
	err = db.QueryRow(
		`SELECT range_bins, frame_bytes, spi_device FROM captures WHERE capture_id = ?`, captureID,
	).Scan(&rangeBins, &frameBytes, &device)
	require.NoError(t, err)
	assert.Equal(t, 64, rangeBins)
	assert.Equal(t, 2*3*64*4*4, frameBytes)
	assert.Equal(t, config.DefaultSPIDevice, device)

	var samples []byte
	var overrun int
	err = db.QueryRow(
		`SELECT samples, overrun FROM frames WHERE capture_id = ?`, captureID,
	).Scan(&samples, &overrun)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, samples)
	assert.Equal(t, 0, overrun)
}

func TestSecondCaptureGetsNewID(t *testing.T) {
	geom, err := radarcube.NewGeometry(1, 1, 16, 2)
	require.NoError(t, err)
	dbPath := filepath.Join(t.TempDir(), "capture.db")
	spiCfg := config.NewDefaultConfig().SPI

	first, err := New(dbPath, geom, spiCfg)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(dbPath, geom, spiCfg)
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, first.CaptureID(), second.CaptureID())
}
