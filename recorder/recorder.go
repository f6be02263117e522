// Package recorder persists captured radar frames to a SQLite database
// for offline analysis and replay.
package recorder

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loeens/mmwave-spi-ftdi-reader/config"
	"github.com/loeens/mmwave-spi-ftdi-reader/framereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
)

const schema = `
	CREATE TABLE IF NOT EXISTS captures (
		capture_id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		tx_antennas INTEGER NOT NULL,
		rx_antennas INTEGER NOT NULL,
		range_bins INTEGER NOT NULL,
		chirps_per_frame INTEGER NOT NULL,
		frame_bytes INTEGER NOT NULL,
		spi_device TEXT NOT NULL,
		spi_frequency_hz INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS frames (
		capture_id INTEGER NOT NULL,
		frame_index INTEGER NOT NULL,
		timestamp_ns BIGINT NOT NULL,
		duration_ns BIGINT NOT NULL,
		overrun INTEGER NOT NULL,
		samples BLOB NOT NULL,
		PRIMARY KEY (capture_id, frame_index),
		FOREIGN KEY (capture_id) REFERENCES captures(capture_id)
	);
`

// Recorder writes one capture run: a metadata row plus one row per frame.
// The samples blob is the frame payload after byte-order restoration,
// i.e. exactly what radarcube.Parse consumes.
type Recorder struct {
	db        *sql.DB
	captureID int64
}

// New opens (or creates) the database at path and starts a new capture
// row describing this run.
func New(path string, geom radarcube.Geometry, spiCfg config.SPIConfig) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening capture database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating capture schema: %w", err)
	}

	res, err := db.Exec(
		`INSERT INTO captures (started_at, tx_antennas, rx_antennas, range_bins, chirps_per_frame, frame_bytes, spi_device, spi_frequency_hz)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now(), geom.TxAntennas, geom.RxAntennas, geom.RangeBins, geom.ChirpsPerFrame,
		geom.FrameBytes(), spiCfg.Device, spiCfg.FrequencyHz,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("starting capture row: %w", err)
	}
	captureID, err := res.LastInsertId()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Recorder{db: db, captureID: captureID}, nil
}

// CaptureID returns the id of the capture row this recorder writes to.
func (r *Recorder) CaptureID() int64 { return r.captureID }

// RecordFrame appends one frame to the capture.
func (r *Recorder) RecordFrame(frame framereader.Frame) error {
	overrun := 0
	if frame.Overrun {
		overrun = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO frames (capture_id, frame_index, timestamp_ns, duration_ns, overrun, samples)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.captureID, frame.Index, frame.Timestamp.UnixNano(), frame.Duration.Nanoseconds(), overrun, frame.Data,
	)
	if err != nil {
		return fmt.Errorf("recording frame %d: %w", frame.Index, err)
	}
	return nil
}

// FrameCount returns the number of frames recorded in this capture.
func (r *Recorder) FrameCount() (int64, error) {
	var n int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM frames WHERE capture_id = ?`, r.captureID).Scan(&n)
	return n, err
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}
