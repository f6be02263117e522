// Package sim provides a simulated sensor transport. It produces radar
// cube frames with synthetic point targets in the exact wire format of
// the real sensor (SDK dimension order, 32-bit words byte-reversed), so
// the whole pipeline from frame reader to monitor runs without hardware.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
)

// ErrClosed is returned once the transport has been closed.
var ErrClosed = errors.New("simulated transport is closed")

// Target is a synthetic point reflection.
type Target struct {
	// RangeBin is the bin the target appears in.
	RangeBin int
	// Amplitude is the peak magnitude in ADC counts.
	Amplitude float64
	// PhaseStep is the per-chirp phase advance in radians, a stand-in
	// for doppler.
	PhaseStep float64
}

// Transport implements the framereader.Transport interface with
// generated frames at a fixed cadence.
type Transport struct {
	geom        radarcube.Geometry
	framePeriod time.Duration
	targets     []Target
	noise       float64
	rng         *rand.Rand

	mu        sync.Mutex
	pending   []byte
	nextFrame time.Time
	closed    bool
}

// New creates a simulated transport for the given geometry emitting one
// frame per framePeriod. With no targets a single mid-range target is
// synthesized so that the output is never empty.
func New(geom radarcube.Geometry, framePeriod time.Duration, targets []Target) *Transport {
	if len(targets) == 0 {
		targets = []Target{{RangeBin: geom.RangeBins / 2, Amplitude: 2000, PhaseStep: 0.35}}
	}
	return &Transport{
		geom:        geom,
		framePeriod: framePeriod,
		targets:     targets,
		noise:       25,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		nextFrame:   time.Now(),
	}
}

// WaitReady paces the frame cadence: the first chunk of each frame waits
// for the frame period, later chunks of the same frame are ready at once.
func (t *Transport) WaitReady(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if len(t.pending) > 0 {
		t.mu.Unlock()
		return nil
	}
	wait := time.Until(t.nextFrame)
	t.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.pending = t.generateFrame()
	t.nextFrame = time.Now().Add(t.framePeriod)
	return nil
}

// ReadChunk serves the next slice of the current frame.
func (t *Transport) ReadChunk(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if len(t.pending) < len(buf) {
		// The frame reader never asks for more than what is left of a
		// frame, so this indicates a reader bug.
		return errors.New("chunk request exceeds remaining frame data")
	}
	copy(buf, t.pending)
	t.pending = t.pending[len(buf):]
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// generateFrame builds one frame in wire format: samples in SDK order
// cube[chirp][antenna][rangebin], each a little-endian int16 Re/Im pair,
// with every 32-bit word byte-reversed the way the MCU's SPI DMA emits
// them.
func (t *Transport) generateFrame() []byte {
	frame := make([]byte, t.geom.FrameBytes())
	off := 0
	for chirp := 0; chirp < t.geom.DopplerChirps(); chirp++ {
		for ant := 0; ant < t.geom.VirtualAntennas(); ant++ {
			for bin := 0; bin < t.geom.RangeBins; bin++ {
				re := t.rng.NormFloat64() * t.noise
				im := t.rng.NormFloat64() * t.noise
				for _, tgt := range t.targets {
					if tgt.RangeBin == bin {
						phase := tgt.PhaseStep * float64(chirp)
						re += tgt.Amplitude * math.Cos(phase)
						im += tgt.Amplitude * math.Sin(phase)
					}
				}
				binary.LittleEndian.PutUint16(frame[off:], uint16(int16(clamp(re))))
				binary.LittleEndian.PutUint16(frame[off+2:], uint16(int16(clamp(im))))
				off += 4
			}
		}
	}

	// Wire byte order: [A B C D] leaves the MCU as [D C B A].
	for i := 0; i < len(frame); i += 4 {
		frame[i], frame[i+3] = frame[i+3], frame[i]
		frame[i+1], frame[i+2] = frame[i+2], frame[i+1]
	}
	return frame
}

func clamp(v float64) float64 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return v
}
