// Package cubereader is the top-level streaming API of the module: it
// pulls raw frames from a framereader.FrameReader and parses each one
// into a labeled radarcube.Cube.
package cubereader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loeens/mmwave-spi-ftdi-reader/config"
	"github.com/loeens/mmwave-spi-ftdi-reader/framereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
)

// Reader streams radar cubes frame by frame.
//
//	reader, err := cubereader.New(conf, transport)
//	...
//	for {
//		cube, err := reader.Next(ctx)
//		if err != nil {
//			break
//		}
//		// work with cube
//	}
//	reader.Close()
type Reader struct {
	geom   radarcube.Geometry
	frames *framereader.FrameReader

	mu  sync.Mutex
	err error // first parse error, persistent like transport errors
}

// New builds a Reader for the configured radar geometry on top of the
// given transport.
func New(conf *config.Config, transport framereader.Transport) (*Reader, error) {
	geom, err := radarcube.NewGeometry(
		conf.Radar.TxAntennas,
		conf.Radar.RxAntennas,
		conf.Radar.RangeBins,
		conf.Radar.ChirpsPerFrame,
	)
	if err != nil {
		return nil, err
	}

	frames, err := framereader.New(transport, geom.FrameBytes(), conf.SPI.MaxChunkSize, conf.Capture.FramePeriod.Std())
	if err != nil {
		return nil, err
	}

	slog.Info("Radar cube reader ready", "geometry", geom.String())
	return &Reader{geom: geom, frames: frames}, nil
}

// Geometry returns the cube geometry this reader was built for.
func (r *Reader) Geometry() radarcube.Geometry { return r.geom }

// Frames exposes the underlying frame reader, mainly for its Stats.
func (r *Reader) Frames() *framereader.FrameReader { return r.frames }

// failParse records the first parse error and closes the reader. Like
// transport errors, every later call returns the first error.
func (r *Reader) failParse(index uint64, err error) error {
	werr := fmt.Errorf("parsing frame %d: %w", index, err)
	r.mu.Lock()
	if r.err == nil {
		r.err = werr
	} else {
		werr = r.err
	}
	r.mu.Unlock()
	r.frames.Close()
	return werr
}

// failed returns the recorded parse error, if any.
func (r *Reader) failed() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Next blocks until a full frame has been transferred and returns it as
// a parsed cube. Read and parse errors are terminal: the reader closes
// itself and returns the error.
func (r *Reader) Next(ctx context.Context) (*radarcube.Cube, error) {
	if err := r.failed(); err != nil {
		return nil, err
	}
	frame, err := r.frames.ReadFrame(ctx)
	if err != nil {
		return nil, err
	}

	cube, err := radarcube.Parse(frame.Data, r.geom, frame.Timestamp)
	if err != nil {
		return nil, r.failParse(frame.Index, err)
	}
	return cube, nil
}

// NextFrame is like Next but also returns the raw frame, for callers
// that record the undecoded payload.
func (r *Reader) NextFrame(ctx context.Context) (framereader.Frame, *radarcube.Cube, error) {
	if err := r.failed(); err != nil {
		return framereader.Frame{}, nil, err
	}
	frame, err := r.frames.ReadFrame(ctx)
	if err != nil {
		return framereader.Frame{}, nil, err
	}

	cube, err := radarcube.Parse(frame.Data, r.geom, frame.Timestamp)
	if err != nil {
		return framereader.Frame{}, nil, r.failParse(frame.Index, err)
	}
	return frame, cube, nil
}

// Stream reads cubes until ctx is done or an error occurs. The channel
// is closed on exit; check Err() afterwards.
func (r *Reader) Stream(ctx context.Context) <-chan *radarcube.Cube {
	out := make(chan *radarcube.Cube)
	go func() {
		defer close(out)
		for {
			cube, err := r.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- cube:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Err returns the error that stopped the reader, if any.
func (r *Reader) Err() error {
	if err := r.failed(); err != nil {
		return err
	}
	return r.frames.Err()
}

// Close releases the underlying frame reader and transport.
func (r *Reader) Close() error {
	slog.Info("Closing radar cube reader")
	return r.frames.Close()
}
