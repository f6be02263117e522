package framereader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by ReadFrame after Close or after a previous
// unrecoverable error.
var ErrClosed = errors.New("frame reader is closed")

// Frame is one reassembled sensor frame.
type Frame struct {
	// Data is exactly the configured frame length, host byte order
	// restored.
	Data []byte
	// Index counts frames since the reader was created, starting at 0.
	Index uint64
	// Timestamp is the host time when the last chunk arrived.
	Timestamp time.Time
	// Duration is the wall time of the busy-gated transfer, measured
	// from the first ready signal to the last chunk. Idle time spent
	// waiting for the sensor to produce the frame is not included.
	Duration time.Duration
	// Overrun is set when Duration exceeded the configured frame period.
	Overrun bool
}

// Stats is a snapshot of the reader's transfer accounting.
type Stats struct {
	Frames        uint64
	Bytes         uint64
	Overruns      uint64
	LastFrameTime time.Duration
}

// FrameReader reassembles fixed-length frames from gated SPI chunk
// transfers. Each chunk is read when the transport reports the sensor
// ready; chunk contents arrive 32-bit-word byte-reversed on the wire and
// are restored before delivery.
type FrameReader struct {
	transport    Transport
	frameLength  int
	maxChunkSize int
	framePeriod  time.Duration

	mu     sync.Mutex
	err    error
	closed bool
	stats  Stats
}

// New creates a FrameReader pulling frames of frameLength bytes in
// transfers of at most maxChunkSize bytes. Both must be divisible by 4
// because the SPI transactions move 32-bit words. framePeriod is the
// sensor's frame periodicity used for overrun accounting; 0 disables it.
func New(transport Transport, frameLength, maxChunkSize int, framePeriod time.Duration) (*FrameReader, error) {
	if frameLength <= 0 || frameLength%4 != 0 {
		return nil, fmt.Errorf("frame length must be positive and divisible by 4, got %d", frameLength)
	}
	if maxChunkSize <= 0 || maxChunkSize%4 != 0 {
		return nil, fmt.Errorf("max chunk size must be positive and divisible by 4, got %d", maxChunkSize)
	}
	if framePeriod < 0 {
		return nil, fmt.Errorf("frame period must not be negative, got %s", framePeriod)
	}
	return &FrameReader{
		transport:    transport,
		frameLength:  frameLength,
		maxChunkSize: maxChunkSize,
		framePeriod:  framePeriod,
	}, nil
}

// FrameLength returns the configured frame size in bytes.
func (fr *FrameReader) FrameLength() int { return fr.frameLength }

// reverseWords restores host byte order in place. Each group of 4 bytes
// arrives as [D C B A] and is flipped to [A B C D]. len(b) is a multiple
// of 4 by construction.
func reverseWords(b []byte) {
	for i := 0; i < len(b); i += 4 {
		b[i], b[i+3] = b[i+3], b[i]
		b[i+1], b[i+2] = b[i+2], b[i+1]
	}
}

// ReadFrame blocks until one whole frame has been transferred and
// returns it. The returned buffer is freshly allocated and owned by the
// caller. The first error is persistent: it closes the reader and every
// later call returns it.
func (fr *FrameReader) ReadFrame(ctx context.Context) (Frame, error) {
	fr.mu.Lock()
	if fr.closed {
		err := fr.err
		fr.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return Frame{}, err
	}
	index := fr.stats.Frames
	fr.mu.Unlock()

	var start time.Time
	data := make([]byte, fr.frameLength)

	for off := 0; off < fr.frameLength; {
		if err := fr.transport.WaitReady(ctx); err != nil {
			return Frame{}, fr.fail(fmt.Errorf("waiting for SPI busy signal: %w", err))
		}
		// The clock starts once the sensor signals the first chunk:
		// waiting for the sensor to produce a frame is its pacing, only
		// the transfer itself can overrun the frame period.
		if off == 0 {
			start = time.Now()
		}

		chunkSize := fr.frameLength - off
		if chunkSize > fr.maxChunkSize {
			chunkSize = fr.maxChunkSize
		}
		chunk := data[off : off+chunkSize]
		if err := fr.transport.ReadChunk(ctx, chunk); err != nil {
			return Frame{}, fr.fail(fmt.Errorf("reading %d byte chunk at offset %d: %w", chunkSize, off, err))
		}
		reverseWords(chunk)
		off += chunkSize
	}

	frame := Frame{
		Data:      data,
		Index:     index,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
	if fr.framePeriod > 0 && frame.Duration > fr.framePeriod {
		frame.Overrun = true
	}

	fr.mu.Lock()
	fr.stats.Frames++
	fr.stats.Bytes += uint64(fr.frameLength)
	fr.stats.LastFrameTime = frame.Duration
	if frame.Overrun {
		fr.stats.Overruns++
	}
	fr.mu.Unlock()

	if frame.Overrun {
		slog.Debug("Frame transfer overran the sensor frame period",
			"frame", frame.Index, "duration", frame.Duration, "period", fr.framePeriod)
	}
	return frame, nil
}

// Stream reads frames until ctx is done or an error occurs, sending them
// on the returned channel. The channel is closed on exit; check Err()
// afterwards to distinguish cancellation from transport failure.
func (fr *FrameReader) Stream(ctx context.Context) <-chan Frame {
	out := make(chan Frame)
	go func() {
		defer close(out)
		for {
			frame, err := fr.ReadFrame(ctx)
			if err != nil {
				return
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				fr.fail(ctx.Err())
				return
			}
		}
	}()
	return out
}

// Err returns the error that stopped the reader, nil while it is healthy
// or after a clean Close. A stop caused by context cancellation or an
// expired deadline is a clean stop, not a transport failure.
func (fr *FrameReader) Err() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if errors.Is(fr.err, context.Canceled) || errors.Is(fr.err, context.DeadlineExceeded) {
		return nil
	}
	return fr.err
}

// Stats returns a snapshot of the transfer counters.
func (fr *FrameReader) Stats() Stats {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.stats
}

// fail records err, closes the reader and the transport, and returns the
// recorded error. Later failures never overwrite the first one.
func (fr *FrameReader) fail(err error) error {
	fr.mu.Lock()
	if fr.err == nil {
		fr.err = err
	} else {
		err = fr.err
	}
	alreadyClosed := fr.closed
	fr.closed = true
	fr.mu.Unlock()

	if !alreadyClosed {
		if cerr := fr.transport.Close(); cerr != nil {
			slog.Error("Error closing transport after failure", "error", cerr)
		}
	}
	return err
}

// Close shuts the reader down. Subsequent ReadFrame calls return
// ErrClosed. Closing twice is harmless.
func (fr *FrameReader) Close() error {
	fr.mu.Lock()
	if fr.closed {
		fr.mu.Unlock()
		return nil
	}
	fr.closed = true
	fr.mu.Unlock()
	return fr.transport.Close()
}
