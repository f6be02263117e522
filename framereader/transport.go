// Package framereader implements the frame synchronization and SPI
// demultiplexing engine: it waits for the sensor's SPI_BUSY line to
// signal data ready, pulls fixed-size chunked SPI transfers, undoes the
// wire byte order and hands out whole frames.
package framereader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	// Registers the FTDI driver so that the FT232H's SPI port and pins
	// show up in spireg/gpioreg after host.Init().
	_ "periph.io/x/host/v3/ftdi"

	"github.com/loeens/mmwave-spi-ftdi-reader/config"
)

// Transport is the minimal bus surface the frame reader needs. A real
// implementation sits on an FTDI USB-SPI bridge; tests and the simulator
// provide their own.
type Transport interface {
	// WaitReady blocks until the sensor signals that a chunk can be read
	// (SPI_BUSY low), or until ctx is done.
	WaitReady(ctx context.Context) error

	// ReadChunk performs one SPI read transaction filling buf completely.
	// A transfer that cannot fill buf must return an error.
	ReadChunk(ctx context.Context, buf []byte) error

	Close() error
}

var spiModes = [...]spi.Mode{spi.Mode0, spi.Mode1, spi.Mode2, spi.Mode3}

// FTDITransport drives the sensor over a periph.io SPI port with the
// SPI_BUSY line on a GPIO pin of the same FTDI adapter.
type FTDITransport struct {
	spiPort  spi.PortCloser
	spiConn  spi.Conn
	busyPin  gpio.PinIO
	spiMutex sync.Mutex

	pollInterval time.Duration
	writeBuf     []byte
}

// OpenFTDITransport initializes the periph host, opens the configured SPI
// port and claims the busy pin as input. With the default config this
// finds an FT232H (the chip inside the C232HM-DDHSL-0 cable) and its
// ADBUS4 pin.
func OpenFTDITransport(cfg config.SPIConfig) (*FTDITransport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph: %w", err)
	}

	slog.Info("Opening SPI port", "device", cfg.Device, "frequency_hz", cfg.FrequencyHz, "mode", cfg.Mode)
	spiPort, err := spireg.Open(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open spi port %q: %w", cfg.Device, err)
	}

	spiConn, err := spiPort.Connect(physic.Frequency(cfg.FrequencyHz)*physic.Hertz, spiModes[cfg.Mode], 8)
	if err != nil {
		spiPort.Close()
		return nil, fmt.Errorf("failed to connect to spi device: %w", err)
	}

	busyPin := gpioreg.ByName(cfg.BusyPin)
	if busyPin == nil {
		spiPort.Close()
		return nil, fmt.Errorf("failed to find busy pin %q", cfg.BusyPin)
	}
	if err := busyPin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		spiPort.Close()
		return nil, fmt.Errorf("failed to set busy pin %q to input: %w", cfg.BusyPin, err)
	}

	return &FTDITransport{
		spiPort:      spiPort,
		spiConn:      spiConn,
		busyPin:      busyPin,
		pollInterval: cfg.BusyPollInterval.Std(),
		writeBuf:     make([]byte, cfg.MaxChunkSize),
	}, nil
}

// WaitReady polls the busy pin until it reads low. The MCU raises the
// line while it fills its transmit buffer and drops it when a chunk can
// be clocked out.
func (t *FTDITransport) WaitReady(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.busyPin.Read() == gpio.Low {
			return nil
		}
		if t.pollInterval > 0 {
			time.Sleep(t.pollInterval)
		}
	}
}

// ReadChunk clocks len(buf) bytes out of the sensor in one transaction.
func (t *FTDITransport) ReadChunk(ctx context.Context, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.spiMutex.Lock()
	defer t.spiMutex.Unlock()

	if len(buf) > len(t.writeBuf) {
		t.writeBuf = make([]byte, len(buf))
	}
	// Read-only transfer: clock out zeros.
	if err := t.spiConn.Tx(t.writeBuf[:len(buf)], buf); err != nil {
		return fmt.Errorf("spi transaction of %d bytes failed: %w", len(buf), err)
	}
	return nil
}

// Close releases the SPI port and the busy pin.
func (t *FTDITransport) Close() error {
	t.spiMutex.Lock()
	defer t.spiMutex.Unlock()

	var firstErr error
	if t.spiPort != nil {
		if err := t.spiPort.Close(); err != nil {
			firstErr = err
		}
		t.spiPort = nil
		t.spiConn = nil
	}
	if t.busyPin != nil {
		if err := t.busyPin.Halt(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.busyPin = nil
	}
	return firstErr
}
