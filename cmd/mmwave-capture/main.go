// mmwave-capture streams radar cubes from a TI IWRL6432BOOST over an
// FTDI USB-SPI bridge (or from a simulated sensor) and optionally
// records them to SQLite and/or displays a live TUI monitor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/loeens/mmwave-spi-ftdi-reader/config"
	"github.com/loeens/mmwave-spi-ftdi-reader/cubereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/framereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/logging"
	"github.com/loeens/mmwave-spi-ftdi-reader/monitor"
	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
	"github.com/loeens/mmwave-spi-ftdi-reader/recorder"
	"github.com/loeens/mmwave-spi-ftdi-reader/sim"
	"github.com/loeens/mmwave-spi-ftdi-reader/util"
)

// snapshot is what the capture loop hands to the monitor updater.
type snapshot struct {
	cube  *radarcube.Cube
	stats framereader.Stats
}

func main() {
	cfile := flag.String("config", config.DefaultConfigFile, "path to the config file")
	simulate := flag.Bool("sim", false, "use a simulated sensor instead of the FTDI hardware")
	tui := flag.Bool("tui", false, "show the live capture monitor TUI")
	dbpath := flag.String("db", "", "record frames to this SQLite database (overrides config)")
	frameLimit := flag.Int("frames", -1, "stop after this many frames, 0 = unlimited (overrides config)")
	flag.Parse()

	conf, err := config.LoadConfig(*cfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}
	if *dbpath != "" {
		conf.Capture.DatabasePath = *dbpath
	}
	if *frameLimit >= 0 {
		conf.Capture.FrameLimit = *frameLimit
	}
	if *tui {
		conf.Monitor.Enabled = true
	}

	if err := logging.Init(conf.Monitor.Enabled, conf.Logging.Level, conf.Logging.Format, conf.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error initialising logging: %v\n", err)
		os.Exit(2)
	}
	defer logging.Close()

	if err := run(conf, *simulate); err != nil {
		slog.Error("Capture failed", "error", err)
		logging.Close()
		os.Exit(1)
	}
}

func run(conf *config.Config, simulate bool) error {
	geom, err := radarcube.NewGeometry(
		conf.Radar.TxAntennas,
		conf.Radar.RxAntennas,
		conf.Radar.RangeBins,
		conf.Radar.ChirpsPerFrame,
	)
	if err != nil {
		return err
	}

	var transport framereader.Transport
	if simulate {
		period := conf.Capture.FramePeriod.Std()
		if period == 0 {
			period = 100 * time.Millisecond
		}
		slog.Info("Using simulated sensor", "frame_period", period)
		transport = sim.New(geom, period, nil)
	} else {
		transport, err = framereader.OpenFTDITransport(conf.SPI)
		if err != nil {
			return err
		}
	}

	reader, err := cubereader.New(conf, transport)
	if err != nil {
		transport.Close()
		return err
	}
	defer reader.Close()

	var rec *recorder.Recorder
	if conf.Capture.DatabasePath != "" {
		rec, err = recorder.New(conf.Capture.DatabasePath, geom, conf.SPI)
		if err != nil {
			return err
		}
		defer rec.Close()
		slog.Info("Recording capture", "database", conf.Capture.DatabasePath, "capture_id", rec.CaptureID())
	}

	ossignal := make(chan os.Signal, 2)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})
	latest := util.NewAtomicEvent[snapshot]()

	var mon *monitor.Monitor
	if conf.Monitor.Enabled {
		mon = monitor.New(geom, conf.Monitor.HistorySize, conf.Monitor.UpdateEvery.Std(), ossignal)
		wg.Add(1)
		go mon.Start(stopChan, &wg)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopChan:
					return
				case <-latest.Channel():
					snap := latest.Value()
					mon.Update(snap.cube, snap.stats)
				}
			}
		}()
	}

	watcher, err := config.NewWatcher(conf, func(rc config.RuntimeConfig) {
		logging.SetLevel(rc.Logging.Level)
		if mon != nil && rc.Monitor.UpdateEvery > 0 {
			mon.SetUpdateEvery(rc.Monitor.UpdateEvery.Std())
		}
	})
	if err != nil {
		slog.Warn("Config file watching disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	captureDone := make(chan struct{})
	go func() {
		defer close(captureDone)
		for {
			frame, cube, err := reader.NextFrame(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("Capture stopped", "error", err)
				}
				return
			}
			if rec != nil {
				if err := rec.RecordFrame(frame); err != nil {
					slog.Error("Recording frame failed", "error", err)
					return
				}
			}
			latest.Send(snapshot{cube: cube, stats: reader.Frames().Stats()})

			if conf.Capture.FrameLimit > 0 && frame.Index+1 >= uint64(conf.Capture.FrameLimit) {
				slog.Info("Frame limit reached", "frames", frame.Index+1)
				return
			}
		}
	}()

	select {
	case sig := <-ossignal:
		slog.Info("Shutting down", "signal", sig)
		cancel()
		<-captureDone
	case <-captureDone:
	}

	close(stopChan)
	wg.Wait()

	stats := reader.Frames().Stats()
	slog.Info("Capture finished",
		"frames", stats.Frames, "bytes", stats.Bytes, "overruns", stats.Overruns)
	return nil
}
