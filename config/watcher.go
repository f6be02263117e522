package config

import (
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// RuntimeConfig is the subset of the configuration that can be changed
// while a capture is running. Radar dimensions and SPI settings determine
// the frame length on the wire and are deliberately excluded: changing
// them requires a restart.
type RuntimeConfig struct {
	Monitor MonitorConfig
	Logging LogConfig
}

// Watcher watches the config file and reports runtime-safe changes.
// Editors typically replace the file instead of writing in place, so the
// watch is on the directory and filtered by name.
type Watcher struct {
	conf     *Config
	fswatch  *fsnotify.Watcher
	onChange func(RuntimeConfig)
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher starts watching the file conf was loaded from. onChange is
// called from the watcher goroutine whenever the runtime-safe subset of
// the config actually changed.
func NewWatcher(conf *Config, onChange func(RuntimeConfig)) (*Watcher, error) {
	fswatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fswatch.Add(filepath.Dir(conf.Configfile)); err != nil {
		fswatch.Close()
		return nil, err
	}

	w := &Watcher{
		conf:     conf,
		fswatch:  fswatch,
		onChange: onChange,
		stopChan: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	defer w.wg.Done()

	current := RuntimeConfig{Monitor: w.conf.Monitor, Logging: w.conf.Logging}

	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.fswatch.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.conf.Configfile) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			reloaded, err := LoadConfig(w.conf.Configfile)
			if err != nil {
				slog.Warn("Ignoring config change, reload failed", "error", err)
				continue
			}
			if reloaded.Radar != w.conf.Radar || reloaded.SPI != w.conf.SPI {
				slog.Warn("Radar/SPI settings changed in config file, restart required to apply them")
			}
			next := RuntimeConfig{Monitor: reloaded.Monitor, Logging: reloaded.Logging}
			if !reflect.DeepEqual(next, current) {
				current = next
				slog.Info("Applying runtime config change", "file", w.conf.Configfile)
				w.onChange(next)
			}
		case err, ok := <-w.fswatch.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}

// Stop ends the watcher goroutine and releases the underlying watch.
func (w *Watcher) Stop() {
	close(w.stopChan)
	w.fswatch.Close()
	w.wg.Wait()
}
