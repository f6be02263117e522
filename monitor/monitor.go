// Package monitor is a TUI component displaying live capture statistics:
// frame counter, effective frame rate with jitter, transfer overruns and
// the strongest range bin per virtual antenna of the latest cube.
package monitor

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"gonum.org/v1/gonum/stat"

	"github.com/loeens/mmwave-spi-ftdi-reader/framereader"
	"github.com/loeens/mmwave-spi-ftdi-reader/logging"
	"github.com/loeens/mmwave-spi-ftdi-reader/radarcube"
)

const viewerTitle = " mmWave Capture Monitor "

// Monitor shows live capture state in a terminal UI. Pushing data and
// running the UI are decoupled: the capture loop calls Update from its
// goroutine, drawing happens on the TUI thread via QueueUpdateDraw.
type Monitor struct {
	tuiApp   *tview.Application
	statView *tview.TextView
	peakView *tview.TextView
	logView  *tview.TextView

	mu            sync.Mutex
	intervals     *deque.Deque[float64]
	lastFrameTime time.Time
	historySize   int
	updateEvery   time.Duration
	lastDraw      time.Time
	geom          radarcube.Geometry
	ossignal      chan os.Signal
}

// New creates a Monitor for the given geometry. ossignal receives an
// os.Interrupt when the user quits the TUI with q.
func New(geom radarcube.Geometry, historySize int, updateEvery time.Duration, ossignal chan os.Signal) *Monitor {
	m := &Monitor{
		tuiApp:      tview.NewApplication(),
		intervals:   new(deque.Deque[float64]),
		historySize: historySize,
		updateEvery: updateEvery,
		geom:        geom,
		ossignal:    ossignal,
	}
	m.intervals.Grow(historySize)
	return m
}

// Start sets up the UI and runs it. It blocks, so call it as a
// goroutine. Log output is redirected into the TUI log pane until the
// stop signal arrives.
func (m *Monitor) Start(stopSignal chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	m.setupUI()

	if err := logging.SetOutput(tview.ANSIWriter(m.logView)); err != nil {
		slog.Error("Could not attach log output to monitor", "error", err)
	}

	go func() {
		<-stopSignal
		logging.BufferOutput()
		m.tuiApp.Stop()
	}()

	if err := m.tuiApp.Run(); err != nil {
		slog.Error("Error running capture monitor TUI", "error", err)
		os.Exit(1)
	}
	slog.Info("Capture monitor TUI has stopped")
}

// SetUpdateEvery changes the redraw rate limit (config hot reload).
func (m *Monitor) SetUpdateEvery(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateEvery = d
}

// Update feeds the latest cube and frame reader stats into the monitor.
// Safe for concurrent use; redraws are rate-limited to UpdateEvery.
func (m *Monitor) Update(cube *radarcube.Cube, stats framereader.Stats) {
	m.mu.Lock()

	now := time.Now()
	if !m.lastFrameTime.IsZero() {
		if m.intervals.Len() == m.historySize {
			m.intervals.PopFront()
		}
		m.intervals.PushBack(now.Sub(m.lastFrameTime).Seconds())
	}
	m.lastFrameTime = now

	if now.Sub(m.lastDraw) < m.updateEvery {
		m.mu.Unlock()
		return
	}
	m.lastDraw = now

	statText := m.prepareStatText(stats)
	m.mu.Unlock()

	// The peak scan walks the cube without the monitor lock held.
	peakText := m.preparePeakText(cube)

	m.tuiApp.QueueUpdateDraw(func() {
		m.statView.SetText(statText)
		m.peakView.SetText(peakText)
	})
}

func (m *Monitor) setupUI() {
	intro := tview.NewTextView()
	intro.SetBorder(true).SetTitle(viewerTitle).SetTitleColor(tcell.ColorLightBlue)
	intro.SetText(fmt.Sprintf("Streaming radar cubes: %s\nHit [#ff0000]q[-] to stop the capture", m.geom.String()))
	intro.SetTextAlign(tview.AlignCenter)
	intro.SetDynamicColors(true)
	intro.SetBackgroundColor(tcell.ColorDarkSlateGray)

	m.statView = tview.NewTextView()
	m.statView.SetDynamicColors(true)
	m.statView.SetBackgroundColor(tcell.ColorDarkSlateGray)
	m.statView.SetBorder(true).SetTitle(" Transfer ").SetTitleColor(tcell.ColorLightBlue)

	m.peakView = tview.NewTextView()
	m.peakView.SetDynamicColors(true)
	m.peakView.SetBackgroundColor(tcell.ColorDarkSlateGray)
	m.peakView.SetBorder(true).SetTitle(" Peak range bin per antenna (chirp 0) ").SetTitleColor(tcell.ColorLightBlue)

	m.logView = tview.NewTextView()
	m.logView.SetDynamicColors(true)
	m.logView.SetMaxLines(200)
	m.logView.SetBorder(true).SetTitle(" Log ").SetTitleColor(tcell.ColorLightBlue)
	m.logView.SetChangedFunc(func() { m.logView.ScrollToEnd() })

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(intro, 4, 0, false)
	layout.AddItem(m.statView, 5, 0, false)
	layout.AddItem(m.peakView, 0, 2, false)
	layout.AddItem(m.logView, 0, 1, false)

	m.tuiApp.SetRoot(layout, true)
	m.tuiApp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch string(event.Rune()) {
		case "q", "Q":
			m.tuiApp.Stop()
			m.ossignal <- os.Interrupt
		}
		return event
	})
}

// prepareStatText must be called with the mutex held.
func (m *Monitor) prepareStatText(stats framereader.Stats) string {
	data := make([]float64, m.intervals.Len())
	for i := range data {
		data[i] = m.intervals.At(i)
	}

	var fps, jitter float64
	if len(data) > 0 {
		mean, stdDev := stat.MeanStdDev(data, nil)
		if mean > 0 {
			fps = 1 / mean
		}
		// stdDev is NaN with a single sample
		if len(data) > 1 {
			jitter = stdDev * 1000
		}
	}

	return fmt.Sprintf(
		"[yellow]Frames:[-] %8d   [yellow]Bytes:[-] %12d   [yellow]Overruns:[-] %5d\n"+
			"[yellow]Rate:[-] %6.2f fps   [yellow]Jitter:[-] %6.2f ms   [yellow]Last frame:[-] %s",
		stats.Frames, stats.Bytes, stats.Overruns, fps, jitter, stats.LastFrameTime.Round(time.Microsecond))
}

func (m *Monitor) preparePeakText(cube *radarcube.Cube) string {
	if cube == nil {
		return "waiting for first frame..."
	}

	var buf strings.Builder
	for ant := 0; ant < m.geom.VirtualAntennas(); ant++ {
		bin, mag, err := cube.PeakRangeBin(0, ant)
		if err != nil {
			fmt.Fprintf(&buf, "[blue]ant %2d:[-] %v\n", ant, err)
			continue
		}
		fmt.Fprintf(&buf, "[blue]ant %2d:[-] bin %4d  mag %9.1f\n", ant, bin, mag)
	}
	return buf.String()
}
