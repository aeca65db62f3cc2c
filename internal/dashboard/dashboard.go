// Package dashboard renders a live terminal view of a running load test.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

const (
	refreshInterval = 500 * time.Millisecond
	historySize     = 100
	maxFailureRows  = 10
)

// RunInfo describes the run for the header panel.
type RunInfo struct {
	Target      string
	Endpoint    string
	Mode        string
	Pacing      string
	Rate        int   // requests per tick; 0 when stages drive the rate
	Ticks       int   // measured ticks
	Concurrency int   // worker count
	Planned     int64 // requests the run will submit, warmup excluded
}

// Sources are the live run structures the dashboard reads from.
// Failures may be nil.
type Sources struct {
	Stats    *metrics.RunStats
	Recorder *metrics.Recorder
	Failures *metrics.FailureTracker
}

// Dashboard redraws run counters and latency percentiles every refreshInterval.
type Dashboard struct {
	src          Sources
	info         RunInfo
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid          *ui.Grid
	summaryPara   *widgets.Paragraph
	progressGauge *widgets.Gauge
	countsPara    *widgets.Paragraph
	latencyLines  *widgets.SparklineGroup
	latencyPara   *widgets.Paragraph
	failureList   *widgets.List

	p99History []float64
	startTime  time.Time
}

// New takes over the terminal. shutdownFunc is called when the user presses
// q or Ctrl-C; the caller still has to call Stop.
func New(src Sources, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("init terminal: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		src:          src,
		info:         info,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		p99History:   make([]float64, 0, historySize),
		startTime:    time.Now(),
	}
	d.initWidgets()
	d.setupGrid()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Starting..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.countsPara = widgets.NewParagraph()
	d.countsPara.Title = "Requests"
	d.countsPara.Text = "Waiting for data..."
	d.countsPara.BorderStyle.Fg = ui.ColorCyan

	p99 := widgets.NewSparkline()
	p99.Title = "P99 (ms)"
	p99.LineColor = ui.ColorGreen
	p99.Data = []float64{0}
	d.latencyLines = widgets.NewSparklineGroup(p99)
	d.latencyLines.Title = "Latency"
	d.latencyLines.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Percentiles"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failures"
	d.failureList.Rows = []string{"[No failures](fg:green)"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()
	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.12,
			ui.NewCol(1.0, d.progressGauge),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.6, d.latencyLines),
			ui.NewCol(0.4, d.latencyPara),
		),
		ui.NewRow(0.36,
			ui.NewCol(0.5, d.countsPara),
			ui.NewCol(0.5, d.failureList),
		),
	)
}

// Start begins the refresh loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop ends the refresh loop and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	events := ui.PollEvents()

	d.render()
	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(time.Since(d.startTime))
			d.render()
		}
	}
}

func (d *Dashboard) update(elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	counts := d.src.Stats.Snapshot()
	latency := d.src.Recorder.Summary()

	d.summaryPara.Text = formatSummary(d.info, elapsed)

	d.progressGauge.Percent = progressPercent(counts, d.info.Planned)
	d.progressGauge.Label = fmt.Sprintf("%d / %d requests", counts.Submitted, d.info.Planned)

	d.countsPara.Text = formatCounts(counts, elapsed)
	d.latencyPara.Text = formatLatency(latency)

	if latency.Count > 0 {
		d.p99History = append(d.p99History, latency.P99Ms)
		if len(d.p99History) > historySize {
			d.p99History = d.p99History[1:]
		}
		d.latencyLines.Sparklines[0].Data = d.p99History
		d.latencyLines.Title = fmt.Sprintf("Latency | P99 %.2fms | Max %.2fms", latency.P99Ms, latency.MaxMs)
	}

	if d.src.Failures != nil {
		d.failureList.Rows = formatFailureRows(d.src.Failures.Breakdown(), maxFailureRows)
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.grid)
}

func formatSummary(info RunInfo, elapsed time.Duration) string {
	parts := []string{fmt.Sprintf("Target: %s", info.Target)}
	if info.Endpoint != "" {
		parts = append(parts, info.Endpoint)
	}
	if info.Mode != "" {
		parts = append(parts, "Mode: "+info.Mode)
	}
	if info.Pacing != "" {
		parts = append(parts, "Pacing: "+info.Pacing)
	}
	if info.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/tick", info.Rate))
	} else {
		parts = append(parts, "Rate: staged")
	}
	if info.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", info.Concurrency))
	}
	return fmt.Sprintf("%s\nElapsed: %s of %d ticks",
		strings.Join(parts, " | "), elapsed.Round(time.Second), info.Ticks)
}

// progressPercent is the share of planned requests already submitted.
func progressPercent(c metrics.Counts, planned int64) int {
	if planned <= 0 {
		return 0
	}
	pct := int(c.Submitted * 100 / planned)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatCounts(c metrics.Counts, elapsed time.Duration) string {
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(c.Completed) / secs
	}
	return fmt.Sprintf(
		"Submitted:   %d\nStarted:     %d\nRecorded:    %d\nFailed:      %d\nIn flight:   %d\nOverruns:    %d\nThroughput:  %.1f/s",
		c.Submitted, c.Started, c.Completed, c.Failed, c.InFlight(), c.OverrunTicks, rate,
	)
}

func formatLatency(s metrics.LatencySummary) string {
	if s.Count == 0 {
		return "No latencies recorded yet"
	}
	return fmt.Sprintf(
		"Min:    %.2fms\nMean:   %.2fms\nP50:    %.2fms\nP90:    %.2fms\nP99:    %.2fms\nP99.9:  %.2fms\nMax:    %.2fms",
		s.MinMs, s.MeanMs, s.P50Ms, s.P90Ms, s.P99Ms, s.P999Ms, s.MaxMs,
	)
}

func formatFailureRows(rows []metrics.FailureCount, limit int) []string {
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, fmt.Sprintf("[%s](fg:red) %d", row.Kind, row.Count))
	}
	return out
}
