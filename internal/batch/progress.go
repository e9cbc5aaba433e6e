package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives progress from a batch run. Calls are serialized
// by the collector, so implementations only need to guard state shared with
// other goroutines.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnComplete()
	OnError(path string, err error)
}

// NoOpProgress implements ProgressCallback but does nothing.
type NoOpProgress struct{}

func (NoOpProgress) OnStart(int)           {}
func (NoOpProgress) OnProgress(int, int)   {}
func (NoOpProgress) OnComplete()           {}
func (NoOpProgress) OnError(string, error) {}

// ConsoleProgress draws a progress bar.
type ConsoleProgress struct {
	writer         io.Writer
	prefix         string
	width          int
	updateInterval time.Duration

	mu         sync.Mutex
	lastUpdate time.Time
	startTime  time.Time
}

// NewConsoleProgress creates a console progress bar writing to writer, or
// stderr when writer is nil.
func NewConsoleProgress(writer io.Writer, prefix string) *ConsoleProgress {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgress{
		writer:         writer,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
	}
}

// WithUpdateInterval sets how frequently the bar redraws.
func (c *ConsoleProgress) WithUpdateInterval(interval time.Duration) *ConsoleProgress {
	c.updateInterval = interval
	return c
}

func (c *ConsoleProgress) OnStart(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	_, _ = fmt.Fprintf(c.writer, "%s0/%d (0.0%%)\n", c.prefix, total)
}

func (c *ConsoleProgress) OnProgress(current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && current < total {
		return
	}
	c.lastUpdate = now
	c.draw(current, total, now)
}

func (c *ConsoleProgress) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted in %v\n", c.prefix, time.Since(c.startTime).Round(time.Millisecond))
}

func (c *ConsoleProgress) OnError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sError in %s: %v\n", c.prefix, path, err)
}

func (c *ConsoleProgress) draw(current, total int, now time.Time) {
	if total == 0 {
		return
	}
	filled := c.width * current / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	status := fmt.Sprintf("\r%s[%s] %d/%d (%.1f%%)", c.prefix, bar, current, total, float64(current)/float64(total)*100)

	if elapsed := now.Sub(c.startTime); elapsed > 0 && current > 0 {
		status += fmt.Sprintf(" %.1f/s", float64(current)/elapsed.Seconds())
	}
	_, _ = fmt.Fprint(c.writer, status)
}

// LogProgress reports progress through slog every interval items.
type LogProgress struct {
	logger    *slog.Logger
	interval  int
	lastLog   int
	startTime time.Time
}

// NewLogProgress creates a log based progress reporter. A nil logger uses
// slog.Default.
func NewLogProgress(logger *slog.Logger, interval int) *LogProgress {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10
	}
	return &LogProgress{logger: logger, interval: interval}
}

func (l *LogProgress) OnStart(total int) {
	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Info("batch started", "total", total)
}

func (l *LogProgress) OnProgress(current, total int) {
	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	l.logger.Info("batch progress",
		"current", current,
		"total", total,
		"elapsed", time.Since(l.startTime).Round(time.Millisecond),
	)
}

func (l *LogProgress) OnComplete() {
	l.logger.Info("batch completed", "elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgress) OnError(path string, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "batch item failed", "file", path, "error", err)
}
