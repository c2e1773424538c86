// SPDX-License-Identifier: MIT

// Package watchdog supervises ffmpeg progress output and enforces start
// and stall timeouts on long-running extractions.
package watchdog

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"vidpipe/internal/log"
)

// State is the watchdog's view of the supervised process.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateStalled
	StateTimedOut
	StateCompleted
)

type clock interface {
	Now() time.Time
	NewTicker(d time.Duration) ticker
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func (realClock) Now() time.Time                   { return time.Now() }
func (realClock) NewTicker(d time.Duration) ticker { return &realTicker{time.NewTicker(d)} }

type realTicker struct {
	*time.Ticker
}

func (rt *realTicker) C() <-chan time.Time { return rt.Ticker.C }

// Watchdog consumes ffmpeg "-progress" key=value lines and fails the run
// when no meaningful progress arrives within the configured timeouts.
type Watchdog struct {
	mu sync.RWMutex

	startTimeout time.Duration
	stallTimeout time.Duration

	lastOutTimeMS int64
	lastTotalSize int64
	lastHeartbeat time.Time

	state       State
	hasProgress bool

	cancel context.CancelFunc

	clock clock
}

// New creates a watchdog. startTimeout bounds the time until the first
// progress record, stallTimeout the gap between subsequent ones.
func New(startTimeout, stallTimeout time.Duration) *Watchdog {
	return &Watchdog{
		startTimeout: startTimeout,
		stallTimeout: stallTimeout,
		clock:        realClock{},
	}
}

// Run checks for progress once a second until the context is cancelled or
// the process completes. It returns context.DeadlineExceeded when a start
// timeout or a stall is detected.
func (w *Watchdog) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	w.cancel = cancel
	w.lastHeartbeat = w.clock.Now()
	w.state = StateStarting
	w.mu.Unlock()

	t := w.clock.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C():
			if err := w.check(); err != nil {
				return err
			}
		}
	}
}

// ParseLine processes one line of ffmpeg -progress output. Only growing
// out_time_ms and total_size values count as progress; "progress=end"
// completes the run.
func (w *Watchdog) ParseLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key, val, ok := strings.Cut(line, "=")
	if !ok || strings.Contains(val, "=") {
		return
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "out_time_ms":
		ms, _ := strconv.ParseInt(val, 10, 64)
		if ms > w.lastOutTimeMS {
			w.lastOutTimeMS = ms
			w.recordHeartbeat()
		}
	case "total_size":
		size, _ := strconv.ParseInt(val, 10, 64)
		if size > w.lastTotalSize {
			w.lastTotalSize = size
			w.recordHeartbeat()
		}
	case "progress":
		if val == "end" {
			w.state = StateCompleted
			if w.cancel != nil {
				w.cancel()
			}
		}
	}
}

func (w *Watchdog) recordHeartbeat() {
	w.lastHeartbeat = w.clock.Now()
	if !w.hasProgress && (w.lastOutTimeMS > 0 || w.lastTotalSize > 0) {
		w.hasProgress = true
		w.state = StateRunning
		logger := log.WithComponent("watchdog")
		logger.Debug().Msg("meaningful progress detected")
	}
}

func (w *Watchdog) check() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := w.clock.Now().Sub(w.lastHeartbeat)
	switch w.state {
	case StateStarting:
		if elapsed > w.startTimeout {
			w.state = StateTimedOut
			return context.DeadlineExceeded
		}
	case StateRunning:
		if elapsed > w.stallTimeout {
			w.state = StateStalled
			return context.DeadlineExceeded
		}
	}
	return nil
}

// State returns the current watchdog state.
func (w *Watchdog) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}
