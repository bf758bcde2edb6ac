package system

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often the Poller re-runs detection.
const DefaultInterval = 5 * time.Second

// Poller re-runs a detection function on a ticker and reports changes.
type Poller struct {
	detect   func() bool
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last bool
}

// NewPoller creates a poller around detect.
func NewPoller(detect func() bool, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{
		detect:   detect,
		interval: interval,
		logger:   logger.With(slog.String("component", "system")),
	}
}

// PrefersDark runs detection now.
func (p *Poller) PrefersDark() bool {
	dark := p.detect()
	p.mu.Lock()
	p.last = dark
	p.mu.Unlock()
	return dark
}

// Watch starts polling and calls fn whenever the detected value changes.
// The returned function stops polling without waiting for it to finish.
func (p *Poller) Watch(fn func(dark bool)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		p.logger.Debug("poller started", slog.Duration("interval", p.interval))
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("poller stopped")
				return
			case <-ticker.C:
				p.check(ctx, fn)
			}
		}
	}()

	return cancel
}

func (p *Poller) check(ctx context.Context, fn func(dark bool)) {
	dark := p.detect()

	p.mu.Lock()
	changed := dark != p.last
	p.last = dark
	p.mu.Unlock()

	if !changed || ctx.Err() != nil {
		return
	}
	p.logger.Info("system color scheme changed", slog.Bool("dark", dark))
	fn(dark)
}
