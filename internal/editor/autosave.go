package editor

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/DukeRupert/fieldreport/internal/metrics"
)

// Autosaver runs the periodic silent save for one session. It must be
// started with Start and stopped with Stop.
type Autosaver struct {
	session  *Session
	interval time.Duration
	logger   *slog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewAutosaver creates an autosaver for the session.
func NewAutosaver(session *Session, interval time.Duration) *Autosaver {
	return &Autosaver{
		session:  session,
		interval: interval,
		logger:   session.logger.With("component", "autosave"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins ticking. Saves use ctx; cancelling it stops the loop too.
func (a *Autosaver) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Run(ctx)
	}()
	a.logger.Debug("autosave started", "interval", a.interval)
}

// Stop ends the loop and waits for an in-progress tick to finish.
func (a *Autosaver) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

// Run ticks until Stop is called or ctx is done.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			a.logger.Debug("autosave stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick runs one autosave check. A clean document with a healthy mirror is
// left alone.
func (a *Autosaver) Tick(ctx context.Context) {
	if a.session.IsClosed() {
		return
	}
	dirty := a.session.IsDirty()
	metrics.AutosaveTicks.WithLabelValues(strconv.FormatBool(dirty)).Inc()
	if !dirty && !a.session.IsOffline() {
		return
	}
	a.session.SilentSave(ctx)
}
