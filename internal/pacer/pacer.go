// Package pacer inserts human-like timing between browser actions.
package pacer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/core"
	"auto_trader/pkg/telemetry"

	"golang.org/x/time/rate"
)

// Pacer mediates every externally observable browser action. A shared rate
// limiter enforces the minimum spacing between any two actions; everything
// else is randomized delay. All waits return early on context cancellation.
type Pacer struct {
	cfg     config.PacingConfig
	session core.IBrowserSession
	limiter *rate.Limiter
	logger  core.ILogger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a pacer from the configured timing constants.
func New(cfg config.PacingConfig, session core.IBrowserSession, logger core.ILogger) *Pacer {
	minInterval := time.Duration(cfg.ActionMinIntervalMs) * time.Millisecond
	if minInterval <= 0 {
		minInterval = time.Millisecond
	}
	return &Pacer{
		cfg:     cfg,
		session: session,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		logger:  logger.WithField("component", "pacer"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRandSource replaces the random source. Tests use a seeded source to
// make delay decisions deterministic.
func (p *Pacer) WithRandSource(src rand.Source) *Pacer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rand.New(src)
	return p
}

func (p *Pacer) randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)))
}

func (p *Pacer) randFloat() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

// Wait sleeps for d or until the context is cancelled.
func (p *Pacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter sleeps a uniform-random duration drawn from [lo, hi].
func (p *Pacer) Jitter(ctx context.Context, lo, hi time.Duration) error {
	return p.Wait(ctx, p.randDuration(lo, hi))
}

// ThinkPause pauses 1-5 seconds with the configured probability, simulating
// operator distraction.
func (p *Pacer) ThinkPause(ctx context.Context) error {
	if p.randFloat() >= p.cfg.RandomPauseProbability {
		return ctx.Err()
	}
	return p.Jitter(ctx, time.Second, 5*time.Second)
}

// beforeAction blocks on the shared limiter so no two actions are emitted
// closer than the configured floor.
func (p *Pacer) beforeAction(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	if m := telemetry.GetGlobalMetrics(); m.BrowserActions != nil {
		m.BrowserActions.Add(ctx, 1)
	}
	return nil
}

// Click moves the mouse toward the element, pauses briefly, then clicks.
func (p *Pacer) Click(ctx context.Context, el core.IElement) error {
	if err := p.beforeAction(ctx); err != nil {
		return err
	}
	if box, err := el.BoundingBox(ctx); err == nil && box.Width > 0 {
		x := box.X + box.Width/2 + float64(p.randDuration(0, 10*time.Millisecond)/time.Millisecond) - 5
		y := box.Y + box.Height/2 + float64(p.randDuration(0, 6*time.Millisecond)/time.Millisecond) - 3
		if err := p.session.MouseMove(ctx, x, y); err != nil {
			p.logger.Debug("mouse move skipped", "error", err)
		}
		if err := p.Jitter(ctx, 100*time.Millisecond, 300*time.Millisecond); err != nil {
			return err
		}
	}
	if err := el.Click(ctx, false); err != nil {
		return err
	}
	return p.Jitter(ctx, 200*time.Millisecond, 500*time.Millisecond)
}

// TypeInto clears the field and emits the text character by character with
// per-key delays, occasionally inserting a longer pause.
func (p *Pacer) TypeInto(ctx context.Context, el core.IElement, text string) error {
	if err := p.beforeAction(ctx); err != nil {
		return err
	}
	if err := el.Fill(ctx, ""); err != nil {
		return err
	}
	if err := p.Jitter(ctx, 100*time.Millisecond, 300*time.Millisecond); err != nil {
		return err
	}
	lo := time.Duration(p.cfg.TypingDelayMinMs) * time.Millisecond
	hi := time.Duration(p.cfg.TypingDelayMaxMs) * time.Millisecond
	for _, ch := range text {
		if err := el.Type(ctx, string(ch)); err != nil {
			return err
		}
		if err := p.Jitter(ctx, lo, hi); err != nil {
			return err
		}
		if p.randFloat() < 0.1 {
			if err := p.Jitter(ctx, 200*time.Millisecond, 800*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return nil
}

// AfterNavigation waits out the post-navigation settle window.
func (p *Pacer) AfterNavigation(ctx context.Context) error {
	lo := time.Duration(p.cfg.AfterNavMinMs) * time.Millisecond
	hi := time.Duration(p.cfg.AfterNavMaxMs) * time.Millisecond
	if err := p.Jitter(ctx, lo, hi); err != nil {
		return err
	}
	return p.ThinkPause(ctx)
}

var _ core.IPacer = (*Pacer)(nil)
