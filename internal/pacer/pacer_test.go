package pacer

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"auto_trader/internal/config"
	"auto_trader/internal/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPacing() config.PacingConfig {
	cfg := config.DefaultConfig().Pacing
	cfg.ActionMinIntervalMs = 50
	cfg.TypingDelayMinMs = 1
	cfg.TypingDelayMaxMs = 2
	cfg.AfterNavMinMs = 1
	cfg.AfterNavMaxMs = 2
	cfg.RandomPauseProbability = 0
	return cfg
}

func newTestPacer() *Pacer {
	return New(testPacing(), mock.NewBrowser(), mock.NopLogger{}).
		WithRandSource(rand.NewSource(1))
}

func TestActionFloorBetweenConsecutiveActions(t *testing.T) {
	p := newTestPacer()
	ctx := context.Background()

	require.NoError(t, p.beforeAction(ctx))
	start := time.Now()
	require.NoError(t, p.beforeAction(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 45*time.Millisecond,
		"second action emitted %v after the first", elapsed)
}

func TestJitterStaysWithinBounds(t *testing.T) {
	p := newTestPacer()
	for i := 0; i < 50; i++ {
		d := p.randDuration(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}

func TestWaitObservesCancellation(t *testing.T) {
	p := newTestPacer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- p.Wait(ctx, 30*time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation within a second")
	}
}

func TestThinkPauseHonorsProbabilityZero(t *testing.T) {
	p := newTestPacer()
	start := time.Now()
	require.NoError(t, p.ThinkPause(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestTypeIntoEmitsEveryCharacter(t *testing.T) {
	p := newTestPacer()
	el := &mock.Element{}
	require.NoError(t, p.TypeInto(context.Background(), el, "abc"))
	assert.Equal(t, "abc", el.Value())
}

func TestJitterCancelledContext(t *testing.T) {
	p := newTestPacer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Jitter(ctx, time.Second, 2*time.Second)
	assert.Error(t, err)
}
