package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"docxingest/internal/domain"
	"docxingest/internal/service"
	"docxingest/mocks"
)

// countingPipeline records how many runs overlap.
type countingPipeline struct {
	runs    atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	delay   time.Duration
}

func (p *countingPipeline) RunBatch(context.Context) (*domain.BatchSummary, error) {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.active.Add(-1)
	time.Sleep(p.delay)
	p.runs.Add(1)
	return &domain.BatchSummary{}, nil
}

func (p *countingPipeline) Latest() (*domain.BatchSummary, error) { return nil, domain.ErrNoRunYet }

func (p *countingPipeline) Running() bool { return p.active.Load() > 0 }

// fakeWatcher calls notify once and then waits for cancellation.
type fakeWatcher struct{}

func (fakeWatcher) Watch(ctx context.Context, notify func()) error {
	notify()
	<-ctx.Done()
	return nil
}

func TestPollWorker_RunOnStart(t *testing.T) {
	p := &countingPipeline{}
	w := service.NewPollWorker(p, nil, service.PollConfig{PollInterval: time.Hour, RunOnStart: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestPollWorker_TicksRunSequentially(t *testing.T) {
	p := &countingPipeline{delay: 20 * time.Millisecond}
	w := service.NewPollWorker(p, nil, service.PollConfig{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	for i := 0; i < 10; i++ {
		w.Trigger()
		time.Sleep(2 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return p.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.False(t, p.overlap.Load())
}

func TestPollWorker_TriggerCoalesces(t *testing.T) {
	w := service.NewPollWorker(&countingPipeline{}, nil, service.PollConfig{PollInterval: time.Hour})

	assert.True(t, w.Trigger())
	assert.False(t, w.Trigger())
}

func TestPollWorker_WatcherTriggersRun(t *testing.T) {
	p := &countingPipeline{}
	w := service.NewPollWorker(p, fakeWatcher{}, service.PollConfig{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return p.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestPollWorker_SurvivesFatalRun(t *testing.T) {
	var calls atomic.Int32
	p := new(mocks.MockPipelineService)
	p.On("RunBatch", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(&domain.BatchSummary{}, &domain.FatalError{Op: "ledger.IsProcessed", Err: assert.AnError}).Once()
	p.On("RunBatch", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(&domain.BatchSummary{Committed: 1}, nil)
	w := service.NewPollWorker(p, nil, service.PollConfig{PollInterval: time.Hour, RunOnStart: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Trigger()
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
