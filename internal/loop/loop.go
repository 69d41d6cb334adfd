// internal/loop/loop.go
package loop

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ocfkit/buttond/internal/button"
)

// Notifier pushes a published snapshot to all current observers.
// An outcome reporting that no observers remain (see isNoObservers) is
// the only one that stops the loop; everything else is transient.
type Notifier interface {
	Notify(snap button.Snapshot) error
}

var errStopped = errors.New("loop: stopped")

// Loop is the notification loop. It owns all mutable button state:
// requests from the transport are funneled through channels so exactly
// one tick or one request handler runs at a time, and at most one
// notify attempt is outstanding. No locks, by construction.
//
// Idle means no timer is armed. An observe request arms the loop; a
// notify outcome reporting zero observers disarms it.
type Loop struct {
	sampler  *button.Sampler
	notifier Notifier
	interval time.Duration
	log      *zap.SugaredLogger

	observeCh  chan chan button.Snapshot
	retrieveCh chan chan button.Snapshot
	done       chan struct{}
}

func New(sampler *button.Sampler, notifier Notifier, interval time.Duration, log *zap.SugaredLogger) *Loop {
	return &Loop{
		sampler:    sampler,
		notifier:   notifier,
		interval:   interval,
		log:        log,
		observeCh:  make(chan chan button.Snapshot),
		retrieveCh: make(chan chan button.Snapshot),
		done:       make(chan struct{}),
	}
}

// OnObserve services an observe registration: it replies with a fresh
// sample, forces a pending update so the first tick notifies, and arms
// the loop if it was idle. Safe to call from transport goroutines.
func (l *Loop) OnObserve(ctx context.Context) (button.Snapshot, error) {
	return l.request(ctx, l.observeCh)
}

// OnRetrieve services a plain retrieve: it replies with a fresh sample
// and never touches the timer.
func (l *Loop) OnRetrieve(ctx context.Context) (button.Snapshot, error) {
	return l.request(ctx, l.retrieveCh)
}

func (l *Loop) request(ctx context.Context, ch chan chan button.Snapshot) (button.Snapshot, error) {
	reply := make(chan button.Snapshot, 1)

	select {
	case ch <- reply:
	case <-l.done:
		return button.Snapshot{}, errStopped
	case <-ctx.Done():
		return button.Snapshot{}, ctx.Err()
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-l.done:
		return button.Snapshot{}, errStopped
	case <-ctx.Done():
		return button.Snapshot{}, ctx.Err()
	}
}

// Run drives the loop until ctx is cancelled. Any timer still pending
// at shutdown is cancelled before Run returns.
//
// Notify dispatch is fire-and-forget: the next tick is armed as soon as
// the write is issued, and the completion only decides whether the loop
// goes idle. At most one notify is in flight; a change that lands while
// one is outstanding stays pending for a later tick.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	var (
		timer    *time.Timer
		tick     <-chan time.Time // nil while idle
		pending  bool
		inFlight bool
	)

	// Buffered so an in-flight notify never blocks after shutdown.
	result := make(chan error, 1)

	arm := func() {
		timer = time.NewTimer(l.interval)
		tick = timer.C
	}
	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			tick = nil
		}
	}
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			return

		case reply := <-l.observeCh:
			snap, _ := l.sampler.Sample()
			reply <- snap
			pending = true
			if tick == nil {
				arm()
			}

		case reply := <-l.retrieveCh:
			snap, _ := l.sampler.Sample()
			reply <- snap

		case <-tick:
			timer = nil
			tick = nil

			snap, changed := l.sampler.Sample()
			if changed {
				pending = true
			}

			if pending && !inFlight {
				pending = false
				inFlight = true
				go func() { result <- l.notifier.Notify(snap) }()
			}

			// Fixed cadence: rearm once the dispatch is issued,
			// without awaiting its outcome.
			arm()

		case err := <-result:
			inFlight = false
			if err == nil {
				continue
			}
			if isNoObservers(err) {
				l.log.Infow("all observers gone, loop idle")
				disarm()
			} else {
				l.log.Errorw("notify failed", "err", err)
			}
		}
	}
}

// noObserversErr is the structured notify outcome that stops the loop.
type noObserversErr interface {
	NoObservers() bool
}

func isNoObservers(err error) bool {
	var n noObserversErr
	if errors.As(err, &n) {
		return n.NoObservers()
	}
	return false
}
