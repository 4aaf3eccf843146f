package wal

import (
	"sync"
	"sync/atomic"
	"time"
)

// SealFunc performs one seal: capture a consistent in-memory snapshot,
// write a new archive, and truncate the WAL through the sealed LSN. It
// is supplied by the caller (C8's archive writer plus the owning
// collection) since C9 itself only knows about the log, not the
// in-memory state being sealed.
type SealFunc func() error

// AutoSaver runs SealFunc on a ticker (default 30s) and also triggers a
// seal as soon as minOperations writes have accumulated since the last
// one, whichever comes first (spec §4.9).
type AutoSaver struct {
	interval      time.Duration
	minOperations int64
	seal          SealFunc

	ops      atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewAutoSaver builds a scheduler. intervalSecs<=0 defaults to 30,
// minOperations<=0 defaults to 1000, matching spec §4.9's defaults.
func NewAutoSaver(intervalSecs, minOperations int, seal SealFunc) *AutoSaver {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	if minOperations <= 0 {
		minOperations = 1000
	}
	return &AutoSaver{
		interval:      time.Duration(intervalSecs) * time.Second,
		minOperations: int64(minOperations),
		seal:          seal,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// RecordOp tells the scheduler one write happened, for the
// operation-count trigger.
func (a *AutoSaver) RecordOp() {
	a.ops.Add(1)
}

// Start runs the scheduler loop in the background until Stop is called.
func (a *AutoSaver) Start() {
	go a.run()
}

func (a *AutoSaver) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	opCheck := time.NewTicker(50 * time.Millisecond)
	defer opCheck.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.maybeSeal()
		case <-opCheck.C:
			if a.ops.Load() >= a.minOperations {
				a.maybeSeal()
			}
		}
	}
}

func (a *AutoSaver) maybeSeal() {
	if a.seal == nil {
		return
	}
	if err := a.seal(); err == nil {
		a.ops.Store(0)
	}
}

// Stop halts the scheduler and waits for its goroutine to exit.
func (a *AutoSaver) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}
