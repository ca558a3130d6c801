// Package worker runs jobs on keyed lanes: jobs sharing a key run one at a
// time in submission order, while different keys run in parallel up to a
// shared concurrency limit. Submitting never waits on a busy lane.
package worker

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("worker: lanes closed")

type Options[K comparable, J any] struct {
	// Concurrency caps jobs running at once across all lanes. Defaults to 1.
	Concurrency int
	// BacklogWarn, when positive, calls OnBacklog each time a lane's queue
	// reaches a multiple of it.
	BacklogWarn int
	OnBacklog   func(key K, queued int)
	// OnPanic receives the job and recovered value. The lane keeps running.
	OnPanic func(J, any)
}

type lane[J any] struct {
	queue []J
}

type Lanes[K comparable, J any] struct {
	handle func(context.Context, J)
	opts   Options[K, J]
	slots  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	lanes  map[K]*lane[J]
	closed bool
}

func NewLanes[K comparable, J any](ctx context.Context, handle func(context.Context, J), opts Options[K, J]) *Lanes[K, J] {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	lctx, cancel := context.WithCancel(ctx)
	return &Lanes[K, J]{
		handle: handle,
		opts:   opts,
		slots:  make(chan struct{}, opts.Concurrency),
		ctx:    lctx,
		cancel: cancel,
		lanes:  make(map[K]*lane[J]),
	}
}

// Submit appends job to the lane for key and returns at once. A lane with
// no queued work is removed; the next Submit for its key starts a new one.
func (l *Lanes[K, J]) Submit(key K, job J) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane[J]{}
		l.lanes[key] = ln
		l.wg.Add(1)
		go l.drain(key, ln)
	}
	ln.queue = append(ln.queue, job)
	if w := l.opts.BacklogWarn; w > 0 && l.opts.OnBacklog != nil && len(ln.queue)%w == 0 {
		l.opts.OnBacklog(key, len(ln.queue))
	}
	return nil
}

func (l *Lanes[K, J]) drain(key K, ln *lane[J]) {
	defer l.wg.Done()
	for {
		job, ok := l.next(key, ln)
		if !ok {
			return
		}
		select {
		case l.slots <- struct{}{}:
		case <-l.ctx.Done():
			l.retire(key, ln)
			return
		}
		l.run(job)
	}
}

// next pops the head of ln, retiring the lane when it is empty or the
// lanes are closing.
func (l *Lanes[K, J]) next(key K, ln *lane[J]) (J, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero J
	if len(ln.queue) == 0 || l.ctx.Err() != nil {
		l.retireLocked(key, ln)
		return zero, false
	}
	job := ln.queue[0]
	ln.queue[0] = zero
	ln.queue = ln.queue[1:]
	return job, true
}

func (l *Lanes[K, J]) retire(key K, ln *lane[J]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retireLocked(key, ln)
}

func (l *Lanes[K, J]) retireLocked(key K, ln *lane[J]) {
	if l.lanes[key] == ln {
		delete(l.lanes, key)
	}
	ln.queue = nil
}

func (l *Lanes[K, J]) run(job J) {
	defer func() {
		<-l.slots
		if r := recover(); r != nil && l.opts.OnPanic != nil {
			l.opts.OnPanic(job, r)
		}
	}()
	l.handle(l.ctx, job)
}

// Go runs fn on a goroutine that Close waits for. fn should return once its
// context is done. It returns ErrClosed after Close.
func (l *Lanes[K, J]) Go(fn func(context.Context)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()
	go func() {
		defer l.wg.Done()
		fn(l.ctx)
	}()
	return nil
}

// Len reports lanes that currently hold queued or running work.
func (l *Lanes[K, J]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Close rejects new work, drops queued jobs, cancels running ones and waits
// for every lane and every goroutine started with Go.
func (l *Lanes[K, J]) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	l.wg.Wait()
}
