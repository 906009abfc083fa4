package server

import (
	"sync/atomic"
	"time"
)

// Spawner decides how an accepted connection's handler is run. Spawn must not
// block the accept loop: it either starts task concurrently or, when the
// connection is not admitted, calls reject instead. Exactly one of the two runs.
type Spawner interface {
	Spawn(task, reject func())
}

// Unbounded runs every connection on its own goroutine with no admission limit.
type Unbounded struct{}

// Spawn implements Spawner.
func (Unbounded) Spawn(task, _ func()) {
	go task()
}

// Bounded admits at most a fixed number of concurrent connections. A free slot
// is taken immediately. Otherwise the connection waits up to the queue timeout
// on its own goroutine, so later accepts are not held up, and is rejected when
// no slot frees in time. A zero queue timeout rejects at once.
type Bounded struct {
	semaphore    chan struct{}
	queueTimeout time.Duration

	inFlight      int64
	totalRejected uint64
}

// NewBounded creates a spawner allowing max concurrent connections.
func NewBounded(max int, queueTimeout time.Duration) *Bounded {
	if max < 1 {
		max = 1
	}
	return &Bounded{
		semaphore:    make(chan struct{}, max),
		queueTimeout: queueTimeout,
	}
}

// Spawn implements Spawner.
func (b *Bounded) Spawn(task, reject func()) {
	select {
	case b.semaphore <- struct{}{}:
		atomic.AddInt64(&b.inFlight, 1)
		go b.run(task)
		return
	default:
	}

	if b.queueTimeout <= 0 {
		b.refuse(reject)
		return
	}

	go func() {
		if !b.wait() {
			b.refuse(reject)
			return
		}
		b.run(task)
	}()
}

func (b *Bounded) run(task func()) {
	defer b.release()
	task()
}

func (b *Bounded) refuse(reject func()) {
	atomic.AddUint64(&b.totalRejected, 1)
	reject()
}

// wait blocks until a slot frees or the queue timeout passes.
func (b *Bounded) wait() bool {
	timer := time.NewTimer(b.queueTimeout)
	defer timer.Stop()

	select {
	case b.semaphore <- struct{}{}:
		atomic.AddInt64(&b.inFlight, 1)
		return true
	case <-timer.C:
		return false
	}
}

func (b *Bounded) release() {
	atomic.AddInt64(&b.inFlight, -1)
	<-b.semaphore
}

// InFlight returns the number of connections currently holding a slot.
func (b *Bounded) InFlight() int64 {
	return atomic.LoadInt64(&b.inFlight)
}

// Rejected returns how many connections were refused.
func (b *Bounded) Rejected() uint64 {
	return atomic.LoadUint64(&b.totalRejected)
}

// Capacity returns the maximum number of concurrent connections.
func (b *Bounded) Capacity() int {
	return cap(b.semaphore)
}
