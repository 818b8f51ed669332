package grpcchannel

import "sync"

// actor confines all mutation of an owning object to a single home
// goroutine: a bound command channel drained by one dedicated
// goroutine. Public methods that may be called from any goroutine
// submit a closure with call and block for its result; continuations
// produced by the completion-queue worker (queue.go) already run
// serialized through the same actor via post, so they never re-enter
// through a foreign-goroutine path.
type actor struct {
	cmds     chan func()
	done     chan struct{}
	stopOnce sync.Once
}

func newActor() *actor {
	a := &actor{cmds: make(chan func()), done: make(chan struct{})}
	go a.run()
	return a
}

func (a *actor) run() {
	for {
		select {
		case f := <-a.cmds:
			f()
		case <-a.done:
			return
		}
	}
}

// post submits f to run on the home goroutine without waiting for it
// to finish.
func (a *actor) post(f func()) {
	select {
	case a.cmds <- f:
	case <-a.done:
	}
}

// call submits f to run on the home goroutine and blocks until it
// completes, so a foreign-goroutine caller observes the same result
// it would get by running directly on the home goroutine.
func (a *actor) call(f func()) {
	done := make(chan struct{})
	a.post(func() {
		defer close(done)
		f()
	})
	select {
	case <-done:
	case <-a.done:
	}
}

// stop terminates the actor's goroutine. Safe to call more than once.
func (a *actor) stop() {
	a.stopOnce.Do(func() { close(a.done) })
}
