package grpcchannel

import "sync"

// tag binds an async gRPC operation's result to the continuation that
// should run once it completes: a heap-allocated closure plus the
// `ok` flag that continuation expects. run is already bound, at
// submission time, to post itself onto the submitting call's home
// actor, so the worker below never touches call state directly.
type tag struct {
	ok  bool
	run func(ok bool)
}

// completionQueue multiplexes many in-flight async gRPC operations
// onto a single dedicated worker goroutine: a channel of tags drained
// one at a time. Submission happens from the goroutine that performed
// the blocking gRPC I/O.
type completionQueue struct {
	tags      chan tag
	closed    chan struct{}
	closeOnce sync.Once
}

func newCompletionQueue() *completionQueue {
	return &completionQueue{tags: make(chan tag), closed: make(chan struct{})}
}

// submit posts a tag to the queue. It never blocks past shutdown.
func (q *completionQueue) submit(t tag) {
	select {
	case q.tags <- t:
	case <-q.closed:
	}
}

// shutdown stops accepting tags and unblocks run. It does not touch
// calls itself: Channel.Shutdown aborts every wired call before
// calling it.
func (q *completionQueue) shutdown() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// run is the dedicated worker loop: it decodes a tag into its bound
// continuation and hands control back to the originating call for
// execution on the call's home actor. It does not own or mutate call
// state directly.
func (q *completionQueue) run(onShutdown func()) {
	for {
		select {
		case t := <-q.tags:
			t.run(t.ok)
		case <-q.closed:
			if onShutdown != nil {
				onShutdown()
			}
			return
		}
	}
}
