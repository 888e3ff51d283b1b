// ABOUTME: Request is the deferred result of an engine operation
// ABOUTME: Completes exactly once; listeners fire in registration order

package idb

import (
	"context"
	"time"
)

// ReadyState of a Request.
type ReadyState int

const (
	Pending ReadyState = iota
	Done
)

func (s ReadyState) String() string {
	if s == Done {
		return "done"
	}
	return "pending"
}

// Request carries the outcome of one operation. Listeners run inside the
// factory turn that completes the request; Done and Await serve callers on
// other goroutines.
type Request struct {
	f      *Factory
	source any
	tx     *Transaction
	op     string

	exec   func() (any, error)
	preset error

	state  ReadyState
	result any
	err    error
	acked  bool

	onSuccess  []func(*Request)
	onError    []func(*Request)
	onComplete []func(*Request)
	done       chan struct{}
}

func newRequest(f *Factory, source any, tx *Transaction, op string) *Request {
	return &Request{f: f, source: source, tx: tx, op: op, done: make(chan struct{})}
}

// Result returns the value the request resolved to, nil while pending or
// after an error.
func (r *Request) Result() any { return r.result }

// Err returns the failure, nil while pending or on success.
func (r *Request) Err() error { return r.err }

func (r *Request) ReadyState() ReadyState { return r.state }

// Source is the *ObjectStore, *Index or *Cursor the request was issued on,
// or nil for open and delete requests.
func (r *Request) Source() any { return r.source }

// Transaction returns the transaction the request belongs to, if any.
func (r *Request) Transaction() *Transaction { return r.tx }

// OnSuccess registers fn to run when the request succeeds.
func (r *Request) OnSuccess(fn func(*Request)) *Request {
	r.onSuccess = append(r.onSuccess, fn)
	return r
}

// OnError registers fn to run when the request fails. Calling
// AcknowledgeError from fn keeps the transaction alive.
func (r *Request) OnError(fn func(*Request)) *Request {
	r.onError = append(r.onError, fn)
	return r
}

// OnComplete registers fn to run after the success or error listeners.
func (r *Request) OnComplete(fn func(*Request)) *Request {
	r.onComplete = append(r.onComplete, fn)
	return r
}

// AcknowledgeError marks the failure as handled so it does not abort the
// transaction.
func (r *Request) AcknowledgeError() {
	r.acked = true
}

// Done is closed once the request has completed.
func (r *Request) Done() <-chan struct{} { return r.done }

// Await blocks until the request completes or ctx ends.
func (r *Request) Await(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.result, r.err
	default:
	}
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete settles the request and runs its listeners. Later calls are
// ignored.
func (r *Request) complete(result any, err error) {
	if r.state == Done {
		return
	}
	r.state = Done
	if err != nil {
		r.err = err
	} else {
		r.result = result
	}
	close(r.done)

	if err != nil {
		for _, fn := range r.onError {
			fn(r)
		}
	} else {
		for _, fn := range r.onSuccess {
			fn(r)
		}
	}
	for _, fn := range r.onComplete {
		fn(r)
	}
}

// execute runs the operation inside its transaction and delivers the
// outcome with the transaction active for follow-up requests.
func (r *Request) execute() {
	start := time.Now()
	res, err := any(nil), r.preset
	if err == nil {
		res, err = r.exec()
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	r.f.metrics.RecordRequest(r.op, status, time.Since(start))

	tx := r.tx
	tx.active = true
	r.complete(res, err)
	if err != nil && !r.acked {
		for _, fn := range tx.onError {
			fn(r)
		}
	}
	tx.active = false

	if err != nil && !r.acked && tx.state == TxActive {
		tx.abort(err)
	}
}
