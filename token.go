package mq

import (
	"context"
	"sync"
)

// Token represents an asynchronous operation that can be waited on.
//
// Tokens are returned by Publish, Subscribe, and Unsubscribe operations.
// They provide both blocking (Wait) and non-blocking (Done + Error) patterns
// for handling operation completion.
//
// Example (blocking wait):
//
//	token := client.Publish("topic", []byte("data"), mq.WithQoS(1))
//	if err := token.Wait(context.Background()); err != nil {
//	    log.Printf("Operation failed: %v", err)
//	}
//
// Example (non-blocking with select):
//
//	token := client.Publish("topic", []byte("data"), mq.WithQoS(1))
//	select {
//	case <-token.Done():
//	    if err := token.Error(); err != nil {
//	        log.Printf("Failed: %v", err)
//	    }
//	case <-time.After(5 * time.Second):
//	    log.Println("Timeout")
//	}
//
// Example (with context timeout):
//
//	token := client.Subscribe("topic", 1, handler)
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	if err := token.Wait(ctx); err != nil {
//	    log.Printf("Subscribe failed or timed out: %v", err)
//	}
type Token interface {
	// Wait blocks until the operation completes or the context is cancelled.
	// It returns nil if successful, or the error (timeout/nack/connection loss).
	Wait(ctx context.Context) error

	// Done returns a channel that closes when the operation is complete.
	// This allows the token to be used in select statements.
	Done() <-chan struct{}

	// Error returns the error if finished, mostly for use with Done().
	Error() error

	// Dropped reports whether a QoS 0 publish was silently discarded because
	// the outgoing queue was full and the client's QoS0 policy is to drop
	// rather than block. Always false for QoS 1/2 operations.
	Dropped() bool
}

// SubscribeResult carries the broker's per-filter outcome for one topic
// filter in a subscribe request, as reported in the SUBACK return codes.
type SubscribeResult struct {
	Filter     string
	ReturnCode uint8
}

// SubscribeToken is a Token returned by SubscribeMultiple. In addition to
// the usual completion semantics, Results reports the broker's granted QoS
// (or failure code) for each requested filter, in request order.
type SubscribeToken interface {
	Token

	// Results returns the per-filter outcome once the token is complete.
	// It is nil until the SUBACK arrives.
	Results() []SubscribeResult
}

// token is the internal implementation of Token and SubscribeToken.
type token struct {
	done             chan struct{}
	err              error
	once             sync.Once
	dropped          bool
	subscribeResults []SubscribeResult
}

// newToken creates a new token.
func newToken() *token {
	return &token{
		done: make(chan struct{}),
	}
}

// Wait blocks until the operation completes or the context is cancelled.
func (t *token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel that closes when the operation is complete.
func (t *token) Done() <-chan struct{} {
	return t.done
}

// Error returns the error if the operation has completed.
func (t *token) Error() error {
	return t.err
}

// Dropped reports whether the publish was discarded instead of sent.
func (t *token) Dropped() bool {
	return t.dropped
}

// complete marks the token as complete with the given error.
// This can only be called once; subsequent calls are ignored.
func (t *token) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// completeDropped marks the token as complete and dropped (QoS 0 discarded
// due to a full outgoing queue under the drop policy).
func (t *token) completeDropped() {
	t.once.Do(func() {
		t.dropped = true
		close(t.done)
	})
}

// Results returns the per-filter SUBACK outcome, set by completeSubscribe.
func (t *token) Results() []SubscribeResult {
	return t.subscribeResults
}

// completeSubscribe marks the token as complete with the given error and
// records the per-filter results reported in the SUBACK.
func (t *token) completeSubscribe(err error, results []SubscribeResult) {
	t.once.Do(func() {
		t.err = err
		t.subscribeResults = results
		close(t.done)
	})
}
