package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okSink(name string, calls *atomic.Int32) funcSink {
	return funcSink{name: name, fn: func(context.Context, Event) error {
		calls.Add(1)
		return nil
	}}
}

func TestDispatch_AllSinksDelivered(t *testing.T) {
	var trap, mail atomic.Int32
	d := NewDispatcher([]Sink{okSink("trap", &trap), okSink("mail", &mail)})

	out := d.Dispatch(context.Background(), testEvent())

	assert.Equal(t, "alert-test-0001", out.EventID)
	assert.Equal(t, 2, out.Delivered())
	assert.EqualValues(t, 1, trap.Load())
	assert.EqualValues(t, 1, mail.Load())
	require.Len(t, out.Results, 2)
	assert.Equal(t, "trap", out.Results[0].Sink)
	assert.Equal(t, "mail", out.Results[1].Sink)
}

func TestDispatch_FailureIsIsolated(t *testing.T) {
	var mail atomic.Int32
	boom := errors.New("connection refused")
	failing := funcSink{name: "trap", fn: func(context.Context, Event) error { return boom }}

	d := NewDispatcher([]Sink{failing, okSink("mail", &mail)})
	out := d.Dispatch(context.Background(), testEvent())

	assert.EqualValues(t, 1, mail.Load())
	assert.Equal(t, 1, out.Delivered())

	r := resultFor(t, out, "trap")
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, boom)
}

func TestDispatch_PanicIsIsolated(t *testing.T) {
	var mail atomic.Int32
	panicky := funcSink{name: "trap", fn: func(context.Context, Event) error { panic("nil map") }}

	d := NewDispatcher([]Sink{panicky, okSink("mail", &mail)})
	out := d.Dispatch(context.Background(), testEvent())

	assert.EqualValues(t, 1, mail.Load())
	r := resultFor(t, out, "trap")
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorContains(t, r.Err, "panicked")
}

func TestDispatch_SinkTimeout(t *testing.T) {
	var mail atomic.Int32
	slow := funcSink{name: "trap", fn: func(ctx context.Context, _ Event) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	d := NewDispatcher([]Sink{slow, okSink("mail", &mail)}, WithTimeout(20*time.Millisecond))
	out := d.Dispatch(context.Background(), testEvent())

	r := resultFor(t, out, "trap")
	assert.Equal(t, StatusFailed, r.Status)
	assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
	assert.Equal(t, 1, out.Delivered())
}

func TestDispatch_CancelAbandonsPending(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := funcSink{name: "mail", fn: func(context.Context, Event) error {
		<-release
		return nil
	}}
	var trap atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher([]Sink{okSink("trap", &trap), stuck})

	done := make(chan Outcome)
	go func() { done <- d.Dispatch(ctx, testEvent()) }()

	require.Eventually(t, func() bool { return trap.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case out := <-done:
		r := resultFor(t, out, "mail")
		assert.Equal(t, StatusAbandoned, r.Status)
		assert.ErrorIs(t, r.Err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after cancel")
	}
}

func TestDispatch_RecordsAndObserves(t *testing.T) {
	var trap atomic.Int32
	rec := &memRecorder{}
	obs := &statusObserver{}
	failing := funcSink{name: "mail", fn: func(context.Context, Event) error { return errors.New("421") }}

	d := NewDispatcher([]Sink{okSink("trap", &trap), failing}, WithRecorder(rec), WithObserver(obs))
	d.Dispatch(context.Background(), testEvent())

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, "alert-test-0001", rec.events[0].ID)
	assert.Equal(t, 1, rec.outcomes[0].Delivered())
	assert.Equal(t, map[string]string{"trap": StatusDelivered, "mail": StatusFailed}, obs.seen)
}

func TestDispatch_NoSinks(t *testing.T) {
	rec := &memRecorder{}
	out := NewDispatcher(nil, WithRecorder(rec)).Dispatch(context.Background(), testEvent())

	assert.Empty(t, out.Results)
	assert.Len(t, rec.outcomes, 1)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
