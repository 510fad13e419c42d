package changefeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHub_initialLoadAndPublish(t *testing.T) {
	hub := NewHub(testLogger(), time.Second)
	defer hub.Close()

	var calls atomic.Int32
	sub := hub.Subscribe("invites", func(ctx context.Context, s *Subscription) error {
		calls.Add(1)
		return nil
	})
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish("invites")
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	before := calls.Load()
	hub.Publish("events")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, calls.Load(), "other collections must not trigger a reload")
}

func TestHub_unsubscribeStopsCallbacks(t *testing.T) {
	hub := NewHub(testLogger(), time.Second)
	defer hub.Close()

	var calls atomic.Int32
	sub := hub.Subscribe("registrations", func(ctx context.Context, s *Subscription) error {
		calls.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	sub.Unsubscribe()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription goroutine did not exit")
	}
	assert.Equal(t, 0, hub.Len())

	hub.Publish("registrations")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, sub.Stopped())
}

func TestHub_unsubscribeFromCallback(t *testing.T) {
	hub := NewHub(testLogger(), time.Second)
	defer hub.Close()

	sub := hub.Subscribe("invites", func(ctx context.Context, s *Subscription) error {
		s.Unsubscribe()
		return nil
	})
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription goroutine did not exit")
	}
}

func TestHub_loadErrorKeepsSubscription(t *testing.T) {
	hub := NewHub(testLogger(), time.Second)
	defer hub.Close()

	var calls atomic.Int32
	sub := hub.Subscribe("events", func(ctx context.Context, s *Subscription) error {
		calls.Add(1)
		return errors.New("store down")
	})
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	hub.Publish("events")
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHub_closeRejectsNewSubscriptions(t *testing.T) {
	hub := NewHub(testLogger(), time.Second)
	first := hub.Subscribe("events", func(ctx context.Context, s *Subscription) error { return nil })
	hub.Close()

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("Close did not stop existing subscription")
	}

	var called atomic.Bool
	late := hub.Subscribe("events", func(ctx context.Context, s *Subscription) error {
		called.Store(true)
		return nil
	})
	<-late.Done()
	assert.True(t, late.Stopped())
	assert.False(t, called.Load())
}
