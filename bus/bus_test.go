package bus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDispatchRunsHandlersInRegistrationOrder(t *testing.T) {
	b := New(nil)
	var order []string

	if err := b.On("TestEvent", "first", func(ctx context.Context, ev *Event) error {
		order = append(order, "first")
		return nil
	}); err != nil {
		t.Fatalf("On(first): %v", err)
	}
	if err := b.On("TestEvent", "second", func(ctx context.Context, ev *Event) error {
		order = append(order, "second")
		return nil
	}); err != nil {
		t.Fatalf("On(second): %v", err)
	}

	ev := NewEvent("TestEvent", nil, "", time.Second)
	result := b.Dispatch(context.Background(), ev)

	if len(result.HandlerResults) != b.HandlerCount("TestEvent") {
		t.Fatalf("handler result count = %d, want %d", len(result.HandlerResults), b.HandlerCount("TestEvent"))
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("handlers ran out of registration order: %v", order)
	}
}

func TestDispatchCollectsErrorsWithoutStoppingSiblings(t *testing.T) {
	b := New(nil)
	boom := errors.New("boom")
	ran := false

	_ = b.On("TestEvent", "failing", func(ctx context.Context, ev *Event) error { return boom })
	_ = b.On("TestEvent", "after", func(ctx context.Context, ev *Event) error {
		ran = true
		return nil
	})

	ev := NewEvent("TestEvent", nil, "", time.Second)
	result := b.Dispatch(context.Background(), ev)

	if !ran {
		t.Fatal("sibling handler did not run after a prior handler errored")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("want 1 aggregated error, got %d", len(result.Errors))
	}
}

func TestOnRejectsSubstringCollidingEventNames(t *testing.T) {
	b := New(nil)
	if err := b.On("NavigateToUrl", "h1", func(context.Context, *Event) error { return nil }); err != nil {
		t.Fatalf("On(NavigateToUrl): %v", err)
	}
	if err := b.On("NavigateToUrlEvent", "h2", func(context.Context, *Event) error { return nil }); err == nil {
		t.Fatal("expected collision error for substring-overlapping event class name")
	}
}

func TestDispatchTimesOutSlowHandler(t *testing.T) {
	b := New(nil)
	_ = b.On("SlowEvent", "slow", func(ctx context.Context, ev *Event) error {
		select {
		case <-time.After(50 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	ev := NewEvent("SlowEvent", nil, "", 5*time.Millisecond)
	result := b.Dispatch(context.Background(), ev)

	if len(result.Errors) != 1 {
		t.Fatalf("want 1 timeout error, got %d", len(result.Errors))
	}
}

func TestDispatchOrThrowAggregatesAllErrors(t *testing.T) {
	b := New(nil)
	_ = b.On("TestEvent", "a", func(context.Context, *Event) error { return errors.New("first failure") })
	_ = b.On("TestEvent", "b", func(context.Context, *Event) error { return errors.New("second failure") })

	ev := NewEvent("TestEvent", nil, "", time.Second)
	_, err := b.DispatchOrThrow(context.Background(), ev)
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "first failure") || !strings.Contains(msg, "second failure") {
		t.Fatalf("expected aggregated error to mention both handler failures, got: %s", msg)
	}
}
