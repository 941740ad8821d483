package chatmodel

import (
	"context"
	"testing"
)

type fakeModel struct {
	completion *Completion
	err        error
	lastMsgs   []Message
}

func (f *fakeModel) Invoke(ctx context.Context, messages []Message, opts InvokeOptions) (*Completion, error) {
	f.lastMsgs = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func TestCompleteWrapsSingleUserMessage(t *testing.T) {
	fm := &fakeModel{completion: &Completion{Text: "hello"}}
	text, err := Complete(context.Background(), fm, "say hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("got %q, want %q", text, "hello")
	}
	if len(fm.lastMsgs) != 1 || fm.lastMsgs[0].Role != RoleUser {
		t.Fatalf("expected a single user message, got %+v", fm.lastMsgs)
	}
}

func TestCompletePropagatesProviderError(t *testing.T) {
	fm := &fakeModel{err: &ModelProviderError{Message: "down", StatusCode: 503}}
	_, err := Complete(context.Background(), fm, "say hi")
	if err == nil {
		t.Fatal("expected an error")
	}
	var perr *ModelProviderError
	if !asProviderError(err, &perr) {
		t.Fatalf("expected ModelProviderError, got %T", err)
	}
}

func asProviderError(err error, target **ModelProviderError) bool {
	pe, ok := err.(*ModelProviderError)
	if ok {
		*target = pe
	}
	return ok
}
