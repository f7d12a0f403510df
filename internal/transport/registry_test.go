package transport

import (
	"context"
	"testing"
)

type stubSink struct{ ch string }

func (s *stubSink) Channel() string { return s.ch }
func (s *stubSink) Send(context.Context, Address, string, *Rich) ([]MessageRef, error) {
	return nil, nil
}

type stubEditorSink struct{ stubSink }

func (s *stubEditorSink) Edit(context.Context, MessageRef, string, *Rich) error { return nil }

func TestRegistryLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(&stubSink{ch: "discord"})
	r.Register(&stubEditorSink{stubSink{ch: "telegram"}})

	if _, ok := r.Sink("discord"); !ok {
		t.Fatal("discord sink not found")
	}
	if _, ok := r.Sink("matrix"); ok {
		t.Fatal("unknown channel found")
	}

	if _, ok := r.Editor("telegram"); !ok {
		t.Fatal("telegram editor not found")
	}
	if _, ok := r.Editor("discord"); ok {
		t.Fatal("send-only sink reported as editor")
	}

	r.Unregister("discord")
	if _, ok := r.Sink("discord"); ok {
		t.Fatal("unregistered sink still found")
	}
}
