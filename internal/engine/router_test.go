package engine

import (
	"context"
	"testing"
	"time"
)

func TestRouterDispatchByType(t *testing.T) {
	r := NewRouter()
	var got []string
	r.Register("a", func(env Envelope) { got = append(got, "a") })
	r.Register("b", func(env Envelope) { got = append(got, "b") })

	for _, frame := range []string{`{"type":"a"}`, `{"type":"b"}`, `{"type":"a"}`} {
		env, err := DecodeEnvelope([]byte(frame))
		if err != nil {
			t.Fatalf("DecodeEnvelope(%s): %v", frame, err)
		}
		r.Dispatch(env)
	}

	want := []string{"a", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatched %v, want %v", got, want)
		}
	}
}

func TestRouterUnknownTypeIgnored(t *testing.T) {
	r := NewRouter()
	called := false
	r.Register("known", func(env Envelope) { called = true })

	env, err := DecodeEnvelope([]byte(`{"type":"mystery"}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	r.Dispatch(env)

	if called {
		t.Error("unknown type reached a handler")
	}
}

func TestRouterPanickingHandlerContained(t *testing.T) {
	r := NewRouter()
	r.Register("boom", func(env Envelope) { panic("handler bug") })
	survived := false
	r.Register("next", func(env Envelope) { survived = true })

	boom, _ := DecodeEnvelope([]byte(`{"type":"boom"}`))
	next, _ := DecodeEnvelope([]byte(`{"type":"next"}`))
	r.Dispatch(boom)
	r.Dispatch(next)

	if !survived {
		t.Error("dispatch loop did not survive a panicking handler")
	}
}

func TestRouterReRegisterReplaces(t *testing.T) {
	r := NewRouter()
	var last string
	r.Register("x", func(env Envelope) { last = "old" })
	r.Register("x", func(env Envelope) { last = "new" })

	env, _ := DecodeEnvelope([]byte(`{"type":"x"}`))
	r.Dispatch(env)

	if last != "new" {
		t.Errorf("handler = %q, want new", last)
	}
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	tests := []string{
		`not json`,
		`{"no_type":"here"}`,
		`{"type":""}`,
		`[]`,
	}
	for _, frame := range tests {
		if _, err := DecodeEnvelope([]byte(frame)); err == nil {
			t.Errorf("DecodeEnvelope(%q) accepted a malformed frame", frame)
		}
	}
}

func TestRouterRunDrainsUntilClose(t *testing.T) {
	r := NewRouter()
	seen := 0
	r.Register("tick", func(env Envelope) { seen++ })

	ch := NewLoopbackChannel()
	done := make(chan struct{})
	go func() {
		r.Run(context.Background(), ch)
		close(done)
	}()

	type tick struct {
		Type string `json:"type"`
	}
	ch.Send(tick{Type: "tick"})
	ch.Send(tick{Type: "tick"})
	ch.Send(tick{Type: "tick"})
	time.Sleep(50 * time.Millisecond)
	ch.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if seen != 3 {
		t.Errorf("handled %d frames, want 3", seen)
	}
}
