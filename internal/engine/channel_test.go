package engine

import (
	"sync"
	"testing"
)

func TestLoopbackChannelCloseDuringSends(t *testing.T) {
	ch := NewLoopbackChannel()

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				ch.Send(ChatOut{Type: TypeChat, Content: "burst"})
			}
		}()
	}
	close(start)
	ch.Close()
	wg.Wait()

	// 1600 sends against a 256-slot queue that closed mid-burst:
	// every frame either landed before the close or was dropped, and
	// none may panic on the closed queue.
	if got := ch.Dropped(); got == 0 {
		t.Error("expected dropped frames after closing under load")
	}
}

func TestLoopbackChannelSendAfterCloseDropped(t *testing.T) {
	ch := NewLoopbackChannel()
	ch.Close()

	ch.Send(ChatOut{Type: TypeChat, Content: "late"})

	if got := ch.Dropped(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
	if _, ok := <-ch.Inbound(); ok {
		t.Error("inbound delivered a frame after close")
	}
}
