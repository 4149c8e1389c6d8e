package nvr

import "testing"

func TestFrameQueuePushDropsOldestOnOverflow(t *testing.T) {
	q := NewFrameQueue()
	f1 := &Frame{Width: 1}
	f2 := &Frame{Width: 2}
	f3 := &Frame{Width: 3}

	q.Push(f1)
	q.Push(f2)
	q.Push(f3) // capacity 2, f1 should be dropped

	if got := q.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	first, ok := q.TryPop()
	if !ok || first.Width != 2 {
		t.Fatalf("TryPop() = %+v, want frame with Width=2", first)
	}
	second, ok := q.TryPop()
	if !ok || second.Width != 3 {
		t.Fatalf("TryPop() = %+v, want frame with Width=3", second)
	}
}

func TestFrameQueueTryPopEmpty(t *testing.T) {
	q := NewFrameQueue()
	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop() on empty queue returned ok=true")
	}
}

func TestFrameQueueReadySignalsOnPush(t *testing.T) {
	q := NewFrameQueue()
	q.Push(&Frame{})

	select {
	case <-q.Ready():
	default:
		t.Fatal("Ready() channel did not signal after Push")
	}
}
