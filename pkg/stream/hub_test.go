package stream

import "testing"

func TestPublishDeliversToSubscribers(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("t")
	defer sub.Cancel()

	h.Publish("t", "snap")
	select {
	case v := <-sub.C:
		if v != "snap" {
			t.Fatalf("unexpected value: %v", v)
		}
	default:
		t.Fatalf("nothing delivered")
	}
}

func TestPublishLatestWins(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("t")
	defer sub.Cancel()

	h.Publish("t", 1)
	h.Publish("t", 2)
	h.Publish("t", 3)

	select {
	case v := <-sub.C:
		if v != 3 {
			t.Fatalf("expected newest snapshot, got %v", v)
		}
	default:
		t.Fatalf("nothing delivered")
	}
	select {
	case v := <-sub.C:
		t.Fatalf("stale snapshot delivered: %v", v)
	default:
	}
}

func TestCancelClosesAndDetaches(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("t")
	if n := h.Subscribers("t"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	sub.Cancel()
	sub.Cancel() // safe twice
	if n := h.Subscribers("t"); n != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", n)
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("channel should be closed")
	}
	// publishing to a canceled sub must not panic
	h.Publish("t", "x")
}

func TestTopicsAreIndependent(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("a")
	b := h.Subscribe("b")
	defer a.Cancel()
	defer b.Cancel()

	h.Publish("a", "only-a")
	select {
	case v := <-b.C:
		t.Fatalf("cross-topic delivery: %v", v)
	default:
	}
	if v := <-a.C; v != "only-a" {
		t.Fatalf("unexpected value: %v", v)
	}
}
