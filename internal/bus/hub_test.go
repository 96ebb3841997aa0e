package bus

import "testing"

func TestHubPublishOrder(t *testing.T) {
	h := NewHub[int]()

	var got []int
	h.Subscribe(func(v int) { got = append(got, v*10) })
	h.Subscribe(func(v int) { got = append(got, v*100) })

	h.Publish(1)
	h.Publish(2)

	want := []int{10, 100, 20, 200}
	if len(got) != len(want) {
		t.Fatalf("notification count mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("notification order mismatch: got %v want %v", got, want)
		}
	}
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	h := NewHub[string]()

	var calls int
	unsub := h.Subscribe(func(string) { calls++ })

	h.Publish("a")
	unsub()
	unsub()
	h.Publish("b")

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if h.Len() != 0 {
		t.Fatalf("expected empty hub, got %d subscribers", h.Len())
	}
}

func TestHubUnsubscribeMidDispatch(t *testing.T) {
	h := NewHub[int]()

	var unsubSecond func()
	var secondCalls int

	h.Subscribe(func(int) { unsubSecond() })
	unsubSecond = h.Subscribe(func(int) { secondCalls++ })

	// The list is snapshotted before dispatch: the second handler still runs
	// for this publish, then never again.
	h.Publish(1)
	h.Publish(2)

	if secondCalls != 1 {
		t.Fatalf("expected 1 call on the removed subscriber, got %d", secondCalls)
	}
}
