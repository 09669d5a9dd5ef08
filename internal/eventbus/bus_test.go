package eventbus

import "testing"

func TestPublishFanOutAndDrop(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeFeedCycle, Data: 1})
	b.Publish(Event{Type: TypeFeedCycle, Data: 2}) // dropped for a (buffer 1)

	if e := <-a; e.Data != 1 || e.Time.IsZero() {
		t.Fatalf("a got %+v", e)
	}
	if len(c) != 2 {
		t.Fatalf("c buffered=%d want 2", len(c))
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatalf("a should be closed")
	}
	b.Publish(Event{Type: TypeAlertFired})
}

func TestNopBus(t *testing.T) {
	t.Parallel()

	b := Nop()
	b.Publish(Event{Type: TypeDigestSent})
	ch, unsub := b.Subscribe(1)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("nop channel should be closed")
	}
}
