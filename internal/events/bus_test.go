package events

import "testing"

func TestBus_PublishDeliversInOrder(t *testing.T) {
	b := NewBus[string]()
	var got []string
	b.Subscribe(func(s string) { got = append(got, "a:"+s) })
	b.Subscribe(func(s string) { got = append(got, "b:"+s) })

	b.Publish("x")

	if len(got) != 2 || got[0] != "a:x" || got[1] != "b:x" {
		t.Errorf("expected [a:x b:x], got %v", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus[int]()
	calls := 0
	off := b.Subscribe(func(int) { calls++ })
	b.Publish(1)
	off()
	off()
	b.Publish(2)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if b.Len() != 0 {
		t.Errorf("expected no subscribers, got %d", b.Len())
	}
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	b := NewBus[int]()
	var off func()
	calls := 0
	off = b.Subscribe(func(int) {
		calls++
		off()
	})
	b.Publish(1)
	b.Publish(2)
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestGroup_Close(t *testing.T) {
	b := NewBus[int]()
	var g Group
	g.Add(b.Subscribe(func(int) {}))
	g.Add(b.Subscribe(func(int) {}))

	g.Close()
	g.Close()

	if b.Len() != 0 {
		t.Errorf("expected no subscribers, got %d", b.Len())
	}
}
