package stream

import (
	"testing"
)

func TestEventRing_FIFO(t *testing.T) {
	r := newEventRing(0)

	for _, text := range []string{"a", "b", "c"} {
		r.Push(Token(text))
	}
	if r.Len() != 3 {
		t.Errorf("Expected length 3, got %d", r.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		e, ok := r.Pop()
		if !ok || e.Text != want {
			t.Errorf("Expected %s, got %+v", want, e)
		}
	}

	if _, ok := r.Pop(); ok {
		t.Error("Expected empty ring")
	}
}

func TestEventRing_GrowsWhenFull(t *testing.T) {
	r := newEventRing(minRingCapacity)

	// Wrap the read index before growing
	for i := 0; i < 5; i++ {
		r.Push(Token("x"))
		r.Pop()
	}

	total := minRingCapacity*2 + 3
	for i := 0; i < total; i++ {
		r.Push(Token(string(rune('a' + i%26))))
	}
	if r.Len() != total {
		t.Fatalf("Expected length %d, got %d", total, r.Len())
	}
	if r.Cap() < total {
		t.Errorf("Expected capacity >= %d, got %d", total, r.Cap())
	}

	for i := 0; i < total; i++ {
		e, _ := r.Pop()
		if want := string(rune('a' + i%26)); e.Text != want {
			t.Fatalf("Position %d: expected %s, got %s", i, want, e.Text)
		}
	}
}

func TestEventRing_Clear(t *testing.T) {
	r := newEventRing(4)
	r.Push(Token("a"))
	r.Push(Token("b"))

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Expected length 0 after clear, got %d", r.Len())
	}
	r.Push(Token("c"))
	if e, _ := r.Pop(); e.Text != "c" {
		t.Errorf("Expected c after clear, got %s", e.Text)
	}
}
