package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pithecene-io/imagestream/stream"
	"github.com/pithecene-io/imagestream/types"
)

func event(seq uint32) *types.Event {
	ev := types.NewEvent("f", types.KindDone, seq, time.Unix(0, 0))
	ev.Close = &types.CloseHeader{}
	return ev
}

func TestBus_FanOutInOrder(t *testing.T) {
	b := New()
	defer b.Close()

	s1, err := b.Subscribe("a", 8)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	s2, _ := b.Subscribe("b", 8)

	for seq := uint32(1); seq <= 3; seq++ {
		if err := b.Publish(t.Context(), event(seq)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	got := make([][]*types.Event, 2)
	for i, s := range []stream.Subscriber{s1, s2} {
		for want := uint32(1); want <= 3; want++ {
			ev := <-s.Events()
			if ev.CountIn != want {
				t.Errorf("CountIn = %d, want %d", ev.CountIn, want)
			}
			got[i] = append(got[i], ev)
		}
	}
	for i := range got[0] {
		if got[0][i] != got[1][i] {
			t.Errorf("event %d: subscribers got distinct copies, want the published event", i+1)
		}
	}
	if b.Published() != 3 {
		t.Errorf("Published() = %d, want 3", b.Published())
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := New()
	defer b.Close()
	_, _ = b.Subscribe("slow", 1)

	for seq := uint32(1); seq <= 3; seq++ {
		_ = b.Publish(t.Context(), event(seq))
	}

	st, err := b.Stats("slow")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Sent != 1 || st.Dropped != 2 {
		t.Errorf("Stats = %+v, want Sent=1 Dropped=2", st)
	}
}

func TestBus_SubscribeErrors(t *testing.T) {
	b := New()
	_, _ = b.Subscribe("a", 1)
	if _, err := b.Subscribe("a", 1); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("duplicate Subscribe err = %v, want ErrSubscriberExists", err)
	}
	if _, err := b.Stats("missing"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("Stats err = %v, want ErrSubscriberNotFound", err)
	}

	_ = b.Close()
	if _, err := b.Subscribe("b", 1); !errors.Is(err, stream.ErrClosed) {
		t.Errorf("Subscribe after Close err = %v, want ErrClosed", err)
	}
	if err := b.Publish(t.Context(), event(1)); !errors.Is(err, stream.ErrClosed) {
		t.Errorf("Publish after Close err = %v, want ErrClosed", err)
	}
}

func TestBus_CloseClosesSubscribers(t *testing.T) {
	b := New()
	s, _ := b.Subscribe("a", 1)
	other, _ := b.Subscribe("b", 1)

	_ = other.Close()
	if _, ok := <-other.Events(); ok {
		t.Error("closed subscriber channel still open")
	}

	_ = b.Close()
	if _, ok := <-s.Events(); ok {
		t.Error("subscriber channel open after bus Close")
	}
	_ = s.Close()
	_ = b.Close()
}

func TestBus_CanceledContext(t *testing.T) {
	b := New()
	defer b.Close()
	s, _ := b.Subscribe("a", 1)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := b.Publish(ctx, event(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish err = %v, want context.Canceled", err)
	}
	select {
	case <-s.Events():
		t.Error("event delivered despite canceled context")
	default:
	}
}
