package backend

import (
	"context"
	"testing"
	"time"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/events"
)

func TestBroadcaster_Subscribe_ReceivesAll(t *testing.T) {
	upstream := make(chan events.Event, 4)
	b := NewBroadcaster(context.Background(), upstream)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	upstream <- events.Event{Type: events.TypeGatewayState}
	upstream <- events.Event{Type: events.TypeSoundState}

	for _, want := range []string{events.TypeGatewayState, events.TypeSoundState} {
		select {
		case got := <-ch:
			if got.Type != want {
				t.Errorf("got %s, want %s", got.Type, want)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestBroadcaster_SubscribeFunc_FiltersEvents(t *testing.T) {
	upstream := make(chan events.Event, 4)
	b := NewBroadcaster(context.Background(), upstream)

	filter := func(e events.Event) bool { return e.Type == events.TypeGatewayRing }
	ch := b.SubscribeFunc(filter)
	defer b.Unsubscribe(ch)

	// Send one matching and one non-matching event.
	upstream <- events.Event{Type: events.TypeGatewayRing}
	upstream <- events.Event{Type: events.TypeSoundSkew}

	select {
	case got := <-ch:
		if got.Type != events.TypeGatewayRing {
			t.Errorf("got %s, want %s", got.Type, events.TypeGatewayRing)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for ag.ring event")
	}

	select {
	case got := <-ch:
		t.Errorf("unexpected event %s delivered through filter", got.Type)
	case <-time.After(30 * time.Millisecond):
		// expected: nothing received
	}
}

func TestBroadcaster_SubscribeFunc_NilFilterPassesAll(t *testing.T) {
	upstream := make(chan events.Event, 4)
	b := NewBroadcaster(context.Background(), upstream)

	ch := b.SubscribeFunc(nil)
	defer b.Unsubscribe(ch)

	upstream <- events.Event{Type: events.TypeInquiryResult}

	select {
	case got := <-ch:
		if got.Type != events.TypeInquiryResult {
			t.Errorf("got %s, want %s", got.Type, events.TypeInquiryResult)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for inquiry.result event")
	}
}

func TestBroadcaster_PayloadFlowsThrough(t *testing.T) {
	upstream := make(chan events.Event, 4)
	b := NewBroadcaster(context.Background(), upstream)

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	upstream <- events.Event{Type: events.TypeGatewayRing, Data: hfp.RingEvent{CallerID: "+15551234"}}

	select {
	case got := <-ch:
		data, ok := got.Data.(hfp.RingEvent)
		if !ok {
			t.Fatalf("data is %T, want RingEvent", got.Data)
		}
		if data.CallerID != "+15551234" {
			t.Errorf("data.CallerID = %q, want %q", data.CallerID, "+15551234")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for ag.ring event")
	}
}

func TestBroadcaster_UnsubscribeTwice(t *testing.T) {
	b := NewBroadcaster(context.Background(), make(chan events.Event))
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	// must not panic on a closed channel
	b.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
}

func TestBroadcaster_MultipleSubscribersIndependentFilters(t *testing.T) {
	upstream := make(chan events.Event, 8)
	b := NewBroadcaster(context.Background(), upstream)

	allCh := b.Subscribe()
	defer b.Unsubscribe(allCh)

	soundOnly := b.SubscribeFunc(events.FilterSource([]string{"soundio"}))
	defer b.Unsubscribe(soundOnly)

	upstream <- events.Event{Type: events.TypeSoundMute}
	upstream <- events.Event{Type: events.TypeGatewayAudio}

	for _, want := range []string{events.TypeSoundMute, events.TypeGatewayAudio} {
		select {
		case got := <-allCh:
			if got.Type != want {
				t.Errorf("allCh: got %s, want %s", got.Type, want)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("allCh: timed out waiting for %s", want)
		}
	}

	select {
	case got := <-soundOnly:
		if got.Type != events.TypeSoundMute {
			t.Errorf("soundOnly: got %s, want %s", got.Type, events.TypeSoundMute)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("soundOnly: timed out waiting for soundio.mute")
	}

	select {
	case got := <-soundOnly:
		t.Errorf("soundOnly: unexpected event %s", got.Type)
	case <-time.After(30 * time.Millisecond):
		// expected: nothing
	}
}
