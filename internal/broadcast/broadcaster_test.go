package broadcast_test

import (
	"testing"
	"time"

	"medisync-backend/internal/broadcast"
)

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := broadcast.New(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Publish("OPD", broadcast.Event{Type: broadcast.PositionUpdate, TicketNumber: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestSubscribeReceivesOwnDepartmentOnly(t *testing.T) {
	b := broadcast.New(4)

	opd, cancelOPD := b.Subscribe("OPD")
	defer cancelOPD()
	cardio, cancelCardio := b.Subscribe("Cardiology")
	defer cancelCardio()

	b.Publish("OPD", broadcast.Event{Type: broadcast.PositionUpdate, TicketNumber: 7})

	select {
	case ev := <-opd:
		if ev.Department != "OPD" || ev.TicketNumber != 7 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("OPD subscriber got nothing")
	}

	select {
	case ev := <-cardio:
		t.Fatalf("Cardiology subscriber got OPD event: %+v", ev)
	default:
	}
}

func TestSlowSubscriberDropsEventsInsteadOfBlocking(t *testing.T) {
	b := broadcast.New(2)

	events, cancel := b.Subscribe("OPD")
	defer cancel()

	// Fill the buffer and keep publishing; extra events are dropped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish("OPD", broadcast.Event{Type: broadcast.StatusUpdate, TicketNumber: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	if got := len(events); got != 2 {
		t.Fatalf("buffered %d events, want 2", got)
	}
}

func TestCancelClosesChannelAndStopsDelivery(t *testing.T) {
	b := broadcast.New(4)

	events, cancel := b.Subscribe("OPD")
	cancel()
	cancel() // second cancel is a no-op

	if _, open := <-events; open {
		t.Fatal("channel must be closed after cancel")
	}
	if n := b.SubscriberCount("OPD"); n != 0 {
		t.Fatalf("subscriber count = %d after cancel", n)
	}

	// Publishing after cancel must not panic.
	b.Publish("OPD", broadcast.Event{Type: broadcast.PositionUpdate})
}

func TestCloseShutsDownAllSubscribers(t *testing.T) {
	b := broadcast.New(4)

	opd, cancelOPD := b.Subscribe("OPD")
	defer cancelOPD()

	b.Close()

	if _, open := <-opd; open {
		t.Fatal("channel must be closed after Close")
	}

	// Subsequent operations are no-ops.
	b.Publish("OPD", broadcast.Event{Type: broadcast.PositionUpdate})
	late, cancelLate := b.Subscribe("OPD")
	defer cancelLate()
	if _, open := <-late; open {
		t.Fatal("subscribing after Close must return a closed channel")
	}
}
