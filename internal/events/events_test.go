package events

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestFanout(t *testing.T) {
	var a, b Recorder
	f := Fanout{&a, Discard{}, &b}
	f.Publish(context.Background(), Event{Type: TradeExecuted, MarketID: "m1"})

	for name, r := range map[string]*Recorder{"a": &a, "b": &b} {
		got := r.Events()
		if len(got) != 1 || got[0].MarketID != "m1" {
			t.Errorf("%s: unexpected events %+v", name, got)
		}
	}
}

func TestRecorder_EventsIsCopy(t *testing.T) {
	var r Recorder
	r.Publish(context.Background(), Event{Type: MarketCreated})
	got := r.Events()
	got[0].Type = MarketResolved
	if r.Events()[0].Type != MarketCreated {
		t.Error("Events must return a copy")
	}
}

func TestRedisBus_PublishFailureDoesNotPanic(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	bus := NewRedisBus(rdb, "")
	if bus.channel != DefaultChannel {
		t.Errorf("expected default channel, got %q", bus.channel)
	}
	bus.Publish(context.Background(), Event{Type: TradeExecuted})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := bus.Relay(ctx, Discard{}); err == nil {
		t.Error("expected subscribe error from an unreachable server")
	}
}
