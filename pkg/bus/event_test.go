package bus

import (
	"context"
	"strings"
	"testing"

	"github.com/zmlAEQ/pingburst/pkg/metrics"
)

func TestPublish_DropsOnBackpressure(t *testing.T) {
	metrics.Reset()
	b := New(1)
	b.Publish(context.Background(), Event{Kind: KindRound, Round: 1})
	b.Publish(context.Background(), Event{Kind: KindConfirmed, Index: 0})
	ev := <-b.Subscribe()
	if ev.Kind != KindRound {
		t.Fatalf("want first event kept, got %v", ev.Kind)
	}
	if !strings.Contains(metrics.DumpProm(), "bus_dropped_total 1") {
		t.Fatalf("want drop metric")
	}
}

func TestPublish_NilBus(t *testing.T) {
	var b *Bus
	b.Publish(context.Background(), Event{Kind: KindFailed})
}
