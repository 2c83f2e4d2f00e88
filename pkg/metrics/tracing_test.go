package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestNoOpTracer(t *testing.T) {
	tracer := NoOpTracer{}
	ctx, end := tracer.StartSpan(context.Background(), "anything")
	if ctx == nil {
		t.Fatal("context must pass through")
	}
	end(nil)
	end(errors.New("double end must not panic"))
}

func TestSimpleTracerRecordsSpans(t *testing.T) {
	tracer := NewSimpleTracer()

	_, end := tracer.StartSpan(context.Background(), "channel.handshake",
		WithSpanKind(SpanKindServer),
		WithAttributes(map[string]interface{}{"role": "guest"}))
	end(nil)

	_, end = tracer.StartSpan(context.Background(), "channel.decrypt")
	end(errors.New("tag mismatch"))

	spans := tracer.Spans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	hs := spans[0]
	if hs.Name != "channel.handshake" || hs.Kind != SpanKindServer {
		t.Errorf("span = %+v", hs)
	}
	if hs.Attributes["role"] != "guest" {
		t.Errorf("attributes = %v", hs.Attributes)
	}
	if hs.Err != nil {
		t.Errorf("successful span carries err %v", hs.Err)
	}
	if hs.EndTime.Before(hs.StartTime) {
		t.Error("span timing inverted")
	}

	if spans[1].Err == nil {
		t.Error("failed span must record its error")
	}
}

func TestSimpleTracerReset(t *testing.T) {
	tracer := NewSimpleTracer()
	_, end := tracer.StartSpan(context.Background(), "x")
	end(nil)

	tracer.Reset()
	if n := len(tracer.Spans()); n != 0 {
		t.Errorf("spans after reset = %d", n)
	}
}

func TestSimpleTracerConcurrent(t *testing.T) {
	tracer := NewSimpleTracer()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, end := tracer.StartSpan(context.Background(), "concurrent")
			end(nil)
		}()
	}
	wg.Wait()

	if n := len(tracer.Spans()); n != 50 {
		t.Errorf("recorded %d spans, want 50", n)
	}
}
