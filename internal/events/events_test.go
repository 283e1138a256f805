package events

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBusTypedHandlers(t *testing.T) {
	b := NewBus(newTestLogger())
	var got NormalizedStateUpdated
	var warnings atomic.Int32

	b.OnState(func(e NormalizedStateUpdated) { got = e })
	b.OnWarning(func(Warning) { warnings.Add(1) })

	b.Emit(NormalizedStateUpdated{DeviceID: "1"})
	b.Emit(RawPairUpdated{DeviceID: "1"})

	if got.DeviceID != "1" {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, "1")
	}
	if warnings.Load() != 0 {
		t.Error("warning handler called for other kinds")
	}
}

func TestBusOnAll(t *testing.T) {
	b := NewBus(newTestLogger())
	var count atomic.Int32

	b.OnAll(func(Event) { count.Add(1) })

	b.Emit(NormalizedStateUpdated{})
	b.Emit(RawPairUpdated{})
	b.Emit(Warning{})
	b.Emit(DebugTrace{})

	if count.Load() != 4 {
		t.Errorf("onAll called %d times, want 4", count.Load())
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus(newTestLogger())
	var count atomic.Int32

	unsub := b.On(KindWarning, func(Event) { count.Add(1) })

	b.Emit(Warning{})
	if count.Load() != 1 {
		t.Fatalf("expected 1 call before unsub, got %d", count.Load())
	}

	unsub()
	b.Emit(Warning{})
	if count.Load() != 1 {
		t.Errorf("expected 1 call after unsub, got %d", count.Load())
	}
}

func TestBusPanicRecovery(t *testing.T) {
	b := NewBus(newTestLogger())
	var called atomic.Int32

	b.On(KindRawPair, func(Event) {
		called.Add(1)
		panic("test panic")
	})
	b.On(KindRawPair, func(Event) {
		called.Add(1)
	})

	b.Emit(RawPairUpdated{})

	if c := called.Load(); c != 2 {
		t.Errorf("expected 2 handlers called, got %d", c)
	}
}

func TestBusConcurrentEmit(t *testing.T) {
	b := NewBus(newTestLogger())
	var count atomic.Int32

	b.OnAll(func(Event) { count.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Emit(DebugTrace{})
		}()
	}
	wg.Wait()

	if count.Load() != 100 {
		t.Errorf("got %d, want 100", count.Load())
	}
}

func TestEnvelopeJSON(t *testing.T) {
	data, err := json.Marshal(Wrap(Warning{DeviceID: "7", Message: "read failed", Err: errors.New("boom")}))
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, `"type":"warning"`) || !strings.Contains(s, `"device_id":"7"`) {
		t.Errorf("envelope = %s", s)
	}
	if strings.Contains(s, "boom") {
		t.Errorf("error value leaked into JSON: %s", s)
	}
}

func TestWarningError(t *testing.T) {
	w := Warning{Message: "write", Err: errors.New("timeout")}
	if w.Error() != "write: timeout" {
		t.Errorf("Error() = %q", w.Error())
	}
}
