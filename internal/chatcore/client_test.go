package chatcore

import (
	"errors"
	"sync"
	"testing"
)

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	failN  int // fail the next failN sends
}

func (f *fakeSink) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("send failed")
	}
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestClientSetNameValidation(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"ab", false},                                  // too short
		{"abcdefghijklmnopqrstuvwxyzabcde", false},      // 31 chars
		{"Alice-01", true},
		{"Bad!", false},
	}
	for _, tc := range cases {
		c := NewClient("127.0.0.1", &fakeSink{})
		if got := c.SetName(tc.name); got != tc.ok {
			t.Errorf("SetName(%q) = %v, want %v", tc.name, got, tc.ok)
		}
	}
}

func TestClientSendSerializesAndReportsErrors(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient("127.0.0.1", sink)

	if err := c.Send([]byte("one")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("expected 1 frame delivered, got %d", len(sink.frames))
	}

	sink.failN = 1
	if err := c.Send([]byte("two")); err == nil {
		t.Fatalf("expected an error from a failing sink")
	}
}

func TestClientCloseSinkIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	c := NewClient("127.0.0.1", sink)
	c.CloseSink()
	c.CloseSink()
	if !sink.closed {
		t.Fatalf("sink was never closed")
	}
	if err := c.Send([]byte("x")); err != nil {
		t.Fatalf("Send after CloseSink should be a silent no-op, got %v", err)
	}
}

func TestClientChannelViews(t *testing.T) {
	c := NewClient("127.0.0.1", &fakeSink{})
	id := newTestUUID(t)
	c.AddChannelView(id, "room")
	if !c.HasChannelView(id) {
		t.Fatalf("expected membership view to contain %v", id)
	}
	c.RemoveChannelView(id)
	if c.HasChannelView(id) {
		t.Fatalf("expected membership view to no longer contain %v", id)
	}
}
