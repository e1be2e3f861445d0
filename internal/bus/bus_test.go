package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestAddress(t *testing.T) {
	tests := []struct {
		parts    []string
		expected string
	}{
		{[]string{"feedhandler", "vix"}, "feedhandler.vix"},
		{[]string{"feed handler", "a.b"}, "feed_handler.a_b"},
		{[]string{"x", ""}, "x._"},
		{[]string{"rt>", "*"}, "rt_._"},
	}
	for _, tc := range tests {
		if got := Address(tc.parts...); got != tc.expected {
			t.Errorf("Address(%q) = %q, expected %q", tc.parts, got, tc.expected)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, subject string
		expected         bool
	}{
		{"a.b", "a.b", true},
		{"a.b", "a.c", false},
		{"a.*", "a.b", true},
		{"a.*", "a.b.c", false},
		{"a.>", "a.b.c", true},
		{"a.>", "a", false},
		{"a.b.c", "a.b", false},
	}
	for _, tc := range tests {
		if got := match(tc.pattern, tc.subject); got != tc.expected {
			t.Errorf("match(%q, %q) = %v, expected %v", tc.pattern, tc.subject, got, tc.expected)
		}
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	m := NewMemory()
	var got []string
	sub, err := m.Subscribe("feedhandler.>", HandlerFunc(func(msg []byte, address string) {
		got = append(got, address+" "+string(msg))
	}))
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Publish("feedhandler.vix", map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	if err := m.Publish("other.vix", map[string]int{"n": 2}); err != nil {
		t.Fatal(err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatal(err)
	}
	if err := m.Publish("feedhandler.vix", map[string]int{"n": 3}); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 || got[0] != `feedhandler.vix {"n":1}` {
		t.Errorf("delivered %v", got)
	}
}

func TestHeartbeat(t *testing.T) {
	m := NewMemory()
	var mu sync.Mutex
	var beats []Status
	m.Subscribe("system.status", HandlerFunc(func(msg []byte, _ string) {
		var s Status
		if err := json.Unmarshal(msg, &s); err != nil {
			t.Errorf("unmarshal heartbeat: %v", err)
			return
		}
		mu.Lock()
		beats = append(beats, s)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	hb := NewHeartbeat(m, "system.status", 10*time.Millisecond, "feedhandler", "vix", 15, 25)
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(beats)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(beats) < 2 {
		t.Fatalf("got %d heartbeats, expected at least 2", len(beats))
	}
	want := Status{ModuleName: "feedhandler", ModuleID: "vix", Status: "UP", AmberSeconds: 15, RedSeconds: 25}
	if beats[0] != want {
		t.Errorf("heartbeat = %+v, expected %+v", beats[0], want)
	}
}

func TestHeartbeatWireShape(t *testing.T) {
	b, err := json.Marshal(Status{ModuleName: "m", ModuleID: "i", Status: StatusUp, AmberSeconds: 1, RedSeconds: 2})
	if err != nil {
		t.Fatal(err)
	}
	const want = `{"module_name":"m","module_id":"i","status":"UP","status_amber_seconds":1,"status_red_seconds":2}`
	if string(b) != want {
		t.Errorf("json = %s, expected %s", b, want)
	}
}
