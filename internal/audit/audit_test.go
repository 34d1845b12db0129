package audit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type failingSink struct {
	calls int
}

func (s *failingSink) Write(Event) error {
	s.calls++
	return errors.New("disk full")
}

func TestAppendPreservesOrder(t *testing.T) {
	log := New(nil, nil)
	log.Append(Event{Category: CategoryBilling, Message: "first"})
	log.Append(Event{Category: CategorySecurity, Message: "second"})
	log.Append(Event{Category: CategoryBilling, Message: "third"})

	events := log.Query(Filter{})
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []string{"first", "second", "third"} {
		if events[i].Message != want {
			t.Fatalf("events[%d] = %q, want %q", i, events[i].Message, want)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	log := New(nil, nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log.Append(Event{Timestamp: base, Category: CategorySecurity, Message: "a"})
	log.Append(Event{Timestamp: base.Add(time.Hour), Category: CategoryBilling, Message: "b"})
	log.Append(Event{Timestamp: base.Add(2 * time.Hour), Category: CategoryBilling, Message: "c"})

	cases := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"by category", Filter{Category: CategoryBilling}, []string{"b", "c"}},
		{"since is inclusive", Filter{Since: base.Add(time.Hour)}, []string{"b", "c"}},
		{"until is exclusive", Filter{Until: base.Add(2 * time.Hour)}, []string{"a", "b"}},
		{"combined", Filter{Category: CategoryBilling, Until: base.Add(90 * time.Minute)}, []string{"b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := log.Query(tc.filter)
			if len(events) != len(tc.want) {
				t.Fatalf("got %d events, want %d", len(events), len(tc.want))
			}
			for i, want := range tc.want {
				if events[i].Message != want {
					t.Fatalf("events[%d] = %q, want %q", i, events[i].Message, want)
				}
			}
		})
	}
}

func TestEventsIteratesLazily(t *testing.T) {
	log := New(nil, nil)
	log.Append(Event{Category: CategoryBilling, Message: "a"})
	log.Append(Event{Category: CategorySecurity, Message: "b"})
	log.Append(Event{Category: CategoryBilling, Message: "c"})

	seq := log.Events(Filter{Category: CategoryBilling})

	// Early break stops cleanly.
	var first string
	for ev := range seq {
		first = ev.Message
		break
	}
	if first != "a" {
		t.Fatalf("first = %q, want a", first)
	}

	// The same sequence restarts from the beginning.
	var got []string
	for ev := range seq {
		got = append(got, ev.Message)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("restarted iteration = %v, want [a c]", got)
	}

	// Appending during iteration must not block or deadlock.
	for ev := range seq {
		if ev.Message == "a" {
			log.Append(Event{Category: CategoryBilling, Message: "d"})
		}
	}
	if log.Len() != 4 {
		t.Fatalf("got %d events, want 4", log.Len())
	}
}

func TestSinkFailureDoesNotDropEvent(t *testing.T) {
	sink := &failingSink{}
	log := New(sink, nil)
	log.Append(Event{Category: CategoryBilling, Message: "billed"})

	if sink.calls != 1 {
		t.Fatalf("sink called %d times, want 1", sink.calls)
	}
	if got := log.Len(); got != 1 {
		t.Fatalf("event dropped: log has %d events, want 1", got)
	}
}

func TestConcurrentAppends(t *testing.T) {
	log := New(nil, nil)
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Append(Event{Category: CategoryTransfer, Message: "t"})
		}()
	}
	wg.Wait()
	if got := log.Len(); got != n {
		t.Fatalf("got %d events, want %d", got, n)
	}
}

func TestFileSinkRoundTrip(t *testing.T) {
	path := t.TempDir() + "/audit.jsonl"
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	log := New(sink, nil)
	log.Append(Event{Category: CategorySecurity, Message: "blocked", Payload: map[string]any{"pattern": "eval"}})
	log.Append(Event{Category: CategoryBilling, Message: "billed"})

	if got := log.Len(); got != 2 {
		t.Fatalf("got %d events, want 2", got)
	}
}
