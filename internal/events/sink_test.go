package events

import (
	"bufio"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMemorySinkRecordsInOrder(t *testing.T) {
	s := NewMemorySink()
	s.Publish(TypeRunStarted, map[string]any{"run_id": "r1"})
	s.Publish(TypeCycleStarted, nil)
	s.Publish(TypeRunComplete, nil)

	types := s.Types()
	want := []string{TypeRunStarted, TypeCycleStarted, TypeRunComplete}
	if len(types) != len(want) {
		t.Fatalf("types = %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("types[%d] = %s, want %s", i, types[i], want[i])
		}
	}
	if events := s.Events(); events[0].At.IsZero() {
		t.Errorf("event timestamp not set")
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	m := Multi{a, b}
	m.Publish(TypeTrade, map[string]any{"ticker": "AAPL"})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("fan-out missed a sink: %d / %d", len(a.Events()), len(b.Events()))
	}
}

func TestSSEHubDeliversToClient(t *testing.T) {
	hub := NewSSEHub()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/events", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req.WithContext(ctx))
		close(done)
	}()

	// wait for the client to register before publishing
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(TypeTrade, map[string]any{"ticker": "AAPL", "side": "BUY"})
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: trade") {
		t.Errorf("missing event line:\n%s", body)
	}
	if !strings.Contains(body, `"ticker":"AAPL"`) {
		t.Errorf("missing payload:\n%s", body)
	}

	sc := bufio.NewScanner(strings.NewReader(body))
	sawData := false
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "data: ") {
			sawData = true
		}
	}
	if !sawData {
		t.Errorf("no data frame in stream:\n%s", body)
	}
}

func TestSSEHubPublishNeverBlocks(t *testing.T) {
	hub := NewSSEHub()
	// no clients connected; a burst of publishes must return promptly
	donech := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(TypePortfolio, map[string]any{"i": i})
		}
		close(donech)
	}()
	select {
	case <-donech:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked with no clients")
	}
}
