package monitor

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumora-health/breathsense/pkg/breath"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Subscribers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", hub.Subscribers(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitSubscribers(t, hub, 1)

	now := time.Date(2026, 4, 2, 23, 0, 0, 0, time.UTC)
	hub.Publish(now, breath.Result{
		Active: true,
		State:  breath.StateInhale,
		Rate:   &breath.RateMeasurement{Time: now, Instant: 15, Smoothed: 15, Confidence: 0.5},
		Events: []breath.Event{{ID: "e1", Time: now, Type: breath.EventInhale, Amplitude: 0.4}},
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got Update
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode %q: %v", msg, err)
	}
	if !got.Active || got.State != "inhale" {
		t.Errorf("update = %+v, want active inhale", got)
	}
	if got.Rate == nil || got.Rate.Smoothed != 15 {
		t.Errorf("rate = %+v, want smoothed 15", got.Rate)
	}
	if len(got.Events) != 1 || got.Events[0].ID != "e1" {
		t.Errorf("events = %+v, want [e1]", got.Events)
	}
}

func TestPublishOmitsEmptyFields(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitSubscribers(t, hub, 1)

	hub.Publish(time.Now(), breath.Result{Active: false, State: breath.StateNone})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(msg), `"rate"`) || strings.Contains(string(msg), `"events"`) {
		t.Errorf("idle update carries rate/events: %s", msg)
	}
	if !strings.Contains(string(msg), `"state":"none"`) {
		t.Errorf("idle update state: %s", msg)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub, url := newTestHub(t)
	c1 := dial(t, url)
	c2 := dial(t, url)
	waitSubscribers(t, hub, 2)

	hub.Publish(time.Now(), breath.Result{Active: true, State: breath.StateExhale})

	for i, conn := range []*websocket.Conn{c1, c2} {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("subscriber %d read: %v", i, err)
		}
		if !strings.Contains(string(msg), `"state":"exhale"`) {
			t.Errorf("subscriber %d got %s", i, msg)
		}
	}
}

func TestSubscriberDisconnectIsNoticed(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitSubscribers(t, hub, 1)

	conn.Close()
	waitSubscribers(t, hub, 0)

	// Publishing to an empty hub is fine.
	hub.Publish(time.Now(), breath.Result{})
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	hub, url := newTestHub(t)
	dial(t, url) // never reads
	waitSubscribers(t, hub, 1)

	// Large updates fill the socket buffer, then the send channel; the
	// hub must shed the client rather than block.
	bulky := breath.Result{
		Active: true,
		State:  breath.StateInhale,
		Events: []breath.Event{{ID: strings.Repeat("x", 256<<10), Type: breath.EventInhale}},
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range sendBuffer * 3 {
			hub.Publish(time.Now(), bulky)
		}
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	waitSubscribers(t, hub, 0)
}

func TestDroppedSubscriberConnIsClosed(t *testing.T) {
	hub, url := newTestHub(t)
	conn := dial(t, url)
	waitSubscribers(t, hub, 1)

	// Wedge the subscriber: the socket buffer fills, writeLoop blocks in
	// WriteMessage until its deadline, and the overflowing send channel
	// gets the client dropped.
	bulky := breath.Result{
		Active: true,
		State:  breath.StateInhale,
		Events: []breath.Event{{ID: strings.Repeat("x", 256<<10), Type: breath.EventInhale}},
	}
	for range sendBuffer * 3 {
		hub.Publish(time.Now(), bulky)
	}
	waitSubscribers(t, hub, 0)

	// The drop must close the socket even while writeLoop is wedged;
	// otherwise readLoop stays parked on a live connection. Drain the
	// buffered frames until the close comes through.
	conn.SetReadDeadline(time.Now().Add(20 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			t.Fatal("connection still open after drop")
		}
		break
	}
}
