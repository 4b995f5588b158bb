package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testEvent() Event {
	return Event{
		Summary: "Sesión con Ana García",
		Start:   EventTime{DateTime: "2030-01-07T10:00:00", TimeZone: "Europe/Madrid"},
		End:     EventTime{DateTime: "2030-01-07T10:50:00", TimeZone: "Europe/Madrid"},
		Attendees: []Attendee{
			{Email: "ana@example.com", DisplayName: "Ana García"},
		},
		Reminders: &Reminders{
			Overrides: []ReminderOverride{{Method: "email", Minutes: 1440}},
		},
	}
}

func TestCreateEventFirstAttemptSucceeds(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Get("notifyAttendees") != "true" {
			t.Error("first attempt should carry notifyAttendees")
		}
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if event.Reminders == nil || len(event.Reminders.Overrides) != 1 {
			t.Error("first attempt should keep the reminder overrides")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"eventId": "evt-1", "link": "https://calendar.example.com/evt-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	id, err := client.CreateEvent(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if id != "evt-1" {
		t.Fatalf("expected evt-1, got %q", id)
	}
	if requests != 1 {
		t.Fatalf("expected a single request, got %d", requests)
	}
}

func TestCreateEventFallsBackToDefaultReminders(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var event Event
		_ = json.NewDecoder(r.Body).Decode(&event)
		if event.Reminders != nil && len(event.Reminders.Overrides) > 0 {
			http.Error(w, `{"error":"reminder overrides not allowed"}`, http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"eventId": "evt-2"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	id, err := client.CreateEvent(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if id != "evt-2" {
		t.Fatalf("expected evt-2, got %q", id)
	}
	if requests != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
}

func TestCreateEventFallsBackWithoutNotify(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Query().Has("notifyAttendees") {
			http.Error(w, `{"error":"notifications disabled"}`, http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"eventId": "evt-3"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	id, err := client.CreateEvent(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if id != "evt-3" {
		t.Fatalf("expected evt-3, got %q", id)
	}
	if requests != 3 {
		t.Fatalf("expected 3 requests, got %d", requests)
	}
}

func TestCreateEventExhaustsWaterfall(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.CreateEvent(context.Background(), testEvent())
	if err == nil {
		t.Fatal("expected an error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected APIError 429, got %v", err)
	}
	if requests != 3 {
		t.Fatalf("expected 3 attempts, got %d", requests)
	}
}

func TestDeleteEventMissingIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if err := client.DeleteEvent(context.Background(), "evt-gone"); err != nil {
		t.Fatalf("deleting a missing event should succeed: %v", err)
	}
}

func TestDeleteEventServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if err := client.DeleteEvent(context.Background(), "evt-1"); err == nil {
		t.Fatal("expected an error on 500")
	}
}

func TestUpdateEventSendsPatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if r.URL.Path != "/events/evt-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if event.Reminders != nil {
			t.Error("patch must not carry a reminders field")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"eventId": "evt-1", "link": "https://calendar.example.com/evt-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	if err := client.UpdateEvent(context.Background(), "evt-1", testEvent()); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
}
