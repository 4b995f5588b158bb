package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIError is a non-2xx answer from the calendar API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar api: status %d: %s", e.StatusCode, e.Body)
}

type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type Attendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

type ReminderOverride struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type Reminders struct {
	UseDefault bool               `json:"useDefault"`
	Overrides  []ReminderOverride `json:"overrides,omitempty"`
}

type Event struct {
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Reminders   *Reminders `json:"reminders,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateEvent inserts a calendar event and returns its id. Some tenant
// configurations reject reminder overrides or attendee notifications, so a
// rejected insert is retried with default reminders, and then once more
// without the notifyAttendees parameter.
func (c *Client) CreateEvent(ctx context.Context, event Event) (string, error) {
	attempts := []struct {
		event  Event
		notify bool
	}{
		{event: event, notify: true},
		{event: withDefaultReminders(event), notify: true},
		{event: withDefaultReminders(event), notify: false},
	}

	var lastErr error
	for _, attempt := range attempts {
		endpoint := c.baseURL + "/events"
		if attempt.notify {
			endpoint += "?" + url.Values{"notifyAttendees": {"true"}}.Encode()
		}
		id, err := c.postEvent(ctx, http.MethodPost, endpoint, attempt.event)
		if err == nil {
			return id, nil
		}
		lastErr = err
		var apiErr *APIError
		// Network errors are not payload problems; retrying variants
		// of the payload will not help.
		if !errors.As(err, &apiErr) {
			return "", err
		}
	}
	return "", fmt.Errorf("create event: %w", lastErr)
}

// UpdateEvent patches the time range and details of an existing event. The
// patch carries no reminders field, leaving whatever reminder configuration
// the event ended up with on create untouched.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, event Event) error {
	event.Reminders = nil
	endpoint := c.baseURL + "/events/" + url.PathEscape(eventID) + "?" + url.Values{"notifyAttendees": {"true"}}.Encode()
	if _, err := c.postEvent(ctx, http.MethodPatch, endpoint, event); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// DeleteEvent removes an event. A missing event counts as deleted, so
// cancellations never fail on an already-gone entry.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	endpoint := c.baseURL + "/events/" + url.PathEscape(eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("delete event: %w", &APIError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	return nil
}

func (c *Client) postEvent(ctx context.Context, method, endpoint string, event Event) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		EventID string `json:"eventId"`
		Link    string `json:"link"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("decode event response: %w", err)
		}
	}
	return result.EventID, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func withDefaultReminders(event Event) Event {
	event.Reminders = &Reminders{UseDefault: true}
	return event
}
