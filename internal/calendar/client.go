// Package calendar is a small client for the Google Calendar v3 events API,
// scoped to the user's primary calendar.
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
	"strings"
	"time"
)

// DefaultBaseURL is the Calendar v3 API root.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

const maxListResults = 250

// APIError is a non-2xx answer from the Calendar API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calendar: API returned status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the Calendar API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Event is the flattened view of a calendar event returned to clients.
// Start and End hold the dateTime, or the date for all-day events.
type Event struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Start       string `json:"start"`
	End         string `json:"end"`
	HTMLLink    string `json:"htmlLink"`
}

// rawEvent is the subset of the API resource that Event is built from.
type rawEvent struct {
	ID          string        `json:"id"`
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	Location    string        `json:"location"`
	Start       *rawEventTime `json:"start"`
	End         *rawEventTime `json:"end"`
	HTMLLink    string        `json:"htmlLink"`
}

type rawEventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

func (t *rawEventTime) value() string {
	if t == nil {
		return ""
	}
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

func (r rawEvent) simplify() Event {
	summary := r.Summary
	if summary == "" {
		summary = "(No Title)"
	}
	return Event{
		ID:          r.ID,
		Summary:     summary,
		Description: r.Description,
		Location:    r.Location,
		Start:       r.Start.value(),
		End:         r.End.value(),
		HTMLLink:    r.HTMLLink,
	}
}

// Client calls the Calendar API with a caller-supplied bearer token.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client. An empty baseURL means DefaultBaseURL and a
// nil httpClient means http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ListEvents returns the single (expanded) events between timeMin and
// timeMax ordered by start time.
func (c *Client) ListEvents(ctx context.Context, accessToken string, timeMin, timeMax time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	q.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	q.Set("maxResults", fmt.Sprint(maxListResults))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var page struct {
		Items []rawEvent `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, c.eventsURL("")+"?"+q.Encode(), accessToken, nil, &page); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(page.Items))
	for _, item := range page.Items {
		events = append(events, item.simplify())
	}
	return events, nil
}

// CreateEvent inserts data as a new event.
func (c *Client) CreateEvent(ctx context.Context, accessToken string, data map[string]any) (*Event, error) {
	var created rawEvent
	if err := c.do(ctx, http.MethodPost, c.eventsURL(""), accessToken, data, &created); err != nil {
		return nil, err
	}
	ev := created.simplify()
	return &ev, nil
}

// UpdateEvent overwrites the top-level fields in data on an existing
// event. The current resource is fetched, merged and written back whole.
func (c *Client) UpdateEvent(ctx context.Context, accessToken, eventID string, data map[string]any) (*Event, error) {
	var current map[string]any
	if err := c.do(ctx, http.MethodGet, c.eventsURL(eventID), accessToken, nil, &current); err != nil {
		return nil, err
	}
	if current == nil {
		current = make(map[string]any, len(data))
	}
	for k, v := range data {
		current[k] = v
	}

	var updated rawEvent
	if err := c.do(ctx, http.MethodPut, c.eventsURL(eventID), accessToken, current, &updated); err != nil {
		return nil, err
	}
	ev := updated.simplify()
	return &ev, nil
}

// DeleteEvent removes an event.
func (c *Client) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	return c.do(ctx, http.MethodDelete, c.eventsURL(eventID), accessToken, nil, nil)
}

func (c *Client) eventsURL(eventID string) string {
	u := c.baseURL + "/calendars/primary/events"
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

// do sends one request. body is JSON-encoded when non-nil; the response is
// decoded into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, rawURL, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("calendar: encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("calendar: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("calendar: decoding response: %w", err)
	}
	return nil
}
