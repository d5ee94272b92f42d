// Package calendly implements the upstream booking API client.
package calendly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.calendly.com"

var ErrNoInvitees = errors.New("no invitees found for event")

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int

	mu           sync.Mutex
	userURI      string
	eventTypeURI string
}

type Option func(*Client)

// WithBaseURL points the client at a different API host, used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("calendly API returned %d: %s", e.StatusCode, e.Body)
}

func (c *Client) request(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	return c.doWithRetry(ctx, func() error {
		u := c.baseURL + endpoint
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request body: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return &apiError{StatusCode: resp.StatusCode, Body: string(data)}
		}

		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
}

// doWithRetry executes fn with exponential backoff. 4xx responses other than
// 429 are not retried.
func (c *Client) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var ae *apiError
		if errors.As(err, &ae) && ae.StatusCode >= 400 && ae.StatusCode < 500 && ae.StatusCode != http.StatusTooManyRequests {
			return err
		}

		if attempt < c.maxRetries-1 {
			waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			slog.Debug("calendly request failed, retrying",
				"attempt", attempt+1,
				"wait_time", waitTime,
				"error", err)
			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

type userResponse struct {
	Resource struct {
		URI                 string `json:"uri"`
		CurrentOrganization string `json:"current_organization"`
	} `json:"resource"`
}

func (c *Client) currentUserURI(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.userURI
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var resp userResponse
	if err := c.request(ctx, http.MethodGet, "/users/me", nil, nil, &resp); err != nil {
		return "", fmt.Errorf("get current user: %w", err)
	}

	c.mu.Lock()
	c.userURI = resp.Resource.URI
	c.mu.Unlock()
	return resp.Resource.URI, nil
}

type eventTypesResponse struct {
	Collection []struct {
		URI string `json:"uri"`
	} `json:"collection"`
}

func (c *Client) defaultEventTypeURI(ctx context.Context) (string, error) {
	c.mu.Lock()
	cached := c.eventTypeURI
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	userURI, err := c.currentUserURI(ctx)
	if err != nil {
		return "", err
	}

	q := url.Values{"user": {userURI}}
	var resp eventTypesResponse
	if err := c.request(ctx, http.MethodGet, "/event_types", q, nil, &resp); err != nil {
		return "", fmt.Errorf("list event types: %w", err)
	}
	if len(resp.Collection) == 0 {
		return "", errors.New("no event types configured for user")
	}

	c.mu.Lock()
	c.eventTypeURI = resp.Collection[0].URI
	c.mu.Unlock()
	return resp.Collection[0].URI, nil
}

type availableTimesResponse struct {
	Collection []struct {
		StartTime     string `json:"start_time"`
		SchedulingURL string `json:"scheduling_url"`
	} `json:"collection"`
}

// FetchAvailableSlots returns up to max bookable slots over the next 7 days,
// formatted for display. Implements cache.Fetcher.
func (c *Client) FetchAvailableSlots(ctx context.Context, max int) ([]Slot, error) {
	eventTypeURI, err := c.defaultEventTypeURI(ctx)
	if err != nil {
		return nil, err
	}

	// Start an hour out so every returned slot is actually bookable.
	start := time.Now().UTC().Add(time.Hour)
	end := start.Add(7 * 24 * time.Hour)

	q := url.Values{
		"event_type": {eventTypeURI},
		"start_time": {start.Format("2006-01-02T15:04:05.000000Z")},
		"end_time":   {end.Format("2006-01-02T15:04:05.000000Z")},
	}

	var resp availableTimesResponse
	if err := c.request(ctx, http.MethodGet, "/event_type_available_times", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch available times: %w", err)
	}

	slots := make([]Slot, 0, len(resp.Collection))
	for _, raw := range resp.Collection {
		if max > 0 && len(slots) >= max {
			break
		}
		t, err := time.Parse(time.RFC3339, raw.StartTime)
		if err != nil {
			slog.Warn("skipping slot with unparseable start time", "start_time", raw.StartTime, "error", err)
			continue
		}
		slots = append(slots, Slot{
			Date:       t.Format("Monday, January 02, 2006"),
			Time:       t.Format("03:04 PM"),
			ISOTime:    raw.StartTime,
			BookingURL: raw.SchedulingURL,
		})
	}
	return slots, nil
}

type scheduledEventsResponse struct {
	Collection []BookingEvent `json:"collection"`
}

// FetchScheduledEvents returns scheduled events for an invitee email.
// Implements cache.Fetcher.
func (c *Client) FetchScheduledEvents(ctx context.Context, email string, status EventStatus) ([]BookingEvent, error) {
	userURI, err := c.currentUserURI(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"user":   {userURI},
		"status": {string(status)},
	}
	if email != "" {
		q.Set("invitee_email", email)
	}

	var resp scheduledEventsResponse
	if err := c.request(ctx, http.MethodGet, "/scheduled_events", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch scheduled events: %w", err)
	}
	return resp.Collection, nil
}

type inviteesResponse struct {
	Collection []Invitee `json:"collection"`
}

func (c *Client) EventInvitees(ctx context.Context, eventUUID string) ([]Invitee, error) {
	var resp inviteesResponse
	endpoint := fmt.Sprintf("/scheduled_events/%s/invitees", eventUUID)
	if err := c.request(ctx, http.MethodGet, endpoint, nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch event invitees: %w", err)
	}
	return resp.Collection, nil
}

// CancelEvent cancels a scheduled event with the given reason.
func (c *Client) CancelEvent(ctx context.Context, eventUUID, reason string) error {
	endpoint := fmt.Sprintf("/scheduled_events/%s/cancellation", eventUUID)
	body := map[string]string{"reason": reason}
	if err := c.request(ctx, http.MethodPost, endpoint, nil, body, nil); err != nil {
		return fmt.Errorf("cancel event %s: %w", eventUUID, err)
	}
	return nil
}

type schedulingLinkResponse struct {
	Resource struct {
		BookingURL string `json:"booking_url"`
	} `json:"resource"`
}

// CreateSchedulingLink creates a single-use booking link for the default
// event type.
func (c *Client) CreateSchedulingLink(ctx context.Context) (string, error) {
	eventTypeURI, err := c.defaultEventTypeURI(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"max_event_count": 1,
		"owner":           eventTypeURI,
		"owner_type":      "EventType",
	}
	var resp schedulingLinkResponse
	if err := c.request(ctx, http.MethodPost, "/scheduling_links", nil, body, &resp); err != nil {
		return "", fmt.Errorf("create scheduling link: %w", err)
	}
	return resp.Resource.BookingURL, nil
}
