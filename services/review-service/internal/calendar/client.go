package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const googleCalendarBaseURL = "https://www.googleapis.com/calendar/v3"

var (
	// ErrUnauthorized reports that the provider rejected the access token.
	ErrUnauthorized = errors.New("calendar provider rejected credentials")
	// ErrProvider reports any other provider failure.
	ErrProvider = errors.New("calendar provider error")
)

// Client fetches upcoming events from the Google Calendar REST API using a
// caller-supplied OAuth access token.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = googleCalendarBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type Attendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type EventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
}

type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Start       EventTime  `json:"start"`
	Attendees   []Attendee `json:"attendees"`
}

type eventsResponse struct {
	Items []Event `json:"items"`
}

// FetchUpcoming returns up to 50 upcoming single-occurrence events from the
// primary calendar, ordered by start time.
func (c *Client) FetchUpcoming(ctx context.Context, accessToken string) ([]Event, error) {
	q := url.Values{}
	q.Set("timeMin", time.Now().UTC().Format(time.RFC3339))
	q.Set("maxResults", "50")
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/calendars/primary/events?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}

	var body eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProvider, err)
	}
	return body.Items, nil
}
