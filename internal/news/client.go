package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FeedClient fetches headlines from a JSON news endpoint
type FeedClient struct {
	url  string
	http *http.Client
}

// NewFeedClient creates a feed client for a JSON endpoint
func NewFeedClient(url string, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FeedClient{url: url, http: &http.Client{Timeout: timeout}}
}

// Fetch retrieves the current headlines
func (c *FeedClient) Fetch(ctx context.Context) ([]Article, error) {
	var out []Article
	if err := getJSON(ctx, c.http, c.url, &out); err != nil {
		return nil, fmt.Errorf("fetch news feed: %w", err)
	}
	return out, nil
}

// CalendarClient fetches the economic calendar from a JSON endpoint
type CalendarClient struct {
	url  string
	http *http.Client
}

// NewCalendarClient creates a calendar client for a JSON endpoint
func NewCalendarClient(url string, timeout time.Duration) *CalendarClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CalendarClient{url: url, http: &http.Client{Timeout: timeout}}
}

// Fetch retrieves the scheduled events
func (c *CalendarClient) Fetch(ctx context.Context) ([]CalendarEvent, error) {
	var out []CalendarEvent
	if err := getJSON(ctx, c.http, c.url, &out); err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
