package ical

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"homedash/pkg/plugin"
)

// FeedFetcher retrieves and decodes a calendar feed. The default
// implementation speaks HTTP and a minimal subset of the iCalendar
// format; tests inject stubs.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, url string) ([]plugin.Event, error)
}

// HTTPFetcher fetches feeds over HTTP with a bounded timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with the given timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// FetchFeed downloads the feed and decodes its VEVENT blocks.
func (f *HTTPFetcher) FetchFeed(ctx context.Context, url string) ([]plugin.Event, error) {
	// webcal is an alias scheme some providers hand out.
	if strings.HasPrefix(url, "webcal://") {
		url = "https://" + strings.TrimPrefix(url, "webcal://")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}
	return decodeFeed(bufio.NewScanner(resp.Body))
}

func decodeFeed(scanner *bufio.Scanner) ([]plugin.Event, error) {
	var (
		events  []plugin.Event
		current *plugin.Event
	)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "BEGIN:VEVENT":
			current = &plugin.Event{}
		case line == "END:VEVENT":
			if current != nil && !current.Start.IsZero() {
				if current.End.IsZero() {
					current.End = current.Start
				}
				events = append(events, *current)
			}
			current = nil
		case current != nil:
			applyProperty(current, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	return events, nil
}

func applyProperty(ev *plugin.Event, line string) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	// Property parameters (e.g. DTSTART;VALUE=DATE) are not needed to
	// pick the decode format, the value shape is.
	name, _, _ = strings.Cut(name, ";")
	switch name {
	case "UID":
		ev.ID = value
	case "SUMMARY":
		ev.Title = unescape(value)
	case "DESCRIPTION":
		ev.Description = unescape(value)
	case "LOCATION":
		ev.Location = unescape(value)
	case "DTSTART":
		if t, allDay, ok := parseStamp(value); ok {
			ev.Start = t
			ev.AllDay = allDay
		}
	case "DTEND":
		if t, _, ok := parseStamp(value); ok {
			ev.End = t
		}
	}
}

func parseStamp(value string) (time.Time, bool, bool) {
	if t, err := time.Parse("20060102T150405Z", value); err == nil {
		return t, false, true
	}
	if t, err := time.Parse("20060102T150405", value); err == nil {
		return t, false, true
	}
	if t, err := time.Parse("20060102", value); err == nil {
		return t, true, true
	}
	return time.Time{}, false, false
}

func unescape(value string) string {
	replacer := strings.NewReplacer(`\n`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return replacer.Replace(value)
}
