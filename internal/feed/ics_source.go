package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"econ-clock/internal/clock"
	"econ-clock/internal/domain"
	"econ-clock/internal/storage"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRefresh     = 15 * time.Minute
)

// errRetryable marks HTTP failures worth another attempt.
var errRetryable = errors.New("retryable")

// ICSSource serves events from a remote iCalendar feed. The parsed feed is
// kept in memory and refreshed with conditional requests at most once per
// refresh interval.
type ICSSource struct {
	url         string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	refresh     time.Duration
	state       storage.FeedStateStore
	now         clock.Clock
	log         zerolog.Logger

	mu        sync.Mutex
	events    []domain.Event
	loaded    bool
	fetchedAt int64
	etag      string
	modified  string
}

var _ storage.EventSource = (*ICSSource)(nil)

// Option configures ICSSource.
type Option func(*ICSSource)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *ICSSource) {
		s.client = client
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(s *ICSSource) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *ICSSource) {
		s.retryDelay = d
	}
}

// WithMaxDelay sets the maximum retry delay.
func WithMaxDelay(d time.Duration) Option {
	return func(s *ICSSource) {
		s.maxDelay = d
	}
}

// WithRefresh sets how long a fetched feed is served before revalidation.
func WithRefresh(d time.Duration) Option {
	return func(s *ICSSource) {
		s.refresh = d
	}
}

// WithStateStore persists ETag/Last-Modified between runs.
func WithStateStore(store storage.FeedStateStore) Option {
	return func(s *ICSSource) {
		s.state = store
	}
}

// WithClock injects the clock used for refresh decisions.
func WithClock(c clock.Clock) Option {
	return func(s *ICSSource) {
		s.now = c
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *ICSSource) {
		s.log = l
	}
}

// NewICSSource creates a source for the feed at url.
func NewICSSource(url string, opts ...Option) *ICSSource {
	s := &ICSSource{
		url:         url,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		refresh:     DefaultRefresh,
		now:         clock.System,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "ics_source").Str("feed", redactURL(url)).Logger()
	return s
}

// Name returns "ics".
func (s *ICSSource) Name() string { return domain.SourceKindICS.String() }

// GetByTimeRange returns feed events with start <= epoch_ms < end that pass
// the filter, ordered by epoch then key.
func (s *ICSSource) GetByTimeRange(ctx context.Context, start, end int64, filters domain.Filters) ([]domain.Event, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return nil, err
	}
	filters = filters.Normalize()
	out := make([]domain.Event, 0)
	for _, e := range events {
		if e.EpochMs >= start && e.EpochMs < end && filters.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns every event of the feed, refreshing when due. A failed
// refresh keeps serving the previous copy.
func (s *ICSSource) Events(ctx context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.now()-s.fetchedAt >= s.refresh.Milliseconds() {
		if err := s.sync(ctx); err != nil {
			if !s.loaded {
				return nil, err
			}
			s.log.Warn().Err(err).Msg("feed refresh failed, serving previous copy")
		}
	}
	return append([]domain.Event(nil), s.events...), nil
}

// sync revalidates the feed. Caller holds mu.
func (s *ICSSource) sync(ctx context.Context) error {
	body, etag, modified, notModified, err := s.fetch(ctx, s.loaded)
	if err != nil {
		return err
	}
	now := s.now()
	if notModified {
		s.fetchedAt = now
		s.log.Debug().Msg("feed not modified")
		return nil
	}

	res, err := Parse(body, domain.SourceKindICS.String())
	if err != nil {
		return err
	}
	sort.Slice(res.Events, func(i, j int) bool {
		if res.Events[i].EpochMs != res.Events[j].EpochMs {
			return res.Events[i].EpochMs < res.Events[j].EpochMs
		}
		return res.Events[i].Key < res.Events[j].Key
	})

	s.events = res.Events
	s.loaded = true
	s.fetchedAt = now
	s.etag, s.modified = etag, modified

	s.log.Info().Int("events", len(res.Events)).Int("skipped", res.Skipped).Msg("feed loaded")

	if s.state != nil {
		st := &storage.FeedState{
			URL:          s.url,
			ETag:         etag,
			LastModified: modified,
			FetchedAt:    now,
			EventCount:   len(res.Events),
		}
		if err := s.state.Set(ctx, st); err != nil {
			s.log.Warn().Err(err).Msg("save feed state")
		}
	}
	return nil
}

// fetch performs a GET with retries and exponential backoff. Conditional
// headers are sent when conditional is true.
func (s *ICSSource) fetch(ctx context.Context, conditional bool) (body []byte, etag, modified string, notModified bool, err error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, "", "", false, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		body, etag, modified, notModified, err = s.do(ctx, conditional)
		if err == nil {
			return body, etag, modified, notModified, nil
		}
		if !errors.Is(err, errRetryable) {
			return nil, "", "", false, err
		}
		lastErr = err
		s.log.Debug().Err(err).Int("attempt", attempt+1).Msg("feed fetch failed")
	}

	return nil, "", "", false, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *ICSSource) do(ctx context.Context, conditional bool) ([]byte, string, string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, "", "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")
	if conditional {
		if s.etag != "" {
			req.Header.Set("If-None-Match", s.etag)
		}
		if s.modified != "" {
			req.Header.Set("If-Modified-Since", s.modified)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", "", false, ctx.Err()
		}
		return nil, "", "", false, fmt.Errorf("%w: http request: %v", errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, "", "", true, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", "", false, fmt.Errorf("%w: rate limited (429)", errRetryable)
	case resp.StatusCode >= 500:
		return nil, "", "", false, fmt.Errorf("%w: unexpected status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, "", "", false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", false, fmt.Errorf("%w: read response: %v", errRetryable, err)
	}
	return body, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), false, nil
}

// redactURL keeps scheme and host; feed paths often carry tokens.
func redactURL(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return "ics://...(redacted)"
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/...(redacted)"
}
