package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	httputil "github.com/fitnessllm/dataplatform/pkg/infrastructure/http"
	"github.com/fitnessllm/dataplatform/pkg/sources"
)

const (
	Name = "strava"

	tokenURL       = "https://www.strava.com/oauth/token"
	defaultBaseURL = "https://www.strava.com/api/v3"

	activitiesPerPage = 200
)

func init() {
	sources.Register(sources.Descriptor{
		Name:          Name,
		TokenURL:      tokenURL,
		SampleStreams: SampleStreams(),
		New: func(accessToken string) sources.Source {
			return NewClient(accessToken)
		},
	})
}

// Client talks to the Strava v3 API with an OAuth bearer token and a
// cooperative rate-limit budget.
type Client struct {
	http    *http.Client
	baseURL string
	limiter *rateLimiter
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(accessToken string, opts ...Option) *Client {
	logger := slog.Default().With("component", "strava")
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	c := &Client{
		http:    oauth2.NewClient(context.Background(), ts),
		baseURL: defaultBaseURL,
		limiter: newRateLimiter(logger),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// do executes one API call, suspending on an exhausted budget and
// retrying once after a 429. Anything else is the caller's problem.
func (c *Client) do(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter.exhausted() {
		if err := c.limiter.waitForReset(ctx); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		c.limiter.observe(resp.Header)

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			resp.Body.Close()
			if err := c.limiter.waitForReset(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if err := httputil.ParseErrorResponse(resp); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("strava %s: %w", path, err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		return body, nil
	}
}

func (c *Client) Athlete(ctx context.Context) (*sources.Athlete, error) {
	body, err := c.do(ctx, "/athlete", nil)
	if err != nil {
		return nil, err
	}
	var peek struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return nil, fmt.Errorf("strava athlete: %w", err)
	}
	if peek.ID == 0 {
		return nil, fmt.Errorf("strava athlete: missing id")
	}
	return &sources.Athlete{
		ID:  strconv.FormatInt(peek.ID, 10),
		Raw: body,
	}, nil
}

func (c *Client) Activities(ctx context.Context, after time.Time) ([]sources.Activity, error) {
	var activities []sources.Activity
	for page := 1; ; page++ {
		query := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(activitiesPerPage)},
		}
		if !after.IsZero() {
			query.Set("after", strconv.FormatInt(after.Unix(), 10))
		}
		body, err := c.do(ctx, "/athlete/activities", query)
		if err != nil {
			return nil, err
		}

		var raws []json.RawMessage
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("strava activities page %d: %w", page, err)
		}
		for _, raw := range raws {
			var peek struct {
				ID        int64     `json:"id"`
				StartDate time.Time `json:"start_date"`
			}
			if err := json.Unmarshal(raw, &peek); err != nil {
				return nil, fmt.Errorf("strava activity summary: %w", err)
			}
			activities = append(activities, sources.Activity{
				ID:        strconv.FormatInt(peek.ID, 10),
				StartDate: peek.StartDate,
				Raw:       raw,
			})
		}
		if len(raws) < activitiesPerPage {
			return activities, nil
		}
	}
}

// emptyStream is the payload written for streams the API did not return,
// so every configured stream has a raw object per activity.
var emptyStream = json.RawMessage(`{"data":null,"series_type":null,"original_size":null}`)

func (c *Client) ActivityStreams(ctx context.Context, activityID string, streams []string) (map[string]json.RawMessage, error) {
	query := url.Values{
		"keys":        {strings.Join(streams, ",")},
		"key_by_type": {"true"},
	}
	body, err := c.do(ctx, "/activities/"+activityID+"/streams", query)
	if err != nil {
		// Activities without samples (manual entries) 404 on the streams
		// endpoint; report every stream as empty rather than failing.
		var httpErr *httputil.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			result := make(map[string]json.RawMessage, len(streams))
			for _, s := range streams {
				result[s] = emptyStream
			}
			return result, nil
		}
		return nil, err
	}

	var byType map[string]json.RawMessage
	if err := json.Unmarshal(body, &byType); err != nil {
		return nil, fmt.Errorf("strava streams for %s: %w", activityID, err)
	}

	result := make(map[string]json.RawMessage, len(streams))
	for _, s := range streams {
		if payload, ok := byType[s]; ok {
			result[s] = payload
		} else {
			result[s] = emptyStream
		}
	}
	return result, nil
}
