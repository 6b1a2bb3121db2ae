package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

const (
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// defaultThrottleWait applies when a 429 arrives as plain text
	// ("Slow down") instead of the structured JSON body.
	defaultThrottleWait = 5 * time.Second

	// maxRetryInterval caps the exponential pause between transport
	// retries.
	maxRetryInterval = 2 * time.Minute
)

// APIError is a non-retriable Discourse API failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("forum api status %d: %s", e.StatusCode, e.Body)
}

// Client is a minimal Discourse client authenticated with an Api-Key
// header. Throttled and transport-failed requests are repeated with the
// same parameters; 404 maps to domain.ErrEntityNotFound, which callers
// treat as "no data" where that is the natural reading.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

type category struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	HasChildren     bool       `json:"has_children"`
	SubcategoryList []category `json:"subcategory_list"`
}

type categoriesResult struct {
	CategoryList struct {
		Categories []category `json:"categories"`
	} `json:"category_list"`
}

type topic struct {
	ID         int64  `json:"id"`
	CreatedAt  string `json:"created_at"`
	CategoryID int64  `json:"category_id"`
	Views      int    `json:"views"`
	PostsCount int    `json:"posts_count"`
	LikeCount  int    `json:"like_count"`
}

type topicsResult struct {
	TopicList struct {
		Topics []topic `json:"topics"`
	} `json:"topic_list"`
}

type userAction struct {
	TopicID    int64  `json:"topic_id"`
	PostID     int64  `json:"post_id"`
	PostNumber int    `json:"post_number"`
	CreatedAt  string `json:"created_at"`
	CategoryID int64  `json:"category_id"`
}

type userActionsResult struct {
	UserActions []userAction `json:"user_actions"`
}

type postResult struct {
	AcceptedAnswer bool `json:"accepted_answer"`
}

// throttleBody is the structured 429 payload.
type throttleBody struct {
	Extras struct {
		WaitSeconds int `json:"wait_seconds"`
	} `json:"extras"`
}

var errTransient = errors.New("transient network failure")

// getJSON issues one GET and decodes the response into out, retrying
// throttles and transport failures with the same parameters.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxRetryInterval
	bo.MaxElapsedTime = 0

	for {
		wait, err := c.do(ctx, u, out)
		switch {
		case err == nil:
			return nil
		case wait > 0:
			logger.Info("forum %s: throttled, waiting %s", path, wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		case errors.Is(err, errTransient):
			pause := bo.NextBackOff()
			logger.Warn("forum %s: transient failure (%v), retrying in %s", path, err, pause)
			if err := sleep(ctx, pause); err != nil {
				return err
			}
		default:
			return err
		}
	}
}

// do performs one request. A positive wait with a non-nil error means the
// request was throttled and should be repeated after the wait.
func (c *Client) do(ctx context.Context, u string, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, context.Canceled
		}
		return 0, fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return throttleWait(resp.Body), fmt.Errorf("throttled")

	case resp.StatusCode == http.StatusNotFound:
		return 0, domain.ErrEntityNotFound

	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("%w: status %d: %s", errTransient, resp.StatusCode, strings.TrimSpace(string(body)))

	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return 0, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return 0, nil
}

// throttleWait extracts the wait from a 429 body. Discourse sends either a
// structured JSON payload with extras.wait_seconds or a plain-text "Slow
// down", which gets the fixed default.
func throttleWait(body io.Reader) time.Duration {
	raw, err := io.ReadAll(body)
	if err != nil {
		return defaultThrottleWait
	}

	var tb throttleBody
	if err := json.Unmarshal(raw, &tb); err != nil || tb.Extras.WaitSeconds <= 0 {
		return defaultThrottleWait
	}
	return time.Duration(tb.Extras.WaitSeconds) * time.Second
}

// stripDate reduces a Discourse timestamp to its date. Unparseable input is
// passed through unchanged.
func stripDate(ts string) string {
	if ts == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000Z07:00", time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ts
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
