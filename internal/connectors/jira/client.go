package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

const (
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 60 * time.Second

	// maxRetryInterval caps the exponential pause between transport
	// retries.
	maxRetryInterval = 2 * time.Minute
)

// APIError is a non-retriable Jira API failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira api status %d: %s", e.StatusCode, e.Body)
}

// Client is a minimal Jira Cloud REST client with basic auth, exact
// Retry-After waits on 429 and indefinite capped backoff on transport
// failures. A failed request is always repeated with the same parameters so
// the caller's offset never moves on failure.
type Client struct {
	baseURL string
	user    string
	token   string
	http    *http.Client
}

// NewClient creates a Jira client. baseURL is the site root, e.g.
// "https://example.atlassian.net".
func NewClient(baseURL, user, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// userRef is an account reference as it appears in issue fields and comment
// authors. Some sites expose the email, some only the display name.
type userRef struct {
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// Key returns the identity key to match against the roster, preferring the
// email address.
func (u *userRef) Key() string {
	if u == nil {
		return ""
	}
	if u.EmailAddress != "" {
		return u.EmailAddress
	}
	return u.DisplayName
}

type issueFields struct {
	Summary        string `json:"summary"`
	Created        string `json:"created"`
	ResolutionDate string `json:"resolutiondate"`
	Status         struct {
		Name string `json:"name"`
	} `json:"status"`
	Project struct {
		Name string `json:"name"`
	} `json:"project"`
	Assignee *userRef `json:"assignee"`
	Reporter *userRef `json:"reporter"`
}

type issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type searchResult struct {
	StartAt         int      `json:"startAt"`
	MaxResults      int      `json:"maxResults"`
	Total           int      `json:"total"`
	Issues          []issue  `json:"issues"`
	WarningMessages []string `json:"warningMessages"`
}

type comment struct {
	ID      string  `json:"id"`
	Created string  `json:"created"`
	Author  userRef `json:"author"`
}

type commentsResult struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []comment `json:"comments"`
}

type projectsResult struct {
	StartAt    int  `json:"startAt"`
	MaxResults int  `json:"maxResults"`
	Total      int  `json:"total"`
	Values     []struct {
		Name string `json:"name"`
	} `json:"values"`
}

// getJSON issues one GET and decodes the response into out, retrying until
// it succeeds or fails terminally.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxRetryInterval
	bo.MaxElapsedTime = 0

	for {
		err := c.do(ctx, u, out)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errTransient):
			wait := bo.NextBackOff()
			logger.Warn("jira %s: transient failure (%v), retrying in %s", path, err, wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		default:
			var rle *retryAfterError
			if errors.As(err, &rle) {
				logger.Info("jira %s: throttled, waiting %s", path, rle.wait)
				if err := sleep(ctx, rle.wait); err != nil {
					return err
				}
				continue
			}
			return err
		}
	}
}

// retryAfterError signals a 429 with the provider-mandated wait.
type retryAfterError struct {
	wait time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("throttled, retry after %s", e.wait)
}

var errTransient = errors.New("transient network failure")

func (c *Client) do(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.user, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("%w: %v", errTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := 30 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil {
				wait = time.Duration(seconds) * time.Second
			}
		}
		io.Copy(io.Discard, resp.Body)
		return &retryAfterError{wait: wait}

	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrEntityNotFound

	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", errTransient, resp.StatusCode, strings.TrimSpace(string(body)))

	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

// searchPageSize is requested explicitly on every paginated endpoint. Jira
// site settings shrink the default page, and offset arithmetic on the
// caller's side needs a known stride.
const searchPageSize = 50

// search runs a JQL search starting at the given absolute offset.
func (c *Client) search(ctx context.Context, jql string, startAt int) (*searchResult, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(searchPageSize))

	var result searchResult
	if err := c.getJSON(ctx, "/rest/api/3/search", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// comments fetches one page of a ticket's comments.
func (c *Client) comments(ctx context.Context, ticket string, startAt int) (*commentsResult, error) {
	q := url.Values{}
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(searchPageSize))

	var result commentsResult
	path := "/rest/api/3/issue/" + url.PathEscape(ticket) + "/comment"
	if err := c.getJSON(ctx, path, q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListProjects returns the names of every project on the site, walking the
// paginated project search. Used to enumerate the entities of a ticket
// comment harvest.
func (c *Client) ListProjects(ctx context.Context) ([]string, error) {
	var names []string
	for startAt := 0; ; {
		q := url.Values{}
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(searchPageSize))

		var result projectsResult
		if err := c.getJSON(ctx, "/rest/api/3/project/search", q, &result); err != nil {
			return nil, err
		}
		if len(result.Values) == 0 {
			return names, nil
		}
		for _, v := range result.Values {
			names = append(names, v.Name)
		}
		startAt += len(result.Values)
		if startAt >= result.Total {
			return names, nil
		}
	}
}

// stripDate reduces a Jira timestamp ("2019-07-12T10:24:43.727-0700") to
// its date. Unparseable input is passed through unchanged.
func stripDate(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02T15:04:05.000-0700", ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02")
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
