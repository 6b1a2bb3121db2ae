package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

const (
	// DefaultTimeout is the HTTP request timeout. Generous because
	// contributor-stats responses can take a while to assemble server-side.
	DefaultTimeout = 30 * time.Second

	// PerPage is the page size for all paginated GitHub requests.
	PerPage = 100

	// maxRetryInterval caps the exponential pause between transport
	// retries. Retries themselves are unbounded: the engine would rather
	// wait out an outage than lose its place in the stream.
	maxRetryInterval = 2 * time.Minute

	// statsRetryDelay is the pause before re-polling a 202 Accepted
	// contributor-stats response while GitHub computes it.
	statsRetryDelay = 5 * time.Second
)

// Client wraps the go-github client with rate limiting and retry handling
// shared by the GitHub fetchers.
type Client struct {
	gh          *gh.Client
	rateLimiter *RateLimiter
}

// NewClient creates a GitHub API client authenticated with a static token.
func NewClient(token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultTimeout
	return &Client{
		gh:          gh.NewClient(tc),
		rateLimiter: NewRateLimiter(),
	}
}

// NewClientWithBase creates a client against a non-default API base URL.
// Used by tests to point at a fake server.
func NewClientWithBase(token, baseURL string) (*Client, error) {
	c := NewClient(token)
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	c.gh.BaseURL = u
	return c, nil
}

// call issues one API request through fn, repeating it until it succeeds or
// fails terminally. A throttled request waits out the provider-indicated
// reset and repeats; a transport failure repeats after a capped exponential
// pause; the request (and therefore the cursor) is never advanced on
// failure.
func (c *Client) call(ctx context.Context, desc string, fn func() (*gh.Response, error)) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = maxRetryInterval
	bo.MaxElapsedTime = 0 // retry indefinitely

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := fn()
		if resp != nil {
			if terr := c.rateLimiter.CheckThrottle(resp.Response); terr != nil && err == nil {
				err = terr
			}
		}
		if err == nil {
			bo.Reset()
			return nil
		}

		switch terr := classify(err); {
		case terr == nil:
			// Throttled: wait for the reset, then repeat the same request.
			var rle *gh.RateLimitError
			var abuse *gh.AbuseRateLimitError
			var local *RateLimitError
			deadline := time.Now().Add(ResetMargin)
			if errors.As(err, &rle) {
				deadline = rle.Rate.Reset.Time.Add(ResetMargin)
			} else if errors.As(err, &abuse) && abuse.RetryAfter != nil {
				deadline = time.Now().Add(*abuse.RetryAfter)
			} else if errors.As(err, &local) {
				deadline = local.ResetAt.Add(ResetMargin)
			}
			logger.Info("%s: throttled, retrying at %s", desc, deadline.Format(time.RFC3339))
			if err := sleepUntil(ctx, deadline); err != nil {
				return err
			}

		case errors.Is(terr, errTransient):
			wait := bo.NextBackOff()
			logger.Warn("%s: transient failure (%v), retrying in %s", desc, err, wait)
			if err := sleepUntil(ctx, time.Now().Add(wait)); err != nil {
				return err
			}

		default:
			return terr
		}
	}
}

// errTransient marks retriable transport-level failures.
var errTransient = errors.New("transient network failure")

// classify maps a go-github error onto the engine's taxonomy. A nil return
// means the request was throttled and should be repeated after a wait.
func classify(err error) error {
	var (
		rle     *gh.RateLimitError
		abuse   *gh.AbuseRateLimitError
		local   *RateLimitError
		ghe     *gh.ErrorResponse
		urlErr  *url.Error
		synErr  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &rle), errors.As(err, &abuse), errors.As(err, &local):
		return nil
	case errors.As(err, &ghe):
		switch ghe.Response.StatusCode {
		case http.StatusNotFound, http.StatusGone:
			return domain.ErrEntityNotFound
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return errTransient
		default:
			return &APIError{StatusCode: ghe.Response.StatusCode, Message: ghe.Message}
		}
	case errors.As(err, &synErr), errors.As(err, &typeErr):
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &urlErr):
		// Includes request timeouts. The pause before the retry checks the
		// caller's context, so a canceled harvest still stops promptly.
		return errTransient
	default:
		return errTransient
	}
}

// listPulls fetches one page of pull requests, oldest first.
func (c *Client) listPulls(ctx context.Context, owner, repo string, page int) ([]*gh.PullRequest, error) {
	var pulls []*gh.PullRequest
	opts := &gh.PullRequestListOptions{
		State:     "all",
		Sort:      "created",
		Direction: "asc",
		ListOptions: gh.ListOptions{
			Page:    page,
			PerPage: PerPage,
		},
	}
	err := c.call(ctx, fmt.Sprintf("pulls %s/%s page %d", owner, repo, page), func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		pulls, resp, err = c.gh.PullRequests.List(ctx, owner, repo, opts)
		return resp, err
	})
	return pulls, err
}

// getPull fetches a single pull request by number.
func (c *Client) getPull(ctx context.Context, owner, repo string, number int) (*gh.PullRequest, error) {
	var pull *gh.PullRequest
	err := c.call(ctx, fmt.Sprintf("pull %s/%s#%d", owner, repo, number), func() (*gh.Response, error) {
		var resp *gh.Response
		var err error
		pull, resp, err = c.gh.PullRequests.Get(ctx, owner, repo, number)
		return resp, err
	})
	return pull, err
}

// countReviews returns the total number of reviews on a pull request.
func (c *Client) countReviews(ctx context.Context, owner, repo string, number int) (int, error) {
	count := 0
	for page := 1; ; page++ {
		var reviews []*gh.PullRequestReview
		opts := &gh.ListOptions{Page: page, PerPage: PerPage}
		err := c.call(ctx, fmt.Sprintf("reviews %s/%s#%d page %d", owner, repo, number, page),
			func() (*gh.Response, error) {
				var resp *gh.Response
				var err error
				reviews, resp, err = c.gh.PullRequests.ListReviews(ctx, owner, repo, number, opts)
				return resp, err
			})
		if err != nil {
			return 0, err
		}
		if len(reviews) == 0 {
			return count, nil
		}
		count += len(reviews)
	}
}

// countPullComments returns the total number of review comments on a pull
// request.
func (c *Client) countPullComments(ctx context.Context, owner, repo string, number int) (int, error) {
	count := 0
	for page := 1; ; page++ {
		var comments []*gh.PullRequestComment
		opts := &gh.PullRequestListCommentsOptions{
			ListOptions: gh.ListOptions{Page: page, PerPage: PerPage},
		}
		err := c.call(ctx, fmt.Sprintf("pull comments %s/%s#%d page %d", owner, repo, number, page),
			func() (*gh.Response, error) {
				var resp *gh.Response
				var err error
				comments, resp, err = c.gh.PullRequests.ListComments(ctx, owner, repo, number, opts)
				return resp, err
			})
		if err != nil {
			return 0, err
		}
		if len(comments) == 0 {
			return count, nil
		}
		count += len(comments)
	}
}

// listChangedFiles returns the file names changed by a pull request.
func (c *Client) listChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		var files []*gh.CommitFile
		opts := &gh.ListOptions{Page: page, PerPage: PerPage}
		err := c.call(ctx, fmt.Sprintf("files %s/%s#%d page %d", owner, repo, number, page),
			func() (*gh.Response, error) {
				var resp *gh.Response
				var err error
				files, resp, err = c.gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
				return resp, err
			})
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return names, nil
		}
		for _, f := range files {
			names = append(names, f.GetFilename())
		}
	}
}

// listReviewComments fetches one page of a repository's pull-request review
// comments created since the given time, oldest first.
func (c *Client) listReviewComments(
	ctx context.Context, owner, repo string, since time.Time, page int,
) ([]*gh.PullRequestComment, error) {
	var comments []*gh.PullRequestComment
	opts := &gh.PullRequestListCommentsOptions{
		Since:     since,
		Sort:      "created",
		Direction: "asc",
		ListOptions: gh.ListOptions{
			Page:    page,
			PerPage: PerPage,
		},
	}
	err := c.call(ctx, fmt.Sprintf("review comments %s/%s page %d", owner, repo, page),
		func() (*gh.Response, error) {
			var resp *gh.Response
			var err error
			// Number 0 lists review comments across the whole repository.
			comments, resp, err = c.gh.PullRequests.ListComments(ctx, owner, repo, 0, opts)
			return resp, err
		})
	return comments, err
}

// contributorStats fetches weekly contributor statistics, polling through
// GitHub's 202 Accepted while the stats are computed server-side.
func (c *Client) contributorStats(ctx context.Context, owner, repo string) ([]*gh.ContributorStats, error) {
	var stats []*gh.ContributorStats
	for {
		var accepted bool
		err := c.call(ctx, fmt.Sprintf("contributor stats %s/%s", owner, repo), func() (*gh.Response, error) {
			var resp *gh.Response
			var err error
			stats, resp, err = c.gh.Repositories.ListContributorsStats(ctx, owner, repo)
			var acceptedErr *gh.AcceptedError
			if errors.As(err, &acceptedErr) {
				accepted = true
				return resp, nil
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		if !accepted {
			return stats, nil
		}
		logger.Debug("contributor stats %s/%s not ready, polling again", owner, repo)
		if err := sleepUntil(ctx, time.Now().Add(statsRetryDelay)); err != nil {
			return nil, err
		}
	}
}
