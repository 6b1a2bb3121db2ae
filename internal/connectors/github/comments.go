package github

import (
	"context"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// commentWindow bounds how far back review comments are harvested.
const commentWindow = 365 * 24 * time.Hour

// CommentFetcher harvests pull-request review comments per repository,
// newest window first request, oldest comment first within it. Entities are
// "owner/repo" slugs; the natural id is the comment id.
type CommentFetcher struct {
	client *Client
	roster *domain.Roster

	// now is swappable for tests.
	now func() time.Time
}

func NewCommentFetcher(client *Client, roster *domain.Roster) *CommentFetcher {
	return &CommentFetcher{client: client, roster: roster, now: time.Now}
}

func (f *CommentFetcher) Schema() domain.Schema {
	return domain.Schema{
		Name: "github-comments",
		Header: []string{
			"GithubId", "Email", "Name", "Title", "Repository",
			"PullNumber", "CommentId", "Created",
		},
		EntityColumn: 4,
		IDColumn:     6,
	}
}

func (f *CommentFetcher) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		Resumable: true,
		Paginated: true,
	}
}

func (f *CommentFetcher) FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error) {
	owner, repo, err := splitRepo(entity)
	if err != nil {
		return nil, err
	}

	reqPage := cursor.Page
	if reqPage < 1 {
		reqPage = 1
	}
	since := f.now().Add(-commentWindow)

	comments, err := f.client.listReviewComments(ctx, owner, repo, since, reqPage)
	if err != nil {
		return nil, err
	}
	logger.Debug("%s: page %d returned %d review comments", entity, reqPage, len(comments))

	page := &domain.Page{Next: domain.Cursor{Page: reqPage + 1}}
	for _, c := range comments {
		page.Items = append(page.Items, f.classify(entity, c))
	}
	return page, nil
}

func (f *CommentFetcher) classify(entity domain.Entity, c *gh.PullRequestComment) *domain.Item {
	id := c.GetID()
	login := c.GetUser().GetLogin()

	member, ok := f.roster.Lookup(login)
	if !ok {
		return &domain.Item{ID: id, Author: login, State: domain.ItemTerminal}
	}

	return &domain.Item{
		ID:     id,
		Author: login,
		State:  domain.ItemTerminal,
		Records: []*domain.Record{{
			Entity: entity,
			ID:     id,
			Values: []string{
				member.GithubID, member.Email, member.Name, member.Title, string(entity),
				strconv.Itoa(pullNumberFromURL(c.GetPullRequestURL())),
				strconv.FormatInt(id, 10),
				c.GetCreatedAt().Format(timeLayout),
			},
		}},
	}
}

// pullNumberFromURL extracts the pull number from an API URL such as
// ".../repos/o/r/pulls/42". Returns 0 when the URL does not parse.
func pullNumberFromURL(u string) int {
	idx := strings.LastIndexByte(u, '/')
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(u[idx+1:])
	if err != nil {
		return 0
	}
	return n
}
