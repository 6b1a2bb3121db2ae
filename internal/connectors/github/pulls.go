package github

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// timeLayout formats timestamps in output rows.
const timeLayout = time.RFC3339

// fileBuckets are the changed-file extension buckets reported per merged
// pull request, in column order. Anything else lands in "other".
var fileBuckets = []string{"py", "json", "js", "md", "jsx", "ts", "tsx", "csv", "jpg", "svg"}

// PullFetcher harvests merged pull requests per repository. Entities are
// "owner/repo" slugs. Open pull requests are deferred for draining on later
// runs; closed-unmerged pull requests advance the cursor without a row.
type PullFetcher struct {
	client *Client
	roster *domain.Roster
}

func NewPullFetcher(client *Client, roster *domain.Roster) *PullFetcher {
	return &PullFetcher{client: client, roster: roster}
}

func (f *PullFetcher) Schema() domain.Schema {
	header := []string{
		"GithubId", "Email", "Name", "Title", "Repository",
		"Created", "Closed", "PullNumber", "Reviews", "Comments",
	}
	for _, b := range fileBuckets {
		header = append(header, strings.ToUpper(b[:1])+b[1:]+"Files")
	}
	header = append(header, "OtherFiles")
	return domain.Schema{
		Name:         "github-prs",
		Header:       header,
		EntityColumn: 4,
		IDColumn:     7,
	}
}

func (f *PullFetcher) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		Resumable:       true,
		TracksOpenItems: true,
		Paginated:       true,
	}
}

func (f *PullFetcher) FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error) {
	owner, repo, err := splitRepo(entity)
	if err != nil {
		return nil, err
	}

	reqPage := cursor.Page
	if reqPage < 1 {
		reqPage = 1
	}

	pulls, err := f.client.listPulls(ctx, owner, repo, reqPage)
	if err != nil {
		return nil, err
	}
	logger.Debug("%s: page %d returned %d pull requests", entity, reqPage, len(pulls))

	page := &domain.Page{Next: domain.Cursor{Page: reqPage + 1}}
	for _, pr := range pulls {
		item, err := f.classify(ctx, entity, owner, repo, pr)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (f *PullFetcher) FetchItem(ctx context.Context, entity domain.Entity, id int64) (*domain.Item, error) {
	owner, repo, err := splitRepo(entity)
	if err != nil {
		return nil, err
	}
	pr, err := f.client.getPull(ctx, owner, repo, int(id))
	if err != nil {
		return nil, err
	}
	return f.classify(ctx, entity, owner, repo, pr)
}

// classify maps one pull request onto an item. Sub-requests for review,
// comment and changed-file counts are only issued for merged pull requests
// authored by roster members.
func (f *PullFetcher) classify(
	ctx context.Context, entity domain.Entity, owner, repo string, pr *gh.PullRequest,
) (*domain.Item, error) {
	number := int64(pr.GetNumber())
	login := pr.GetUser().GetLogin()

	if pr.ClosedAt == nil {
		return &domain.Item{ID: number, Author: login, State: domain.ItemOpen}, nil
	}
	if pr.MergedAt == nil {
		return &domain.Item{ID: number, Author: login, State: domain.ItemSkip}, nil
	}

	member, ok := f.roster.Lookup(login)
	if !ok {
		// Still terminal so the cursor moves past it; the membership filter
		// drops it without a row.
		return &domain.Item{ID: number, Author: login, State: domain.ItemTerminal}, nil
	}

	reviews, err := f.client.countReviews(ctx, owner, repo, int(number))
	if err != nil {
		return nil, err
	}
	comments, err := f.client.countPullComments(ctx, owner, repo, int(number))
	if err != nil {
		return nil, err
	}
	files, err := f.client.listChangedFiles(ctx, owner, repo, int(number))
	if err != nil {
		return nil, err
	}

	values := []string{
		member.GithubID, member.Email, member.Name, member.Title, string(entity),
		pr.GetCreatedAt().Format(timeLayout),
		pr.GetClosedAt().Format(timeLayout),
		strconv.FormatInt(number, 10),
		strconv.Itoa(reviews),
		strconv.Itoa(comments),
	}
	values = append(values, bucketFiles(files)...)

	return &domain.Item{
		ID:     number,
		Author: login,
		State:  domain.ItemTerminal,
		Records: []*domain.Record{{
			Entity: entity,
			ID:     number,
			Values: values,
		}},
	}, nil
}

// bucketFiles counts changed files per extension bucket, returning one
// column per bucket plus the trailing "other" column.
func bucketFiles(names []string) []string {
	counts := make(map[string]int, len(fileBuckets)+1)
	for _, name := range names {
		ext := strings.TrimPrefix(path.Ext(name), ".")
		bucket := "other"
		for _, b := range fileBuckets {
			if ext == b {
				bucket = b
				break
			}
		}
		counts[bucket]++
	}
	cols := make([]string, 0, len(fileBuckets)+1)
	for _, b := range fileBuckets {
		cols = append(cols, strconv.Itoa(counts[b]))
	}
	return append(cols, strconv.Itoa(counts["other"]))
}

// splitRepo parses an "owner/repo" entity slug.
func splitRepo(entity domain.Entity) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(string(entity), "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("%w: repository %q is not owner/repo", domain.ErrInvalidInput, entity)
	}
	return owner, repo, nil
}
