package forum

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// PostFetcher harvests topics started by roster members. Entities are forum
// usernames; the natural id is the topic id. The topic listing is served
// newest first, so every run walks it from the first page and relies on the
// engine's id watermark. A 404 from the topics endpoint means the member
// never posted, which is an empty stream rather than a failure.
type PostFetcher struct {
	client     *Client
	roster     *domain.Roster
	categories *categoryIndex
}

func NewPostFetcher(client *Client, roster *domain.Roster) *PostFetcher {
	return &PostFetcher{
		client:     client,
		roster:     roster,
		categories: newCategoryIndex(client),
	}
}

func (f *PostFetcher) Schema() domain.Schema {
	return domain.Schema{
		Name: "forum-posts",
		Header: []string{
			"ForumId", "GithubId", "Email", "Name", "Title",
			"PostId", "Created", "Category", "Views", "Replies", "Likes",
		},
		EntityColumn: 0,
		IDColumn:     5,
	}
}

func (f *PostFetcher) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		Resumable:   true,
		Paginated:   true,
		NewestFirst: true,
	}
}

func (f *PostFetcher) FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error) {
	member, ok := f.roster.Lookup(string(entity))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not on the roster", domain.ErrInvalidInput, entity)
	}

	// The topics endpoint pages from zero.
	q := url.Values{}
	q.Set("page", strconv.Itoa(cursor.Page))

	var result topicsResult
	path := "/topics/created-by/" + url.PathEscape(string(entity)) + ".json"
	err := f.client.getJSON(ctx, path, q, &result)
	if errors.Is(err, domain.ErrEntityNotFound) {
		logger.Debug("forum posts: %q has no topics", entity)
		return &domain.Page{Next: cursor}, nil
	}
	if err != nil {
		return nil, err
	}

	topics := result.TopicList.Topics
	logger.Debug("forum posts %q: page %d returned %d topics", entity, cursor.Page, len(topics))

	page := &domain.Page{Next: domain.Cursor{Page: cursor.Page + 1}}
	for i := range topics {
		item, err := f.toItem(ctx, entity, member, &topics[i])
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (f *PostFetcher) toItem(ctx context.Context, entity domain.Entity, member *domain.Member, t *topic) (*domain.Item, error) {
	categoryName, err := f.categories.Name(ctx, t.CategoryID)
	if err != nil {
		return nil, err
	}

	return &domain.Item{
		ID:     t.ID,
		Author: member.ForumID,
		State:  domain.ItemTerminal,
		Records: []*domain.Record{{
			Entity: entity,
			ID:     t.ID,
			Values: []string{
				string(entity),
				member.GithubID,
				member.Email,
				member.Name,
				member.Title,
				strconv.FormatInt(t.ID, 10),
				stripDate(t.CreatedAt),
				categoryName,
				strconv.Itoa(t.Views),
				// The topic's own first post does not count as a reply.
				strconv.Itoa(t.PostsCount - 1),
				strconv.Itoa(t.LikeCount),
			},
		}},
	}, nil
}
