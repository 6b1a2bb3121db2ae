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

// repliesFilter selects replies in the user_actions feed (4 would be
// topics).
const repliesFilter = "5"

// repliesBatchSize is requested explicitly so the offset arithmetic and
// the unreadable-page skip stride agree with what the server returns.
const repliesBatchSize = 30

// ReplyFetcher harvests replies written by roster members through the
// user_actions feed. Entities are forum usernames; the natural id is the
// reply's own post id. The feed is served newest first and its offsets
// shift as the member keeps posting, so every run rescans from offset zero
// and the engine's id watermark filters out replies already written.
type ReplyFetcher struct {
	client     *Client
	roster     *domain.Roster
	categories *categoryIndex
}

func NewReplyFetcher(client *Client, roster *domain.Roster) *ReplyFetcher {
	return &ReplyFetcher{
		client:     client,
		roster:     roster,
		categories: newCategoryIndex(client),
	}
}

func (f *ReplyFetcher) Schema() domain.Schema {
	return domain.Schema{
		Name: "forum-replies",
		Header: []string{
			"ForumId", "GithubId", "Email", "Name", "Title",
			"TopicId", "ReplyId", "Created", "Category", "Solution",
		},
		EntityColumn: 0,
		IDColumn:     6,
	}
}

func (f *ReplyFetcher) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		Resumable:       true,
		Paginated:       true,
		OffsetPaginated: true,
		NewestFirst:     true,
		PageSize:        repliesBatchSize,
	}
}

func (f *ReplyFetcher) FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error) {
	member, ok := f.roster.Lookup(string(entity))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not on the roster", domain.ErrInvalidInput, entity)
	}

	q := url.Values{}
	q.Set("username", string(entity))
	q.Set("filter", repliesFilter)
	q.Set("offset", strconv.Itoa(cursor.Offset))
	q.Set("limit", strconv.Itoa(repliesBatchSize))

	var result userActionsResult
	err := f.client.getJSON(ctx, "/user_actions.json", q, &result)
	if errors.Is(err, domain.ErrEntityNotFound) {
		logger.Debug("forum replies: %q has no activity", entity)
		return &domain.Page{Next: cursor}, nil
	}
	if err != nil {
		return nil, err
	}

	replies := result.UserActions
	logger.Debug("forum replies %q: offset %d returned %d actions", entity, cursor.Offset, len(replies))

	page := &domain.Page{Next: domain.Cursor{Offset: cursor.Offset + len(replies)}}
	for i := range replies {
		item, err := f.toItem(ctx, entity, member, &replies[i])
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (f *ReplyFetcher) toItem(ctx context.Context, entity domain.Entity, member *domain.Member, r *userAction) (*domain.Item, error) {
	categoryName, err := f.categories.Name(ctx, r.CategoryID)
	if err != nil {
		return nil, err
	}
	accepted, err := f.isAcceptedAnswer(ctx, r.PostID)
	if err != nil {
		return nil, err
	}
	solution := "0"
	if accepted {
		solution = "1"
	}

	return &domain.Item{
		ID:     r.PostID,
		Author: member.ForumID,
		State:  domain.ItemTerminal,
		Records: []*domain.Record{{
			Entity: entity,
			ID:     r.PostID,
			Values: []string{
				string(entity),
				member.GithubID,
				member.Email,
				member.Name,
				member.Title,
				strconv.FormatInt(r.TopicID, 10),
				strconv.FormatInt(r.PostID, 10),
				stripDate(r.CreatedAt),
				categoryName,
				solution,
			},
		}},
	}, nil
}

// isAcceptedAnswer checks whether a reply was marked as the topic's
// solution. A 404 means the action points at a topic rather than a post,
// which is never a solution.
func (f *ReplyFetcher) isAcceptedAnswer(ctx context.Context, postID int64) (bool, error) {
	var result postResult
	path := "/posts/" + strconv.FormatInt(postID, 10) + ".json"
	err := f.client.getJSON(ctx, path, nil, &result)
	if errors.Is(err, domain.ErrEntityNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result.AcceptedAnswer, nil
}
