package jira

import (
	"context"
	"fmt"
	"strconv"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// ticketWindow is the JQL window for ticket comment harvesting. Months, not
// days, so the boundary is stable across a month.
const ticketWindow = `created >= endOfMonth("-13M")`

// CommentFetcher harvests ticket comments per project. Entities are project
// names, enumerated up front via Client.ListProjects. Each item is one
// ticket (natural id = numeric issue id) carrying a row per roster comment;
// the ticket's own comment pages are walked in full inside the fetch, so a
// ticket is either fully emitted or not started.
//
// Projects are independent, which is what makes this harvest worth running
// through the worker pool.
type CommentFetcher struct {
	client *Client
	roster *domain.Roster
}

func NewCommentFetcher(client *Client, roster *domain.Roster) *CommentFetcher {
	return &CommentFetcher{client: client, roster: roster}
}

func (f *CommentFetcher) Schema() domain.Schema {
	return domain.Schema{
		Name: "jira-comments",
		Header: []string{
			"Author", "Email", "Title", "Project", "Ticket",
			"IssueId", "CommentId", "Created",
		},
		EntityColumn: 3,
		IDColumn:     5,
	}
}

func (f *CommentFetcher) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		Resumable:       true,
		Paginated:       true,
		OffsetPaginated: true,
		PageSize:        searchPageSize,
	}
}

func (f *CommentFetcher) FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error) {
	jql := fmt.Sprintf(`project="%s" and %s order by id asc`, entity, ticketWindow)
	result, err := f.client.search(ctx, jql, cursor.Offset)
	if err != nil {
		return nil, err
	}
	logger.Debug("jira comments %q: startAt=%d got %d of %d tickets",
		entity, result.StartAt, len(result.Issues), result.Total)

	page := &domain.Page{
		Next: domain.Cursor{Offset: result.StartAt + len(result.Issues)},
	}
	for i := range result.Issues {
		item, err := f.toItem(ctx, entity, &result.Issues[i])
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// toItem walks every comment page of one ticket and keeps the roster rows.
func (f *CommentFetcher) toItem(ctx context.Context, entity domain.Entity, iss *issue) (*domain.Item, error) {
	id, err := strconv.ParseInt(iss.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: issue id %q", domain.ErrMalformedResponse, iss.ID)
	}

	item := &domain.Item{ID: id, State: domain.ItemTerminal}
	for startAt := 0; ; {
		result, err := f.client.comments(ctx, iss.Key, startAt)
		if err != nil {
			return nil, err
		}
		for i := range result.Comments {
			if rec := f.toRecord(entity, iss, id, &result.Comments[i]); rec != nil {
				item.Records = append(item.Records, rec)
			}
		}
		startAt += len(result.Comments)
		if len(result.Comments) == 0 || startAt >= result.Total {
			return item, nil
		}
	}
}

// toRecord builds a row for a roster comment, or nil for anyone else.
func (f *CommentFetcher) toRecord(entity domain.Entity, iss *issue, id int64, c *comment) *domain.Record {
	member, ok := f.roster.Lookup(c.Author.Key())
	if !ok {
		// Some sites hide the email; fall back to the display name.
		member, ok = f.roster.Lookup(c.Author.DisplayName)
	}
	if !ok {
		return nil
	}

	return &domain.Record{
		Entity: entity,
		ID:     id,
		Values: []string{
			member.Name,
			member.Email,
			member.Title,
			string(entity),
			iss.Key,
			iss.ID,
			c.ID,
			stripDate(c.Created),
		},
	}
}
