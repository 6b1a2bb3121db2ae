package jira

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// AssignmentFetcher harvests ticket assignments per roster member. Entities
// are roster identity keys (email or name); the natural id is the numeric
// issue id, which Jira allocates in creation order.
//
// Jira matches assignees by email on some sites and by display name on
// others. The first page per member is queried by email; a response carrying
// warningMessages means the email form failed, and the query falls back to
// the display name. A member failing both forms has no data.
type AssignmentFetcher struct {
	client *Client
	roster *domain.Roster

	// mu guards identity, the resolved assignee term per member.
	mu       sync.Mutex
	identity map[domain.Entity]string
}

func NewAssignmentFetcher(client *Client, roster *domain.Roster) *AssignmentFetcher {
	return &AssignmentFetcher{
		client:   client,
		roster:   roster,
		identity: make(map[domain.Entity]string),
	}
}

func (f *AssignmentFetcher) Schema() domain.Schema {
	return domain.Schema{
		Name: "jira-assignments",
		Header: []string{
			"Member", "Assignee", "IssueId", "Reporter", "Project", "Ticket",
			"Created", "Resolved", "Status", "Summary", "Email", "Title",
		},
		EntityColumn: 0,
		IDColumn:     2,
	}
}

func (f *AssignmentFetcher) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		Resumable:       true,
		Paginated:       true,
		OffsetPaginated: true,
		PageSize:        searchPageSize,
	}
}

func (f *AssignmentFetcher) FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error) {
	member, ok := f.roster.Lookup(string(entity))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not on the roster", domain.ErrInvalidInput, entity)
	}

	term := f.term(entity, member)
	result, err := f.client.search(ctx, assignmentJQL(term), cursor.Offset)
	if err != nil {
		return nil, err
	}

	if len(result.WarningMessages) > 0 {
		if strings.EqualFold(term, member.Name) {
			// Both email and name failed. The member has no queryable data.
			logger.Warn("jira assignments: no assignee match for %q (tried email and name)", entity)
			return nil, domain.ErrEntityNotFound
		}
		logger.Debug("jira assignments: email query failed for %q, retrying by name", entity)
		f.setTerm(entity, member.Name)
		return f.FetchPage(ctx, entity, cursor)
	}

	logger.Debug("jira assignments %q: startAt=%d got %d of %d",
		entity, result.StartAt, len(result.Issues), result.Total)

	page := &domain.Page{
		Next: domain.Cursor{Offset: result.StartAt + len(result.Issues)},
	}
	for i := range result.Issues {
		item, err := f.toItem(entity, member, &result.Issues[i])
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

func (f *AssignmentFetcher) toItem(entity domain.Entity, member *domain.Member, iss *issue) (*domain.Item, error) {
	id, err := strconv.ParseInt(iss.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: issue id %q", domain.ErrMalformedResponse, iss.ID)
	}

	return &domain.Item{
		ID:     id,
		Author: member.Email,
		State:  domain.ItemTerminal,
		Records: []*domain.Record{{
			Entity: entity,
			ID:     id,
			Values: []string{
				string(entity),
				member.Name,
				iss.ID,
				iss.Fields.Reporter.Key(),
				iss.Fields.Project.Name,
				iss.Key,
				stripDate(iss.Fields.Created),
				stripDate(iss.Fields.ResolutionDate),
				iss.Fields.Status.Name,
				strings.TrimSpace(iss.Fields.Summary),
				member.Email,
				member.Title,
			},
		}},
	}, nil
}

// term returns the assignee search term currently in use for a member.
func (f *AssignmentFetcher) term(entity domain.Entity, member *domain.Member) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.identity[entity]; ok {
		return t
	}
	return strings.ToLower(member.Email)
}

func (f *AssignmentFetcher) setTerm(entity domain.Entity, term string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity[entity] = strings.ToLower(term)
}

// assignmentJQL orders by id so the stream ascends with the watermark.
func assignmentJQL(assignee string) string {
	return fmt.Sprintf("assignee='%s' order by id asc", assignee)
}
