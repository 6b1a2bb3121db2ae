package github

import (
	"context"
	"strconv"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// StatsFetcher harvests weekly contributor statistics per repository. The
// provider computes the full history server-side, so the harvest is not
// resumable: every run refetches everything and the sink is rewritten.
type StatsFetcher struct {
	client *Client
	roster *domain.Roster
}

func NewStatsFetcher(client *Client, roster *domain.Roster) *StatsFetcher {
	return &StatsFetcher{client: client, roster: roster}
}

func (f *StatsFetcher) Schema() domain.Schema {
	return domain.Schema{
		Name: "github-stats",
		Header: []string{
			"GithubId", "Email", "Name", "Title", "Repository",
			"Week", "Commits", "Additions", "Deletions",
		},
		EntityColumn: 4,
		IDColumn:     5,
	}
}

func (f *StatsFetcher) Capabilities() driven.Capabilities {
	return driven.Capabilities{}
}

// FetchPage returns the entire history as a single logical page. The second
// request per run sees a cursor past page one and terminates the stream.
func (f *StatsFetcher) FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error) {
	if cursor.Page > 1 {
		return &domain.Page{Next: cursor}, nil
	}

	owner, repo, err := splitRepo(entity)
	if err != nil {
		return nil, err
	}

	stats, err := f.client.contributorStats(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	logger.Debug("%s: stats for %d contributors", entity, len(stats))

	page := &domain.Page{Next: domain.Cursor{Page: 2}}
	for i, cs := range stats {
		login := cs.GetAuthor().GetLogin()
		item := &domain.Item{
			ID:     int64(i + 1),
			Author: login,
			State:  domain.ItemTerminal,
		}

		member, ok := f.roster.Lookup(login)
		if ok {
			for _, week := range cs.Weeks {
				if week.GetCommits() == 0 && week.GetAdditions() == 0 && week.GetDeletions() == 0 {
					continue
				}
				item.Records = append(item.Records, &domain.Record{
					Entity: entity,
					ID:     week.GetWeek().Unix(),
					Values: []string{
						member.GithubID, member.Email, member.Name, member.Title, string(entity),
						week.GetWeek().Format(timeLayout),
						strconv.Itoa(week.GetCommits()),
						strconv.Itoa(week.GetAdditions()),
						strconv.Itoa(week.GetDeletions()),
					},
				})
			}
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}
