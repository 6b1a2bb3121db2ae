package cli

import (
	"github.com/spf13/cobra"

	config "github.com/custodia-labs/harvest-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/harvest-cli/internal/connectors/forum"
	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

var forumPostsCmd = &cobra.Command{
	Use:   "forum-posts",
	Short: "Harvest forum topics started by roster members",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd, func(_ *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error) {
			if err := cfg.RequireForum(); err != nil {
				return nil, err
			}
			client := forum.NewClient(cfg.Forum.BaseURL, cfg.Forum.APIKey)
			return &harvestSetup{
				fetcher:  forum.NewPostFetcher(client, roster),
				entities: memberEntities(roster, func(m *domain.Member) string { return m.ForumID }),
			}, nil
		})
	},
}

var forumRepliesCmd = &cobra.Command{
	Use:   "forum-replies",
	Short: "Harvest forum replies written by roster members",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd, func(_ *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error) {
			if err := cfg.RequireForum(); err != nil {
				return nil, err
			}
			client := forum.NewClient(cfg.Forum.BaseURL, cfg.Forum.APIKey)
			return &harvestSetup{
				fetcher:  forum.NewReplyFetcher(client, roster),
				entities: memberEntities(roster, func(m *domain.Member) string { return m.ForumID }),
			}, nil
		})
	},
}

func init() {
	rootCmd.AddCommand(forumPostsCmd)
	rootCmd.AddCommand(forumRepliesCmd)
}
