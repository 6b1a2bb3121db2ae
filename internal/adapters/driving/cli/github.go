package cli

import (
	"github.com/spf13/cobra"

	config "github.com/custodia-labs/harvest-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/harvest-cli/internal/connectors/github"
	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

var githubPRsCmd = &cobra.Command{
	Use:   "github-prs",
	Short: "Harvest merged pull requests per repository",
	Long: `Harvests merged pull requests from the configured repositories, one row
per merged pull request by a roster member, with review, comment and
changed-file counts. Open pull requests are tracked and drained on later
runs once they close.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd, func(_ *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error) {
			if err := cfg.RequireGitHub(); err != nil {
				return nil, err
			}
			fetcher := github.NewPullFetcher(github.NewClient(cfg.GitHub.Token), roster)
			return &harvestSetup{
				fetcher:  fetcher,
				items:    fetcher,
				entities: repoEntities(cfg.GitHub.Repos),
			}, nil
		})
	},
}

var githubCommentsCmd = &cobra.Command{
	Use:   "github-comments",
	Short: "Harvest pull-request review comments per repository",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd, func(_ *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error) {
			if err := cfg.RequireGitHub(); err != nil {
				return nil, err
			}
			return &harvestSetup{
				fetcher:  github.NewCommentFetcher(github.NewClient(cfg.GitHub.Token), roster),
				entities: repoEntities(cfg.GitHub.Repos),
			}, nil
		})
	},
}

var githubStatsCmd = &cobra.Command{
	Use:   "github-stats",
	Short: "Harvest weekly contributor statistics per repository",
	Long: `Harvests weekly commit, addition and deletion counts per roster
contributor. The provider recomputes the full history every time, so this
harvest is not incremental: each run rewrites the output.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd, func(_ *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error) {
			if err := cfg.RequireGitHub(); err != nil {
				return nil, err
			}
			return &harvestSetup{
				fetcher:  github.NewStatsFetcher(github.NewClient(cfg.GitHub.Token), roster),
				entities: repoEntities(cfg.GitHub.Repos),
			}, nil
		})
	},
}

func init() {
	rootCmd.AddCommand(githubPRsCmd)
	rootCmd.AddCommand(githubCommentsCmd)
	rootCmd.AddCommand(githubStatsCmd)
}
