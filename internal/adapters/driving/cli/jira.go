package cli

import (
	"github.com/spf13/cobra"

	config "github.com/custodia-labs/harvest-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/harvest-cli/internal/connectors/jira"
	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

var jiraAssignmentsCmd = &cobra.Command{
	Use:   "jira-assignments",
	Short: "Harvest ticket assignments per roster member",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd, func(_ *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error) {
			if err := cfg.RequireJira(); err != nil {
				return nil, err
			}
			client := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.User, cfg.Jira.Token)
			return &harvestSetup{
				fetcher:  jira.NewAssignmentFetcher(client, roster),
				entities: memberEntities(roster, func(m *domain.Member) string { return m.Email }),
			}, nil
		})
	},
}

var jiraCommentsCmd = &cobra.Command{
	Use:   "jira-comments",
	Short: "Harvest ticket comments per project",
	Long: `Harvests roster comments on tickets created in the last 13 months,
walking every project on the site. Projects are independent, so they are
harvested concurrently through the worker pool (jira.workers).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHarvest(cmd, func(cmd *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error) {
			if err := cfg.RequireJira(); err != nil {
				return nil, err
			}
			client := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.User, cfg.Jira.Token)

			projects, err := client.ListProjects(cmd.Context())
			if err != nil {
				return nil, err
			}
			entities := make([]domain.Entity, 0, len(projects))
			for _, p := range projects {
				entities = append(entities, domain.Entity(p))
			}

			return &harvestSetup{
				fetcher:  jira.NewCommentFetcher(client, roster),
				entities: entities,
				workers:  cfg.Jira.Workers,
			}, nil
		})
	},
}

func init() {
	rootCmd.AddCommand(jiraAssignmentsCmd)
	rootCmd.AddCommand(jiraCommentsCmd)
}
