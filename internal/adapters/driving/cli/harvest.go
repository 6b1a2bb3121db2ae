package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	checkpointfile "github.com/custodia-labs/harvest-cli/internal/adapters/driven/checkpoint/file"
	config "github.com/custodia-labs/harvest-cli/internal/adapters/driven/config/file"
	rosterfile "github.com/custodia-labs/harvest-cli/internal/adapters/driven/roster/file"
	csvsink "github.com/custodia-labs/harvest-cli/internal/adapters/driven/sink/csv"
	"github.com/custodia-labs/harvest-cli/internal/adapters/driven/sink/sqlite"
	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/core/services"
)

// harvestSetup is what a harvest subcommand contributes to the shared
// wiring: the fetcher pair, the entity list and the worker bound.
type harvestSetup struct {
	fetcher  driven.PageFetcher
	items    driven.ItemFetcher
	entities []domain.Entity
	workers  int
}

// runHarvest performs the wiring every harvest subcommand shares: load
// config and roster, let the subcommand build its fetcher and entities,
// open the checkpoint store and the configured sink, run the engine and
// print the summary.
func runHarvest(
	cmd *cobra.Command,
	build func(cmd *cobra.Command, cfg *config.Config, roster *domain.Roster) (*harvestSetup, error),
) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	roster, err := rosterfile.Load(cfg.Roster)
	if err != nil {
		return err
	}

	setup, err := build(cmd, cfg, roster)
	if err != nil {
		return err
	}
	if len(setup.entities) == 0 {
		return fmt.Errorf("nothing to harvest: no entities configured")
	}

	schema := setup.fetcher.Schema()
	// Non-resumable harvests refetch everything, so stale output goes.
	truncate := !setup.fetcher.Capabilities().Resumable

	checkpoints, err := checkpointfile.NewStore(cfg.OutputDir, schema.Name)
	if err != nil {
		return err
	}

	var (
		sink driven.RecordSink
		runs driven.RunStore
	)
	switch cfg.Sink {
	case "sqlite":
		store, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()
		if sink, err = store.RecordSink(schema, truncate); err != nil {
			return err
		}
		runs = store.RunStore()
	default:
		s, err := csvsink.Open(cfg.OutputDir, schema, truncate)
		if err != nil {
			return err
		}
		sink = s
	}
	defer sink.Close()

	h, err := services.NewHarvester(services.HarvesterConfig{
		Entities:    setup.entities,
		Fetcher:     setup.fetcher,
		Items:       setup.items,
		Checkpoints: checkpoints,
		Sink:        sink,
		Roster:      roster,
		Runs:        runs,
		Workers:     setup.workers,
	})
	if err != nil {
		return err
	}

	sum, err := h.Run(cmd.Context())
	if sum != nil {
		printSummary(cmd, sum)
	}
	if err != nil {
		return err
	}
	if failed := sum.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d entities failed", failed, len(sum.Outcomes))
	}
	return nil
}

func printSummary(cmd *cobra.Command, sum *domain.RunSummary) {
	cmd.Printf("%s: %d rows across %d entities in %s\n",
		sum.Harvest, sum.Rows(), len(sum.Outcomes), sum.Ended.Sub(sum.Started).Round(time.Second))
	for _, o := range sum.Outcomes {
		switch {
		case !o.Completed:
			cmd.Printf("  %-30s FAILED: %s\n", o.Entity, o.Err)
		case o.Pending > 0:
			cmd.Printf("  %-30s %d rows, %d still open\n", o.Entity, o.Rows, o.Pending)
		default:
			cmd.Printf("  %-30s %d rows\n", o.Entity, o.Rows)
		}
	}
}

// repoEntities converts the configured repository slugs.
func repoEntities(repos []string) []domain.Entity {
	entities := make([]domain.Entity, 0, len(repos))
	for _, r := range repos {
		entities = append(entities, domain.Entity(r))
	}
	return entities
}

// memberEntities picks one identity key per roster member, skipping members
// without one.
func memberEntities(roster *domain.Roster, key func(*domain.Member) string) []domain.Entity {
	var entities []domain.Entity
	for _, m := range roster.Members() {
		if k := key(m); k != "" {
			entities = append(entities, domain.Entity(k))
		}
	}
	return entities
}
