package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/harvest-cli/internal/adapters/driven/sink/sqlite"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [harvest]",
	Short: "Show recent harvest runs",
	Long: `Shows recent run summaries, most recent first. Run history is only
recorded with the sqlite sink. An optional harvest name (e.g. github-prs)
filters the list.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Sink != "sqlite" {
			return fmt.Errorf("run history requires the sqlite sink (config has %q)", cfg.Sink)
		}

		store, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		harvest := ""
		if len(args) > 0 {
			harvest = args[0]
		}

		history, err := store.RunStore().History(cmd.Context(), harvest, runsLimit)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			cmd.Println("No runs recorded.")
			return nil
		}

		for _, sum := range history {
			status := "ok"
			if failed := sum.Failed(); failed > 0 {
				status = fmt.Sprintf("%d failed", failed)
			}
			cmd.Printf("%s  %-18s %6d rows  %-10s %s\n",
				sum.Started.Local().Format(time.DateTime),
				sum.Harvest, sum.Rows(), status,
				sum.Ended.Sub(sum.Started).Round(time.Second))
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs to show")
	rootCmd.AddCommand(runsCmd)
}
