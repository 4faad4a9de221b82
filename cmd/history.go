/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/digestran/internal/config"
	"github.com/valpere/digestran/internal/store"
)

var (
	historyFile  string
	historySince string
	historyUntil string
	historyLimit uint64
	historyDate  string
	pruneDays    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and prune stored digests and runs",
	Long:  `List, show, and prune translated digests and run records kept in the SQLite history database.`,
}

// historyStore reads the config file for the database path only, so that
// history commands work without provider credentials.
func historyStore() (*store.Store, error) {
	if err := config.ReadFile(v, cfgFile); err != nil {
		return nil, err
	}
	return openStore(v.GetString("db"))
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored digests, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := historyStore()
		if err != nil {
			return err
		}
		defer db.Close()

		digests, err := db.ListDigests(context.Background(), store.DigestFilter{
			FilePath: historyFile,
			Since:    historySince,
			Until:    historyUntil,
			Limit:    historyLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list digests: %w", err)
		}

		if len(digests) == 0 {
			fmt.Println("No digests stored.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tFILE\tSECTIONS\tUPLOADED\tRUN")
		for _, d := range digests {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				d.ID, d.Date, d.FilePath, d.Sections,
				d.UploadedAt.Format("2006-01-02 15:04"), d.RunID)
		}
		return w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the digest stored for a file on a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := historyStore()
		if err != nil {
			return err
		}
		defer db.Close()

		date := historyDate
		if date == "" {
			loc, err := time.LoadLocation(v.GetString("timezone"))
			if err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}
			date = time.Now().In(loc).Format("2006-01-02")
		}

		d, found, err := db.GetDigest(context.Background(), args[0], date)
		if err != nil {
			return fmt.Errorf("failed to load digest: %w", err)
		}
		if !found {
			return fmt.Errorf("no digest for %s on %s", args[0], date)
		}
		fmt.Println(d.Content)
		return nil
	},
}

var historyRunsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recent runs, or the chunk outcomes of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := historyStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		if len(args) == 1 {
			outcomes, err := db.ChunkOutcomes(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}
			if len(outcomes) == 0 {
				return fmt.Errorf("no chunks recorded for run %s", args[0])
			}
			fmt.Fprintln(w, "CHUNK\tSTATUS\tMODEL\tATTEMPTS\tDURATION\tERROR")
			for _, c := range outcomes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					c.ChunkID, c.Status, c.Model, c.Attempts, c.Duration, c.Error)
			}
			return w.Flush()
		}

		runs, err := db.ListRuns(ctx, historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		fmt.Fprintln(w, "ID\tSTARTED\tINPUT\tTOTAL\tOK\tFAILED\tRATE\tPRIMARY\tFALLBACK")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.1f%%\t%s\t%s\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.InputPath,
				r.Total, r.Completed, r.Failed, r.SuccessRate, r.PrimaryModel, r.FallbackModel)
		}
		return w.Flush()
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := historyStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Digests:          %d\n", stats.Digests)
		if stats.Digests > 0 {
			fmt.Printf("Date range:       %s .. %s\n", stats.OldestDate, stats.NewestDate)
		}
		fmt.Printf("Runs:             %d\n", stats.Runs)
		fmt.Printf("Chunks:           %d\n", stats.ChunksTotal)
		fmt.Printf("Failed chunks:    %d\n", stats.ChunksFailed)
		fmt.Printf("Avg success rate: %.1f%%\n", stats.AvgSuccessRate)
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete digests and runs older than the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := historyStore()
		if err != nil {
			return err
		}
		defer db.Close()

		days := pruneDays
		if !cmd.Flags().Changed("older-than") {
			days = v.GetInt("retention_days")
		}
		if days <= 0 {
			return fmt.Errorf("retention must be at least one day, got %d", days)
		}

		n, err := db.PruneOlderThan(context.Background(), time.Now().AddDate(0, 0, -days))
		if err != nil {
			return fmt.Errorf("failed to prune: %w", err)
		}
		fmt.Printf("Pruned %d digests older than %d days.\n", n, days)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored digest by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := historyStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteDigest(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete digest: %w", err)
		}
		fmt.Printf("Deleted digest: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().StringVar(&historyFile, "file", "", "Only digests of this output file")
	historyListCmd.Flags().StringVar(&historySince, "since", "", "Earliest date (YYYY-MM-DD)")
	historyListCmd.Flags().StringVar(&historyUntil, "until", "", "Latest date (YYYY-MM-DD)")
	historyCmd.PersistentFlags().Uint64Var(&historyLimit, "limit", 0, "Maximum number of rows (0 = all)")
	historyShowCmd.Flags().StringVar(&historyDate, "date", "", "Digest date (YYYY-MM-DD, default today)")
	historyPruneCmd.Flags().IntVar(&pruneDays, "older-than", 30, "Age in days (default from retention_days)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRunsCmd)
	historyCmd.AddCommand(historyStatsCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}
