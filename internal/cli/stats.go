package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avelling/shelfsync/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reading diversity statistics",
	Long: `Show aggregate statistics over the local library: how many books,
and how they break down by author country, original language and
publication decade.

Books without enrichment data are grouped under "unknown"; run an
import (or wait for background enrichment to finish) to fill the
gaps.`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	stats, err := storeClient.Stats(ctx)
	if err != nil {
		return fmt.Errorf("library stats: %w", err)
	}

	if stats.TotalBooks == 0 {
		fmt.Println("Library is empty. Run 'shelfsync import' first.")
		return nil
	}

	fmt.Printf("Library: %d books\n\n", stats.TotalBooks)
	printStatGroup("By author country", stats.ByAuthorCountry, stats.TotalBooks)
	printStatGroup("By language", stats.ByLanguage, stats.TotalBooks)
	printStatGroup("By decade", stats.ByDecade, stats.TotalBooks)

	return nil
}

func printStatGroup(title string, groups []store.StatGroup, total int) {
	if len(groups) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	for _, g := range groups {
		key := g.Key
		if key == "" {
			key = "unknown"
		}
		fmt.Printf("  %-20s %4d  (%.0f%%)\n", key, g.Count, float64(g.Count)/float64(total)*100)
	}
	fmt.Println()
}
