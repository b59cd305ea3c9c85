package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the backend book catalogue",
	Long: `Search the shelfsync server's book catalogue by title, author or ISBN.

Searches the remote catalogue, not the local library; use 'list' to
browse books already imported.

Examples:
  shelfsync search "the dispossessed"
  shelfsync search 9780061054884
  shelfsync search "le guin" --limit 25`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "max results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]
	ctx := context.Background()

	results, err := apiClient.SearchBooks(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, book := range results {
		fmt.Printf("%d. %s by %s", i+1, book.Title, book.Author)
		if book.Year > 0 {
			fmt.Printf(" (%d)", book.Year)
		}
		fmt.Println()
		if book.ISBN != "" {
			fmt.Printf("   ISBN: %s\n", book.ISBN)
		}
		if verbose && book.Publisher != "" {
			fmt.Printf("   Publisher: %s\n", book.Publisher)
		}
		fmt.Println()
	}

	return nil
}
