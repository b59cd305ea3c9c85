package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avelling/shelfsync/internal/models"
	"github.com/avelling/shelfsync/internal/store"
)

var (
	listAuthor string
	listYear   int
	listLabel  string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List books in the local library",
	Long: `List books stored in the local library with optional filtering.

Examples:
  shelfsync list
  shelfsync list --author "Le Guin"
  shelfsync list --year 1974
  shelfsync list --label "book-club"`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listAuthor, "author", "a", "", "filter by author substring")
	listCmd.Flags().IntVarP(&listYear, "year", "y", 0, "filter by publication year")
	listCmd.Flags().StringVarP(&listLabel, "label", "l", "", "filter by label")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 50, "max results")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	books, err := storeClient.ListBooks(ctx, store.ListOptions{
		Author: listAuthor,
		Year:   listYear,
		Label:  listLabel,
		Limit:  listLimit,
	})
	if err != nil {
		return fmt.Errorf("list books: %w", err)
	}

	if len(books) == 0 {
		fmt.Println("No books found.")
		return nil
	}

	fmt.Printf("Books (%d):\n\n", len(books))
	for _, book := range books {
		year := ""
		if book.Year != nil {
			year = fmt.Sprintf(" (%d)", *book.Year)
		}
		fmt.Printf("  %s by %s%s\n", book.Title, book.Author, year)
		if verbose {
			if book.ISBN != nil {
				fmt.Printf("    ISBN: %s\n", *book.ISBN)
			}
			if len(book.Labels) > 0 {
				fmt.Printf("    Labels: %v\n", book.Labels)
			}
			if book.EnrichError != nil {
				fmt.Printf("    Enrichment failed: %s\n", *book.EnrichError)
			}
			fmt.Printf("    ID: %s\n", models.MustRecordIDString(book.ID))
		}
	}

	return nil
}
