package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/avelling/shelfsync/internal/enrich"
	"github.com/avelling/shelfsync/internal/importer"
)

var importPlain bool

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import books from a CSV export",
	Long: `Upload a CSV export to the shelfsync server and save the imported
books into the local library.

Progress is streamed live over a websocket; if the connection drops
mid-import, shelfsync falls back to polling the job status until the
import finishes. Imported books are deduplicated against the library
by ISBN (or title and author when no ISBN is present), and metadata
enrichment runs in the background after the import completes.

Examples:
  shelfsync import goodreads_export.csv
  shelfsync import library.csv --plain`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importPlain, "plain", false, "line-based output instead of the interactive progress bar")
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory: %s", path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		return fmt.Errorf("expected a .csv file, got %s", path)
	}

	ctx := cmd.Context()

	queue := enrich.NewQueue(apiClient, storeClient, logger)
	queue.Start(ctx)

	reconciler := importer.NewReconciler(storeClient, storeClient, queue, logger)

	if importPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		err = runImportPlain(cmd, reconciler, path)
	} else {
		err = RunImportProgress(func(onUpdate func(importer.Update)) (func() error, func()) {
			flow := importer.NewFlow(apiClient, reconciler, onUpdate, logger)
			return func() error { return flow.Run(ctx, path) }, flow.Cancel
		})
	}
	// Let the background enrichment drain before the process exits.
	queue.Close()
	queue.Wait()
	return err
}

// runImportPlain runs the import with one line per status change, for
// pipes and dumb terminals.
func runImportPlain(cmd *cobra.Command, reconciler *importer.Reconciler, path string) error {
	var final importer.Update

	flow := importer.NewFlow(apiClient, reconciler, func(u importer.Update) {
		final = u
		switch u.Status {
		case importer.StatusProcessing:
			cmd.Printf("processing %3.0f%%  %s\n", u.Fraction*100, u.Message)
		default:
			cmd.Printf("%s  %s\n", u.Status, u.Message)
		}
	}, logger)

	if err := flow.Run(cmd.Context(), path); err != nil {
		return err
	}

	if r := final.Result; r != nil {
		cmd.Printf("imported %d, skipped %d, failed %d\n", r.Created, r.Skipped, r.Failed)
		for _, e := range r.Errors {
			cmd.Printf("row error: %s: %s\n", e.Title, e.Message)
		}
	}
	return nil
}
