package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jasperwreed/agent-index/internal/ingest"
	"github.com/jasperwreed/agent-index/internal/models"
)

func NewSyncCommand() *cobra.Command {
	var force bool
	var quiet bool
	var reset bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Index new transcript content",
		Long: `Scan <claude-dir>/projects for session transcripts and index every line not yet seen.
Unchanged files are skipped; grown files resume from their last committed offset.
Session titles are read from <claude-dir>/history.jsonl and todo lists from <claude-dir>/todos.`,
		Example: `  # Index new content
  agent-index sync

  # Re-read every file from the start
  agent-index sync --force

  # Drop the index and rebuild it
  agent-index sync --reset`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), force, quiet, reset)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reprocess every file from the start")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Print nothing unless a file fails")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the index before syncing")

	return cmd
}

func runSync(ctx context.Context, out io.Writer, force, quiet, reset bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if reset {
		if err := store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset index: %w", err)
		}
	}

	opts := ingest.Options{
		Root:        cfg.ProjectsDir(),
		HistoryPath: cfg.HistoryPath(),
		TodosDir:    cfg.TodosDir(),
		Force:       force,
	}
	report, err := ingest.NewEngine(store).Sync(ctx, opts)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if jsonOutput {
		return printJSON(out, report)
	}
	if !quiet || len(report.Errors) > 0 {
		printSyncReport(out, report)
	}
	return nil
}

func printSyncReport(w io.Writer, r *models.SyncReport) {
	printTitle(w, "Sync complete")
	printField(w, "Files scanned", r.FilesScanned)
	printField(w, "Files updated", r.FilesUpdated)
	printField(w, "Files skipped", r.FilesSkipped)
	if r.FilesReset > 0 {
		printField(w, "Files reset", r.FilesReset)
	}
	printField(w, "Records", r.RecordsIngested)
	if r.HistoryTitles > 0 {
		printField(w, "Session titles", r.HistoryTitles)
	}
	if r.TodoFiles > 0 {
		printField(w, "Todo lists", r.TodoFiles)
	}
	if r.ParseErrors > 0 {
		printField(w, "Malformed lines", r.ParseErrors)
	}
	printField(w, "Duration", r.Duration.Round(time.Millisecond))

	if len(r.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d file(s) failed:", len(r.Errors))))
		for _, fe := range r.Errors {
			fmt.Fprintf(w, "  %s\n", fe)
		}
	}
}
