package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jra3/specsync/internal/engine"
	"github.com/jra3/specsync/internal/spec"
)

var statusCmd = &cobra.Command{
	Use:   "status [issue-number]",
	Short: "Report sync status without mutating anything, for one spec or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()

	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue number %q: %w", args[0], err)
		}
		doc, err := e.Scanner.FindSpecByIssueNumber(n)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("no spec found for issue #%d", n)
		}
		return printStatus(ctx, e, doc)
	}

	docs, err := e.Scanner.ScanAll()
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := printStatus(ctx, e, doc); err != nil {
			return err
		}
	}
	return nil
}

// printStatus prints one spec's status line, looking it up via the
// adapter the way runStatus's full-scan branch does per doc.
func printStatus(ctx context.Context, e *engine.Engine, doc *spec.SpecDocument) error {
	status, err := e.Adapter.GetStatus(ctx, doc)
	if err != nil {
		fmt.Printf("%-40s unknown (%v)\n", doc.Name, err)
		return nil
	}
	changed := ""
	if status.HasChanges {
		changed = " (changed)"
	}
	fmt.Printf("%-40s %s%s%s\n", doc.Name, status.Status, changed, lastSyncSuffix(status.LastSync))
	return nil
}

// lastSyncSuffix renders last_sync as a human-relative duration, e.g.
// " (synced 3 hours ago)", for a quicker read than a raw RFC3339
// timestamp at a glance.
func lastSyncSuffix(lastSync string) string {
	if lastSync == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, lastSync)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (synced %s)", humanize.Time(t))
}
