package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jra3/specsync/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync [spec-name]",
	Short: "Sync one spec, or every spec under the root, with the tracker",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	opts := engine.Options{Force: force, DryRun: dryRun}

	var result *engine.Result
	if len(args) == 1 {
		doc, scanErr := e.Scanner.ScanDirectory(specRoot + "/" + args[0])
		if scanErr != nil {
			return scanErr
		}
		if doc == nil {
			return fmt.Errorf("no spec named %q under %s", args[0], specRoot)
		}
		result = e.SyncSpec(ctx, doc, opts)
	} else {
		result, err = e.SyncAll(ctx, opts)
		if err != nil {
			return err
		}
	}

	printResult(result)
	if !result.Success {
		os.Exit(1)
	}
	if dryRun && len(result.Details.Errors) > 0 {
		os.Exit(1)
	}
	return nil
}

func printResult(r *engine.Result) {
	if r.Message != "" {
		fmt.Println(r.Message)
	}
	for _, c := range r.Details.Created {
		fmt.Printf("  created: %s\n", c)
	}
	for _, u := range r.Details.Updated {
		fmt.Printf("  updated: %s\n", u)
	}
	for _, s := range r.Details.Skipped {
		fmt.Printf("  skipped: %s\n", s)
	}
	for _, e := range r.Details.Errors {
		fmt.Printf("  error: %s\n", e)
	}
}
