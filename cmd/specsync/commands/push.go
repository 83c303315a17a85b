package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jra3/specsync/internal/engine"
)

var pushCmd = &cobra.Command{
	Use:   "push <spec-name>",
	Short: "Force-push a single spec's remote issue, bypassing the up-to-date skip",
	Args:  cobra.ExactArgs(1),
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	e, err := buildEngine()
	if err != nil {
		return err
	}

	doc, err := e.Scanner.ScanDirectory(specRoot + "/" + args[0])
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("no spec named %q under %s", args[0], specRoot)
	}

	result := e.SyncSpec(context.Background(), doc, engine.Options{Force: true, DryRun: dryRun})
	printResult(result)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}
