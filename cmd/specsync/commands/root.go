// Package commands wires the cobra CLI front end around the sync core
// (spec.md §1 Non-goals: "the surrounding command-line front end...
// [is] external"). Grounded on the teacher's internal/cmd/root.go —
// same thin-cobra-wrapper-around-internal-packages shape, retargeted at
// sync/status/push subcommands instead of mount.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	specRoot string
	dryRun   bool
	force    bool
)

var rootCmd = &cobra.Command{
	Use:   "specsync",
	Short: "Keep on-disk spec documents in sync with tracker issues",
	Long: `specsync keeps a set of on-disk specification documents (Markdown
files organized into feature directories) in bidirectional agreement
with issues in a remote issue tracker.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.config/specsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&specRoot, "root", "specs", "spec tree root directory")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "report what would happen without mutating anything")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "push even when up to date, or abandon a conflicting remote issue")
}
