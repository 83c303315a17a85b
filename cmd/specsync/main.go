package main

import (
	"fmt"
	"os"

	"github.com/jra3/specsync/cmd/specsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "specsync:", err)
		os.Exit(1)
	}
}
