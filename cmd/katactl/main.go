// Command katactl is operator/debugging tooling around the rewriter,
// inference, and recognition libraries: it is not the study application's
// UI, just a way to drive each library from a terminal.
package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "katactl",
	Short: "Operator CLI for the rewriter, inference, and recognition libraries",
}

func main() {
	rootCmd.AddCommand(rewriteCmd, analyzeCmd, recognizeCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
