package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "lingobridge",
	Short: "Japanese/Dzongkha translation daemon with a shared review library",
	Long: `lingobridge translates between Japanese and Dzongkha using an AI
engine, caches every reviewed translation in a shared library, and
coordinates concurrent editing of pending translations.

Run 'lingobridge start' to launch the daemon, then use the other
commands to translate and manage the review queue.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(libraryCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
