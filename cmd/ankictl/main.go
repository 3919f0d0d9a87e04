package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag   string
	deckFlag  string
	fieldFlag string
	rootCmd   = &cobra.Command{
		Use:   "ankictl",
		Short: "CLI client for the ankichat ops API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8077", "ankichat service base URL")

	decksCmd := &cobra.Command{
		Use:   "decks",
		Short: "List decks with note counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecks(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(decksCmd)

	previewCmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview example compaction for a deck",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			count, _ := cmd.Flags().GetInt("preview-count")
			if deckFlag == "" {
				return fmt.Errorf("--deck required")
			}
			return runPreview(apiFlag, deckFlag, fieldFlag, count, limit, os.Stdout)
		},
	}
	previewCmd.Flags().StringVarP(&deckFlag, "deck", "d", "", "Deck name (required)")
	previewCmd.Flags().StringVarP(&fieldFlag, "field", "f", "Example", "Field to compact")
	previewCmd.Flags().IntP("limit", "l", 30, "Maximum notes in the batch")
	previewCmd.Flags().IntP("preview-count", "p", 5, "Sample size shown")
	rootCmd.AddCommand(previewCmd)

	applyCmd := &cobra.Command{
		Use:   "apply <token>",
		Short: "Apply a previewed compaction batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(apiFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(applyCmd)

	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Restore compacted fields from backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if deckFlag == "" {
				return fmt.Errorf("--deck required")
			}
			return runRollback(apiFlag, deckFlag, fieldFlag, os.Stdout)
		},
	}
	rollbackCmd.Flags().StringVarP(&deckFlag, "deck", "d", "", "Deck name (required)")
	rollbackCmd.Flags().StringVarP(&fieldFlag, "field", "f", "Example", "Field to restore")
	rootCmd.AddCommand(rollbackCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Report service and collaborator health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(apiFlag, os.Stdout)
		},
	}
	rootCmd.AddCommand(healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
