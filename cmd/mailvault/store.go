package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/report"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Find matching attachments, decrypt and file them",
	Long: `Search the mailbox for PDF attachments matching the configured group
keywords, decrypt each one with the group's candidate passwords and upload
the decrypted copy to its group folder. Already processed attachments are
skipped.`,
	RunE: runStore,
}

func runStore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// The storing phase never publishes; a report sink is still wired so a
	// follow-up resume can roll into extraction.
	coord, closeAll, err := buildCoordinator(ctx, report.FileWriter{Path: "mailvault-report.xlsx"})
	if err != nil {
		return err
	}
	defer closeAll()

	sum, err := coord.Store(ctx)
	if err != nil {
		return err
	}
	printSummary(sum)

	if sum.Counts[domain.ItemNeedsPassword] > 0 {
		fmt.Println("\nsome documents need a password: add one with")
		fmt.Printf("  mailvault resume --session %s --password <group>=<password>\n", sum.SessionID)
	}
	return nil
}
