package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okozlov/mailvault/internal/domain"
	"github.com/okozlov/mailvault/internal/pdfdoc"
)

var (
	decryptOut       string
	decryptPasswords []string
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt <folder>",
	Short: "Decrypt a local folder of PDFs",
	Long: `Try the configured group passwords (plus any given with --password)
against every PDF in a folder and write decrypted copies to the output
directory. Files that are not encrypted are copied as is.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecrypt,
}

func init() {
	decryptCmd.Flags().StringVarP(&decryptOut, "out", "o", "decrypted", "Output directory")
	decryptCmd.Flags().StringArrayVar(&decryptPasswords, "password", nil, "Extra password candidate; repeatable")
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	in := args[0]

	set := domain.NewPasswordSet(decryptPasswords...)
	if cfg != nil {
		for _, g := range cfg.Groups {
			set.Add(g.Passwords...)
		}
	}

	entries, err := os.ReadDir(in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in, err)
	}
	if err := os.MkdirAll(decryptOut, 0o755); err != nil {
		return err
	}

	resolver := pdfdoc.NewResolver()
	decrypted, failures := 0, 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		src := filepath.Join(in, entry.Name())
		doc, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}

		plain, err := resolver.Resolve(doc, set)
		var pf *domain.PasswordFailure
		if errors.As(err, &pf) {
			fmt.Printf("  [needs-password] %s (%d candidates tried)\n", entry.Name(), pf.Attempts)
			failures++
			continue
		}
		if err != nil {
			return fmt.Errorf("decrypting %s: %w", src, err)
		}

		dst := filepath.Join(decryptOut, entry.Name())
		if err := os.WriteFile(dst, plain, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		fmt.Printf("  [ok] %s\n", entry.Name())
		decrypted++
	}

	fmt.Printf("%d decrypted, %d still locked\n", decrypted, failures)
	return nil
}
