package main

import (
	"github.com/spf13/cobra"

	"github.com/and161185/cms-admin/internal/crypto/sessioncrypto"
)

// NewGenKeyCmd creates the genkey subcommand.
func NewGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Print a fresh hex-encoded session cache key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := sessioncrypto.GenerateKey()
			if err != nil {
				return err
			}
			cmd.Println(key)
			return nil
		},
	}
}
