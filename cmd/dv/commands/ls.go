package commands

import (
	"fmt"

	"dagvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var lsCBOR bool

var lsCmd = &cobra.Command{
	Use:   "ls <hash>",
	Short: "Describe a block: type, sizes and links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()

		hash, err := DV.ResolveHash(ctx, args[0])
		if err != nil {
			return fmt.Errorf("invalid hash '%s': %w", args[0], err)
		}
		summary, err := DV.Exporter.Describe(ctx, hash)
		if err != nil {
			return err
		}

		if lsCBOR {
			data, err := exporter.EncodeSummary(summary)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		return exporter.PrintSummary(summary, cmd.OutOrStdout())
	},
}

func init() {
	lsCmd.Flags().BoolVar(&lsCBOR, "cbor", false, "emit the description as canonical CBOR")
	rootCmd.AddCommand(lsCmd)
}
