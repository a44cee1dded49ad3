package commands

import (
	"fmt"

	"dagvault/pkg/multihash"

	"github.com/spf13/cobra"
)

var expandCmd = &cobra.Command{
	Use:   "expand <prefix>",
	Short: "Expand a short hex hash to the unique stored block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}

		prefix, err := multihash.ParsePrefix(args[0])
		if err != nil {
			return err
		}
		hash, err := DV.Store.ExpandHash(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(expandCmd)
}
