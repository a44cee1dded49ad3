package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <hash>",
	Short: "Output file content by hash",
	Long: `Reconstruct a file DAG and stream its bytes to stdout.
The hash may be full hex, base58, or a hex prefix of at least 8 characters.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()

		hash, err := DV.ResolveHash(ctx, args[0])
		if err != nil {
			return fmt.Errorf("invalid hash '%s': %w", args[0], err)
		}

		// 输出到 stdout，二进制文件可以通过 > file.bin 重定向
		if err := DV.Exporter.ExportFile(ctx, hash, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
