package commands

import (
	"fmt"
	"os"
	"time"

	"dagvault/pkg/multihash"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <hash> <target>",
	Short: "Restore a file or directory DAG onto disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		start := time.Now()

		hash, err := DV.ResolveHash(ctx, args[0])
		if err != nil {
			return fmt.Errorf("invalid hash '%s': %w", args[0], err)
		}
		target := args[1]

		// 不覆盖已有路径
		if _, err := os.Lstat(target); err == nil {
			return fmt.Errorf("target %s already exists", target)
		}

		fmt.Fprintf(out, "🔄 Restoring %s...\n", hash)
		count := 0
		err = DV.Exporter.Restore(ctx, hash, target, func(path string, _ multihash.Multihash, size uint64) {
			count++
			fmt.Fprintf(out, "  %s (%d bytes)\n", path, size)
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Fprintf(out, "✅ Restored %d file(s) into %s in %s\n", count, target, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
