package commands

import (
	"fmt"
	"io"
	"os"

	"dagvault/pkg/dag"
	"dagvault/pkg/multihash"

	"github.com/spf13/cobra"
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Raw block operations",
}

var blockPutCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "Store a serialized dag-pb node read from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}

		// 1. 读取原始字节
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		raw, err := io.ReadAll(in)
		if err != nil {
			return err
		}

		// 2. 必须是合法的 dag-pb 节点
		if _, err := dag.Unmarshal(raw); err != nil {
			return fmt.Errorf("not a dag-pb block: %w", err)
		}

		// 3. 按原始字节计算身份并写入
		hash := multihash.Sum(DV.Algorithm, raw)
		if err := DV.Store.Put(cmd.Context(), hash, raw); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

var blockGetCmd = &cobra.Command{
	Use:   "get <hash>",
	Short: "Write the raw bytes of a block to stdout",
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
		data, err := DV.Store.Get(ctx, hash)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var blockStatCmd = &cobra.Command{
	Use:   "stat <hash>",
	Short: "Show the size and link count of a block",
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
		data, err := DV.Store.Get(ctx, hash)
		if err != nil {
			return err
		}
		node, err := dag.Unmarshal(data)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Hash:  %s\n", hash)
		fmt.Fprintf(out, "Hex:   %s\n", hash.Hex())
		fmt.Fprintf(out, "Size:  %d\n", len(data))
		fmt.Fprintf(out, "Links: %d\n", len(node.Links))
		return nil
	},
}

func init() {
	blockCmd.AddCommand(blockPutCmd, blockGetCmd, blockStatCmd)
	rootCmd.AddCommand(blockCmd)
}
