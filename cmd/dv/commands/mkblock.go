package commands

import (
	"fmt"

	"dagvault/pkg/dag"
	"dagvault/pkg/unixfs"

	"github.com/spf13/cobra"
)

var mkblockCmd = &cobra.Command{
	Use:   "mkblock",
	Short: `Write the two-chunk "hello world" demo DAG and print its root`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		// 1. 两个叶子
		var links []dag.Link
		var sizes []uint64
		for _, part := range []string{"hello ", "world"} {
			hash, raw := unixfs.EncodeLeaf([]byte(part)).Node().EncodeWith(DV.Algorithm)
			if err := DV.Store.Put(ctx, hash, raw); err != nil {
				return err
			}
			links = append(links, dag.NewLink(hash, uint64(len(raw))))
			sizes = append(sizes, uint64(len(part)))
			fmt.Fprintf(out, "leaf  %s %q\n", hash, part)
		}

		// 2. 中间节点
		root, raw := unixfs.EncodeInterior(sizes).Node(links...).EncodeWith(DV.Algorithm)
		if err := DV.Store.Put(ctx, root, raw); err != nil {
			return err
		}
		fmt.Fprintf(out, "root  %s\n", root)
		fmt.Fprintf(out, "✅ Try: dv cat %s\n", root.Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mkblockCmd)
}
