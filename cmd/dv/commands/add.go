package commands

import (
	"fmt"
	"time"

	"dagvault/pkg/ingester"

	"github.com/spf13/cobra"
)

var (
	addChunker string
	addIgnore  []string
	addQuiet   bool
)

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Import files or directories into the block store",
	Long: `Split each path into a unixfs DAG and store its blocks.
Directories are imported recursively; entries matched by .dvignore are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DV == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		// 1. 命令行参数覆盖配置
		opts := DV.ImportOptions
		if addChunker != "" {
			opts.Chunker = addChunker
		}
		opts.Ignore = addIgnore
		ing := ingester.NewIngester(DV.Store, DV.Repository, opts)

		// 2. 逐个导入
		start := time.Now()
		var total uint64
		for _, path := range args {
			res, err := ing.IngestPath(ctx, path)
			if err != nil {
				return fmt.Errorf("failed to add %s: %w", path, err)
			}
			total += res.Size

			if addQuiet {
				fmt.Fprintln(out, res.Root)
				continue
			}
			note := ""
			if res.Reused {
				note = " (instant)"
			}
			fmt.Fprintf(out, "added %s %s [%s, %d bytes]%s\n", res.Root, path, res.Type, res.Size, note)
		}

		if !addQuiet {
			fmt.Fprintf(out, "✅ Added %d path(s), %d bytes in %s\n", len(args), total, time.Since(start).Round(time.Millisecond))
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addChunker, "chunker", "", "chunker spec: fastcdc, fastcdc-<min>-<avg>-<max>, size-<n>, rabin, buzhash")
	addCmd.Flags().StringSliceVar(&addIgnore, "ignore", nil, "extra ignore patterns (gitignore syntax)")
	addCmd.Flags().BoolVarP(&addQuiet, "quiet", "q", false, "print only the root hashes")
	rootCmd.AddCommand(addCmd)
}
