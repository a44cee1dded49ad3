package commands

import (
	"fmt"
	"io"
	"os"

	"dagvault/pkg/multihash"

	"github.com/spf13/cobra"
)

var (
	mhTo  string
	mhAlg string
)

var mhCmd = &cobra.Command{
	Use:         "mh",
	Short:       "Multihash utilities",
	Annotations: map[string]string{noAppAnnotation: "true"},
}

var mhConvertCmd = &cobra.Command{
	Use:   "convert <hash>",
	Short: "Convert a multihash between hex, base58 and binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := multihash.Parse(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch mhTo {
		case "hex":
			fmt.Fprintln(out, hash.Hex())
		case "base58":
			fmt.Fprintln(out, hash.Base58())
		case "binary":
			_, err = out.Write(hash.Binary())
		default:
			return fmt.Errorf("unknown output form %q (want hex, base58 or binary)", mhTo)
		}
		return err
	},
}

var mhSumCmd = &cobra.Command{
	Use:   "sum [file]",
	Short: "Hash a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		alg, err := multihash.ParseAlgorithm(mhAlg)
		if err != nil {
			return err
		}

		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}

		hash := multihash.Sum(alg, data)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", hash.Hex(), hash.Base58())
		return nil
	},
}

func init() {
	mhConvertCmd.Flags().StringVar(&mhTo, "to", "hex", "output form: hex, base58, binary")
	mhSumCmd.Flags().StringVar(&mhAlg, "alg", multihash.DefaultAlgorithm.String(), "hash algorithm")
	mhCmd.AddCommand(mhConvertCmd, mhSumCmd)
	rootCmd.AddCommand(mhCmd)
}
