package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"photogen/internal/domain"
)

var convertOpts struct {
	asset  string
	format string
	out    string
}

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Re-encode a generated asset as png or jpg",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, ok := domain.ParseEncoding(convertOpts.format)
		if !ok {
			return fmt.Errorf("unknown format %q", convertOpts.format)
		}
		_, _, c, err := bootstrap()
		if err != nil {
			return err
		}
		data, enc, err := c.Converter.Convert(cmd.Context(), convertOpts.asset, target)
		if err != nil {
			return err
		}
		out := convertOpts.out
		if out == "" {
			out = convertOpts.asset + "." + enc.Ext()
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(data))
		return nil
	},
}

func init() {
	f := convertCmd.Flags()
	f.StringVar(&convertOpts.asset, "asset", "", "generated asset id")
	f.StringVar(&convertOpts.format, "format", "jpg", "target format: jpg or png")
	f.StringVar(&convertOpts.out, "out", "", "output file (defaults to <asset>.<ext>)")
	_ = convertCmd.MarkFlagRequired("asset")
	rootCmd.AddCommand(convertCmd)
}
