package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"photogen/internal/workflow"
)

var generateOpts struct {
	image    string
	prompt   string
	outDir   string
	width    int
	height   int
	strength string
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Upload a photo, wait for the generated image and save it",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, c, err := bootstrap()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(generateOpts.image)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		handle, err := c.Store.Save(cmd.Context(), strings.TrimPrefix(filepath.Ext(generateOpts.image), "."), data)
		if err != nil {
			return err
		}

		res, err := c.Orchestrator.Run(cmd.Context(), workflow.Request{
			HandleID: handle.ID,
			Prompt:   generateOpts.prompt,
			Width:    generateOpts.width,
			Height:   generateOpts.height,
			Strength: generateOpts.strength,
		})
		if err != nil {
			logger.Error().Str("state", string(res.State)).Int("polls", res.Polls).Msg("generation did not complete")
			return err
		}

		path := filepath.Join(c.Store.GeneratedDir(), res.Asset.Filename())
		if generateOpts.outDir != "" {
			if err := os.MkdirAll(generateOpts.outDir, 0o755); err != nil {
				return err
			}
			path = filepath.Join(generateOpts.outDir, res.Asset.Filename())
			if err := os.WriteFile(path, res.Asset.Data, 0o644); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "asset %s\ngeneration %s\nfile %s\n", res.Asset.ID, res.Asset.GenerationID, path)
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&generateOpts.image, "image", "", "path to the source photo (png, jpg, jpeg, webp)")
	f.StringVar(&generateOpts.prompt, "prompt", "", "prompt text; the configured default is used when empty")
	f.StringVar(&generateOpts.outDir, "out", "", "directory to copy the result into")
	f.IntVar(&generateOpts.width, "width", 0, "output width override")
	f.IntVar(&generateOpts.height, "height", 0, "output height override")
	f.StringVar(&generateOpts.strength, "strength", "", "reference strength: LOW, MID or HIGH")
	_ = generateCmd.MarkFlagRequired("image")
	rootCmd.AddCommand(generateCmd)
}
