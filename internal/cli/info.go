package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"studyrag/internal/adapter/bundle"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show what the bundle contains",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "output as JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	path := cfg.BundlePath(GetRootDir())

	b, err := openBundle(cfg, GetRootDir())
	if err != nil {
		return err
	}
	m := b.Manifest()

	if infoJSON {
		output, _ := json.MarshalIndent(struct {
			Path string `json:"path"`
			bundle.Manifest
		}{path, m}, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Bundle: %s\n", path)
	fmt.Printf("  Format version: %d\n", m.FormatVersion)
	fmt.Printf("  Build ID:       %s\n", m.BuildID)
	fmt.Printf("  Created:        %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("  Model:          %s\n", m.ModelName)
	fmt.Printf("  Dimension:      %d\n", m.Dimension)
	fmt.Printf("  Chunks:         %d\n", m.ChunkCount)
	fmt.Printf("  Chunking:       size=%d overlap=%d min_chars=%d\n", m.Chunking.Size, m.Chunking.Overlap, m.Chunking.MinChars)
	return nil
}
