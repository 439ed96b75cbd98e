package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-dedup",
	Short: "Find duplicate and near-duplicate photos",
	Long: `Photo Dedup groups redundant photos (exact copies, re-encoded files,
burst shots, retries and angle variations) so they can be reviewed and
archived. Photos are compared through a cascade of content hashes,
perceptual hashes, image embeddings, capture time and location, and as a
last resort AI-generated captions.

Photos come from a JSON file or a PhotoPrism library.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
