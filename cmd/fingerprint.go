package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/fetch"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"github.com/kozaktomas/photo-dedup/internal/logging"
	"github.com/kozaktomas/photo-dedup/internal/resilience"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <file|url>...",
	Short: "Print content and perceptual hashes of images",
	Long: `Compute the SHA-256 content hash, pHash and dHash of each image.

With two or more images the dHash similarity of every pair is printed as well.

Examples:
  photo-dedup fingerprint a.jpg b.jpg
  photo-dedup fingerprint https://example.com/photo.jpg --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().Bool("json", false, "Output as JSON")
}

// FingerprintEntry is the JSON output for one image.
type FingerprintEntry struct {
	Location    string `json:"location"`
	ContentHash string `json:"content_hash,omitempty"`
	PHash       string `json:"phash,omitempty"`
	DHash       string `json:"dhash,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Error       string `json:"error,omitempty"`
}

// FingerprintPair is the dHash similarity of two images.
type FingerprintPair struct {
	A          string  `json:"a"`
	B          string  `json:"b"`
	Similarity float64 `json:"similarity"`
}

// FingerprintOutput is the JSON output of the fingerprint command.
type FingerprintOutput struct {
	Images []FingerprintEntry `json:"images"`
	Pairs  []FingerprintPair  `json:"pairs,omitempty"`
}

// fingerprintImages hashes every location. Failures are recorded per entry.
func fingerprintImages(ctx context.Context, f fetch.Fetcher, locations []string) FingerprintOutput {
	out := FingerprintOutput{Images: make([]FingerprintEntry, 0, len(locations))}
	for _, loc := range locations {
		entry := FingerprintEntry{Location: loc}
		data, err := f.Fetch(ctx, loc)
		if err != nil {
			entry.Error = err.Error()
			out.Images = append(out.Images, entry)
			continue
		}
		entry.ContentHash = fingerprint.ContentHash(data)

		hashes, err := fingerprint.ComputeHashes(data)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.PHash = hashes.PHash
			entry.DHash = hashes.DHash
			entry.Width = hashes.Width
			entry.Height = hashes.Height
		}
		out.Images = append(out.Images, entry)
	}

	for i := range out.Images {
		for j := i + 1; j < len(out.Images); j++ {
			a, b := out.Images[i], out.Images[j]
			if a.DHash == "" || b.DHash == "" {
				continue
			}
			out.Pairs = append(out.Pairs, FingerprintPair{
				A:          a.Location,
				B:          b.Location,
				Similarity: fingerprint.HexSimilarity(a.DHash, b.DHash),
			})
		}
	}
	return out
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")

	logger := logging.NewLogger(serviceName, cfg.LogLevel)
	client := fetch.NewClient(fetch.Config{Timeout: cfg.Fetch.Timeout}, resilience.NewExecutor(resilience.DefaultConfig(), logger))

	out := fingerprintImages(cmd.Context(), client, args)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tSIZE\tPHASH\tDHASH\tSHA256")
	fmt.Fprintln(w, "-----\t----\t-----\t-----\t------")
	for _, e := range out.Images {
		if e.Error != "" {
			fmt.Fprintf(w, "%s\terror: %s\t\t\t\n", e.Location, e.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%dx%d\t%s\t%s\t%s\n", e.Location, e.Width, e.Height, e.PHash, e.DHash, e.ContentHash)
	}
	w.Flush()

	if len(out.Pairs) > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "A\tB\tDHASH SIMILARITY")
		for _, p := range out.Pairs {
			fmt.Fprintf(w, "%s\t%s\t%.3f\n", p.A, p.B, p.Similarity)
		}
		w.Flush()
	}
	return nil
}
