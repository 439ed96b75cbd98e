package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-dedup/internal/caption"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/photo"
	"github.com/kozaktomas/photo-dedup/internal/pipeline"
	"github.com/kozaktomas/photo-dedup/internal/source"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Group similar photos",
	Long: `Analyze a set of photos and print groups of duplicates and near-duplicates.

Photos are read from a JSON file (--input) or from PhotoPrism (--album or
--query). Only groups at or above the confidence threshold are printed
unless --all is given.

Examples:
  # Analyze photos listed in a JSON file
  photo-dedup analyze --input photos.json

  # Analyze a PhotoPrism album
  photo-dedup analyze --album aq8i4k2l3m9n0o1p

  # Analyze a search query, hashes and metadata only
  photo-dedup analyze --query "year:2025 label:construction" --no-visual --no-semantic

  # Output as JSON
  photo-dedup analyze --input photos.json --json`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("input", "", "JSON file with the photos to analyze")
	analyzeCmd.Flags().String("album", "", "PhotoPrism album UID")
	analyzeCmd.Flags().String("query", "", "PhotoPrism search query")
	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
	analyzeCmd.Flags().Bool("all", false, "Print groups below the confidence threshold too")
	analyzeCmd.Flags().Float64("threshold", 0, "Visual similarity threshold (default from PIPELINE_SIMILARITY_THRESHOLD)")
	analyzeCmd.Flags().Float64("confidence", 0, "Minimum group confidence (default from PIPELINE_CONFIDENCE_THRESHOLD)")
	analyzeCmd.Flags().Bool("no-content", false, "Disable the content hash layer")
	analyzeCmd.Flags().Bool("no-perceptual", false, "Disable the perceptual hash layer")
	analyzeCmd.Flags().Bool("no-visual", false, "Disable the image embedding layer")
	analyzeCmd.Flags().Bool("no-metadata", false, "Disable the time and location layer")
	analyzeCmd.Flags().Bool("no-semantic", false, "Disable the caption fallback layer")
}

// AnalyzeOutput is the JSON output of the analyze command.
type AnalyzeOutput struct {
	Status       pipeline.Status      `json:"status"`
	Error        string               `json:"error,omitempty"`
	PhotoCount   int                  `json:"photo_count"`
	Groups       []pipeline.Group     `json:"groups"`
	Layers       []pipeline.LayerStat `json:"layers"`
	CaptionUsage *caption.Usage       `json:"caption_usage,omitempty"`
}

// analyzeOptions applies command flags on top of the configured options.
func analyzeOptions(cmd *cobra.Command, cfg *config.Config) (pipeline.Options, error) {
	opts := pipelineOptions(cfg)

	if threshold := mustGetFloat64(cmd, "threshold"); threshold != 0 {
		if threshold < 0 || threshold > 1 {
			return opts, errors.New("--threshold must be in (0, 1]")
		}
		opts.SimilarityThreshold = threshold
	}
	if confidence := mustGetFloat64(cmd, "confidence"); confidence != 0 {
		if confidence < 0 || confidence > 1 {
			return opts, errors.New("--confidence must be in (0, 1]")
		}
		opts.ConfidenceThreshold = confidence
	}

	opts.EnableContent = !mustGetBool(cmd, "no-content")
	opts.EnablePerceptual = !mustGetBool(cmd, "no-perceptual")
	opts.EnableVisual = !mustGetBool(cmd, "no-visual")
	opts.EnableMetadata = !mustGetBool(cmd, "no-metadata")
	opts.EnableSemantic = !mustGetBool(cmd, "no-semantic")
	return opts, nil
}

// analyzeSource picks the photo source from the --input, --album and --query flags.
func analyzeSource(ctx context.Context, cmd *cobra.Command, lib *source.Library) (source.Source, error) {
	input := mustGetString(cmd, "input")
	album := mustGetString(cmd, "album")
	query := mustGetString(cmd, "query")

	set := 0
	for _, v := range []string{input, album, query} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of --input, --album or --query is required")
	}

	if input != "" {
		return source.NewJSONFile(input), nil
	}
	return lib.Source(ctx, source.Selection{AlbumUID: album, Query: query})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")
	showAll := mustGetBool(cmd, "all")

	opts, err := analyzeOptions(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDeps(ctx, cfg, opts.EnableVisual, opts.EnableSemantic)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.holdModel(ctx); err != nil {
		return fmt.Errorf("failed to load embedding model: %w", err)
	}

	lib := source.NewLibrary(cfg.PhotoPrism, d.logger)
	// Image URLs carry the session token, so the session stays open until the run ends.
	defer lib.Close(context.Background())

	src, err := analyzeSource(ctx, cmd, lib)
	if err != nil {
		return err
	}

	photos, err := src.Photos(ctx)
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Analyzing %d photos...\n", len(photos))
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Starting"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
			progressbar.OptionClearOnFinish(),
		)
		opts.OnProgress = func(pr pipeline.Progress) {
			bar.Describe(pr.Stage)
			_ = bar.Set(pr.Percent)
		}
	}

	p := d.newPipeline(nil)
	result := p.Run(ctx, photo.Refs(photos), opts)
	if bar != nil {
		_ = bar.Finish()
	}

	groups := result.State.FilteredGroups
	if showAll {
		groups = result.State.AllGroups
	}

	if jsonOutput {
		out := AnalyzeOutput{
			Status:     result.State.Status,
			Error:      result.Error,
			PhotoCount: result.State.PhotoCount,
			Groups:     groups,
			Layers:     result.State.Layers,
		}
		if d.captioner != nil {
			usage := d.captioner.Provider().Usage()
			out.CaptionUsage = &usage
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
	} else {
		printAnalysis(cfg, result, groups, d)
	}

	if !result.Success {
		return errors.New(result.Error)
	}
	return nil
}

func printAnalysis(cfg *config.Config, result pipeline.Result, groups []pipeline.Group, d *deps) {
	state := result.State
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LAYER\tINPUT\tOUTPUT\tGROUPS\tTIME")
	fmt.Fprintln(w, "-----\t-----\t------\t------\t----")
	for _, l := range state.Layers {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%dms\n", l.Layer, l.Input, l.Output, l.Groups, l.DurationMs)
	}
	w.Flush()

	if !result.Success {
		fmt.Printf("\nAnalysis %s: %s\n", state.Status, result.Error)
		return
	}

	sorted := append([]pipeline.Group(nil), groups...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	fmt.Printf("\nFound %d groups (%d above confidence threshold)\n\n", len(state.AllGroups), len(state.FilteredGroups))
	for i, g := range sorted {
		refs := make([]string, len(g.Photos))
		for j, id := range g.Photos {
			refs[j] = id
			if link := cfg.PhotoPrism.PhotoURL(id); link != "" {
				refs[j] = link
			}
		}
		fmt.Printf("%3d. %-22s %-10s confidence %.3f  score %.3f\n", i+1, g.GroupType, g.Layer, g.Confidence, g.RepresentativeScore.Overall)
		fmt.Printf("     %s\n", strings.Join(refs, ", "))
	}

	if d.captioner != nil {
		usage := d.captioner.Provider().Usage()
		if usage.InputTokens > 0 {
			fmt.Printf("\nCaption usage: %d input / %d output tokens, $%.4f\n", usage.InputTokens, usage.OutputTokens, usage.TotalCost)
		}
	}
}
