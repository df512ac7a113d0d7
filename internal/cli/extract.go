package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mgpai22/subtools/internal/config"
	"github.com/mgpai22/subtools/internal/extract"
	"github.com/mgpai22/subtools/internal/fileproc"
	"github.com/mgpai22/subtools/internal/ocr"
	"github.com/mgpai22/subtools/internal/video"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [path...]",
	Short: "Extract subtitle tracks from Matroska files",
	Long: `Extract every subtitle track of one or more Matroska files.

Each track is written as <name>.<track>[.<lang>].<ext> next to the input,
or into --output-dir. SubRip tracks become .srt and WebVTT tracks .vtt.
Image tracks (VobSub, PGS) are saved as PNG images with an index.srt, or
recognized into .srt with --images ocr. Directories are scanned for
Matroska files, one level deep unless --recursive is given.

Examples:
  subtools extract movie.mkv
  subtools extract shows/ --recursive -o subs/
  subtools extract movie.mkv --images ocr --provider openai
  subtools extract clip.mp4 --remux`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().
		String("images", "", "Image track handling: skip, png or ocr (default from config, png)")
	extractCmd.Flags().
		Bool("overwrite", false, "Overwrite existing output files")
	extractCmd.Flags().
		BoolP("recursive", "r", false, "Descend into subdirectories")
	extractCmd.Flags().
		Int("concurrency", 0, "Number of files extracted in parallel (default from config, 2)")
	extractCmd.Flags().
		Bool("remux", false, "Remux non-Matroska videos with ffmpeg before extracting")
	addOCRFlags(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("images") {
		cfg.Extract.Images, _ = cmd.Flags().GetString("images")
	}
	if cmd.Flags().Changed("overwrite") {
		cfg.Extract.Overwrite, _ = cmd.Flags().GetBool("overwrite")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Extract.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if cmd.Flags().Changed("remux") {
		cfg.Extract.Remux, _ = cmd.Flags().GetBool("remux")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Extract.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", cfg.Extract.Concurrency)
	}
	recursive, _ := cmd.Flags().GetBool("recursive")

	match := fileproc.IsMatroska
	if cfg.Extract.Remux {
		match = func(p string) bool { return fileproc.IsMatroska(p) || fileproc.IsVideoFile(p) }
	}
	paths, err := fileproc.Collect(args, fileproc.Options{Recursive: recursive, Match: match})
	if err != nil {
		return err
	}

	images, err := imageHandlers(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	e := &extract.Extractor{
		Open:  containerOpener(ctx, cfg.Extract.Remux),
		Sinks: extract.FileSinks(cfg.Extract.OutputDir, cfg.Extract.Overwrite, images),
		Log:   logger,
	}

	logger.Infow("Starting extraction",
		"files", len(paths),
		"images", cfg.Extract.Images,
		"concurrency", cfg.Extract.Concurrency,
	)
	reports := extract.RunBatch(ctx, e, paths, cfg.Extract.Concurrency)
	return summarize(reports)
}

func imageHandlers(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (extract.ImageHandlerFactory, error) {
	switch cfg.Extract.Images {
	case config.ImagesSkip:
		return nil, nil
	case config.ImagesOCR:
		rec, err := newRecognizer(ctx, cmd, cfg)
		if err != nil {
			return nil, err
		}
		return &ocr.Handlers{Ctx: ctx, Recognizer: rec, Log: logger}, nil
	default:
		return extract.PNGImages{}, nil
	}
}

// containerOpener opens Matroska files directly and, with remux, other
// videos through a temporary ffmpeg remux.
func containerOpener(ctx context.Context, remux bool) extract.Opener {
	processor := video.NewProcessor("")
	return func(path string) (extract.Container, error) {
		if !remux || fileproc.IsMatroska(path) {
			return extract.OpenMatroska(path)
		}
		logger.Infow("Remuxing subtitle streams", "file", path)
		r, err := processor.OpenRemuxed(ctx, path)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// summarize prints one line per input and fails when any input aborted.
func summarize(reports []*extract.Report) error {
	failed := 0
	for _, rep := range reports {
		outputs := rep.Outputs()
		switch {
		case rep.Err != nil:
			failed++
			fmt.Printf("FAILED %s: %v\n", rep.Path, rep.Err)
		case len(outputs) == 0:
			fmt.Printf("%s: no subtitle tracks extracted\n", rep.Path)
		default:
			fmt.Printf("%s:\n", rep.Path)
			for _, out := range outputs {
				fmt.Printf("  %s\n", out)
			}
		}
		for _, t := range rep.Tracks {
			if t.Err != nil {
				fmt.Printf("  track %d failed: %v\n", t.Number, t.Err)
			} else if t.Skipped != "" {
				fmt.Printf("  track %d skipped: %s\n", t.Number, t.Skipped)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(reports))
	}
	return nil
}
