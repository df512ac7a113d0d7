package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/mgpai22/subtools/internal/codec"
	"github.com/mgpai22/subtools/internal/extract"
	"github.com/mgpai22/subtools/internal/fileproc"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/mgpai22/subtools/internal/ocr"
	"github.com/mgpai22/subtools/internal/pgs"
	"github.com/spf13/cobra"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [path...]",
	Short: "Turn image subtitles into SubRip with an AI vision model",
	Long: `Recognize the text of image subtitles and write it as SubRip.

Inputs are PGS streams (.sup) or Matroska files, whose VobSub and PGS
tracks are recognized while text tracks are ignored. A .sup input becomes
<name>.srt; Matroska tracks become <name>.<track>[.<lang>].srt. Existing
outputs are kept unless --overwrite is given.

Examples:
  subtools ocr movie.sup
  subtools ocr movie.mkv --provider anthropic
  subtools ocr discs/ --recursive --ocr-language french`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().
		Bool("overwrite", false, "Overwrite existing output files")
	ocrCmd.Flags().
		BoolP("recursive", "r", false, "Descend into subdirectories")
	addOCRFlags(ocrCmd)
}

func runOCR(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	recursive, _ := cmd.Flags().GetBool("recursive")

	paths, err := fileproc.Collect(args, fileproc.Options{
		Recursive: recursive,
		Match:     func(p string) bool { return fileproc.IsSup(p) || fileproc.IsMatroska(p) },
	})
	if err != nil {
		return err
	}

	rec, err := newRecognizer(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	handlers := &ocr.Handlers{Ctx: ctx, Recognizer: rec, Log: logger}

	var containers []string
	var errs []error
	for _, path := range paths {
		if !fileproc.IsSup(path) {
			containers = append(containers, path)
			continue
		}
		out := supOutput(path, cfg.Extract.OutputDir)
		if err := ocrSup(path, out, overwrite, handlers); err != nil {
			logger.Errorw("OCR failed", "file", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Printf("%s:\n  %s\n", path, out)
	}

	if len(containers) > 0 {
		sinks := extract.FileSinks(cfg.Extract.OutputDir, overwrite, handlers)
		e := &extract.Extractor{
			Sinks: func(path string) extract.SinkFactory {
				return imageTracksOnly{sinks(path)}
			},
			Log: logger,
		}
		// one file at a time; each image is already a network request
		if err := summarize(extract.RunBatch(ctx, e, containers, 1)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func supOutput(path, dir string) string {
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return filepath.Join(dir, extract.BaseName(path)+".srt")
}

func ocrSup(path, out string, overwrite bool, handlers *ocr.Handlers) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p, err := handlers.Create(out, overwrite)
	if err != nil {
		return err
	}
	logger.Infow("Recognizing PGS stream", "file", path, "output", out)
	decodeErr := pgs.DecodeSup(f, p.HandleImage)
	if err := errors.Join(decodeErr, p.Close()); err != nil {
		return err
	}
	logger.Infow("OCR complete", "file", path, "cues", p.Cues())
	return nil
}

// imageTracksOnly leaves text tracks alone so ocr never rewrites them.
type imageTracksOnly struct {
	extract.SinkFactory
}

func (f imageTracksOnly) NewSink(track mkv.Track, kind codec.Kind) (extract.Output, error) {
	if !kind.IsImage() {
		return extract.Output{}, fmt.Errorf("%s: text track: %w", kind, extract.ErrUnsupported)
	}
	return f.SinkFactory.NewSink(track, kind)
}
