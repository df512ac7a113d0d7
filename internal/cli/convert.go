package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mgpai22/subtools/internal/fileproc"
	"github.com/mgpai22/subtools/internal/subtitle"
	"github.com/mgpai22/subtools/internal/textenc"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert-to-utf8 [path...]",
	Short: "Convert text subtitles to UTF-8 with a byte order mark",
	Long: `Convert SubRip and WebVTT files to UTF-8 with a byte order mark.

UTF-8 and UTF-16 files are recognized by their byte order mark or content.
Other files are decoded from --from (default windows-1252). Converted files
are written as <name>.utf8.<ext> unless --in-place is given. Every result
is parsed before it replaces anything and must hold one cue per timing
line of the input.

Examples:
  subtools convert-to-utf8 movie.srt
  subtools convert-to-utf8 subs/ --from iso-8859-2 --in-place`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().
		String("from", "", "Encoding of files that are not UTF-8 or UTF-16 (default from config, windows-1252)")
	convertCmd.Flags().
		Bool("in-place", false, "Replace the input files")
	convertCmd.Flags().
		BoolP("recursive", "r", false, "Descend into subdirectories")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("from") {
		cfg.Convert.From, _ = cmd.Flags().GetString("from")
	}
	inPlace, _ := cmd.Flags().GetBool("in-place")
	recursive, _ := cmd.Flags().GetBool("recursive")

	legacy, err := textenc.Lookup(cfg.Convert.From)
	if err != nil {
		return err
	}

	paths, err := fileproc.Collect(args, fileproc.Options{
		Recursive: recursive,
		Match: func(p string) bool {
			// earlier outputs are not converted again
			return fileproc.IsTextSubtitle(p) && !isConvertedName(p)
		},
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, path := range paths {
		out := path
		if !inPlace {
			out = convertedName(path, cfg.Extract.OutputDir)
		}
		src, changed, err := textenc.ConvertFile(path, out, legacy, checkConverted(path))
		if err != nil {
			logger.Errorw("Conversion failed", "file", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		logger.Infow("Converted", "file", path, "from", src, "output", out, "changed", changed)
		if changed {
			fmt.Printf("%s -> %s (%s)\n", path, out, src)
		} else {
			fmt.Printf("%s: already UTF-8 with BOM\n", path)
		}
	}
	return errors.Join(errs...)
}

// checkConverted parses the converted file as the format of path and
// requires one cue per timing line of the input text.
func checkConverted(path string) textenc.Verify {
	return func(tmp string, text []byte) error {
		format, err := subtitle.FormatOf(path)
		if err != nil {
			return err
		}
		sub, err := subtitle.ParseFile(tmp, format)
		if err != nil {
			return err
		}
		want := subtitle.CountTimings(text)
		if len(sub.Entries) == 0 && strings.TrimSpace(strings.TrimPrefix(string(text), "\ufeff")) != "" {
			return fmt.Errorf("no subtitle cues found: %w", subtitle.ErrNotSubtitle)
		}
		if len(sub.Entries) != want {
			return fmt.Errorf("parsed %d cues but the input has %d timing lines: %w",
				len(sub.Entries), want, subtitle.ErrNotSubtitle)
		}
		return nil
	}
}

// convertedName returns <name>.utf8.<ext> in dir, or next to path.
func convertedName(path, dir string) string {
	if dir == "" {
		dir = filepath.Dir(path)
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".utf8"+ext)
}

func isConvertedName(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), ".utf8")
}
