package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mgpai22/subtools/internal/codec"
	"github.com/mgpai22/subtools/internal/extract"
	"github.com/mgpai22/subtools/internal/fileproc"
	"github.com/mgpai22/subtools/internal/mkv"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks [path...]",
	Short: "List the tracks of Matroska files",
	Long: `Print a table of every track in one or more Matroska files, with the
subtitle format subtools recognizes and the file extract would write.

Examples:
  subtools tracks movie.mkv
  subtools tracks shows/ --all`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTracks,
}

func init() {
	rootCmd.AddCommand(tracksCmd)

	tracksCmd.Flags().
		Bool("all", false, "Include video and audio tracks")
	tracksCmd.Flags().
		BoolP("recursive", "r", false, "Descend into subdirectories")
}

func runTracks(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	recursive, _ := cmd.Flags().GetBool("recursive")

	paths, err := fileproc.Collect(args, fileproc.Options{Recursive: recursive, Match: fileproc.IsMatroska})
	if err != nil {
		return err
	}

	for i, path := range paths {
		if i > 0 {
			fmt.Println()
		}
		r, err := mkv.Open(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		info, tracks := r.Info(), r.Tracks()
		r.Close()

		fmt.Println(describeContainer(path, info))
		rows := trackRows(tracks, extract.BaseName(path), all)
		if len(rows) == 0 {
			fmt.Println("no subtitle tracks")
			continue
		}
		fmt.Println(renderTable(
			[]string{"#", "Type", "Codec", "Format", "Language", "Name", "Flags", "Output"},
			rows,
			[]columnAlignment{alignRight},
		))
	}
	return nil
}

func describeContainer(path string, info mkv.Info) string {
	var sb strings.Builder
	sb.WriteString(path)
	if info.Title != "" {
		sb.WriteString(fmt.Sprintf(" - %q", info.Title))
	}
	if info.Duration > 0 {
		// Duration counts timestamp units
		d := time.Duration(info.Duration * float64(info.TimestampScale))
		sb.WriteString(fmt.Sprintf(" (%s)", d.Round(time.Second)))
	}
	return sb.String()
}

func trackRows(tracks []mkv.Track, base string, all bool) [][]string {
	var rows [][]string
	for _, t := range tracks {
		if t.Type != mkv.TypeSubtitle && !all {
			continue
		}

		format, output := "", ""
		if t.Type == mkv.TypeSubtitle {
			kind, err := codec.Resolve(t.CodecID)
			if err != nil {
				format = "unknown"
			} else {
				format = kind.String()
				output = extract.OutputName(base, t.Number, t.Lang(), kind.Extension())
				if kind.IsImage() {
					output = extract.OutputStem(base, t.Number, t.Lang()) + ".images/"
				}
			}
		}

		var flags []string
		if t.Default {
			flags = append(flags, "default")
		}
		if t.Forced {
			flags = append(flags, "forced")
		}

		rows = append(rows, []string{
			strconv.FormatUint(t.Number, 10),
			t.Type.String(),
			t.CodecID,
			format,
			languageName(t.Lang()),
			t.Name,
			strings.Join(flags, ","),
			output,
		})
	}
	return rows
}

// languageName renders a Matroska language code as "English (eng)".
func languageName(code string) string {
	if code == "" || code == "und" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Tags().Name(tag)
	if name == "" {
		return code
	}
	return fmt.Sprintf("%s (%s)", name, code)
}
