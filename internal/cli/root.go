package cli

import (
	"github.com/mgpai22/subtools/internal/config"
	"github.com/mgpai22/subtools/internal/logging"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	outputDir  string
	logger     *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "subtools",
	Short: "Extract, convert and OCR subtitles from Matroska files",
	Long: `Subtools is a CLI tool that extracts subtitle tracks from Matroska
containers (.mkv, .mks, .mka, .webm) into standalone subtitle files.

Text tracks become SubRip or WebVTT files. Image tracks (VobSub, PGS) can be
saved as PNG images or turned into SubRip with an AI vision model.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.NewLogger(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/subtools/config.toml)")
	rootCmd.PersistentFlags().
		StringVarP(&outputDir, "output-dir", "o", "", "Directory for output files (default: next to each input)")
}

// loadConfig reads the config file; flags set on cmd override its values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, path, exists, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if exists {
		logger.Debugw("Loaded config", "path", path)
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Extract.OutputDir = outputDir
	}
	return cfg, nil
}
