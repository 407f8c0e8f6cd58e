package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bratseval/internal/logger"
	"bratseval/pkg/config"
)

// rootCMD is the bratseval entry point; subcommands share its config and
// logger.
var rootCMD = &cobra.Command{
	Use:   "bratseval",
	Short: "Evaluate diffusion-based anomaly detection on BraTS slices",
	Long: `bratseval scores generated reconstructions against tumor segmentations.

It finds or applies a binarisation threshold over a folder of sample files,
writes per-sample and summary CSV tables, and renders training curves,
sample panels and latent embeddings.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var rootFlags = struct {
	config, logLevel string
	jsonLogs         bool
}{}

var (
	cfg *config.Config
	log = logger.Nop()
)

func init() {
	rootCMD.PersistentFlags().StringVarP(&rootFlags.config, "config", "c", "bratseval.yaml",
		"set the path to the configuration file")
	rootCMD.PersistentFlags().StringVarP(&rootFlags.logLevel, "log-level", "l", "",
		"set the log level (overwrites the setting in the configuration file)")
	rootCMD.PersistentFlags().BoolVar(&rootFlags.jsonLogs, "json", false,
		"log JSON lines instead of console output")
	rootCMD.AddCommand(findCMD, useCMD, plotTrainingCMD, plotSampleCMD, plotEmbeddingCMD, initConfigCMD)
}

func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(rootFlags.config)
	if err != nil {
		return err
	}
	cfg = loaded

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = rootFlags.logLevel
	}
	if cmd.Flags().Changed("json") {
		cfg.Logging.JSON = rootFlags.jsonLogs
	}
	level := logger.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.JSON {
		log = logger.New(os.Stderr, level)
	} else {
		log = logger.NewConsole(level)
	}
	log.Debug("cli", "configuration loaded", map[string]interface{}{
		"path":    rootFlags.config,
		"command": cmd.Name(),
	})
	return nil
}

func main() {
	if err := rootCMD.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
