package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"

	"bratseval/pkg/config"
	"bratseval/pkg/npyfile"
	"bratseval/pkg/visualization"
)

var plotTrainingCMD = &cobra.Command{
	Use:   "plot-training PROGRESS.csv",
	Short: "Plot every metric column of a training progress log",
	Args:  cobra.ExactArgs(1),
	RunE:  plotTraining,
}

var plotSampleCMD = &cobra.Command{
	Use:   "plot-sample SAMPLE.npy",
	Short: "Render inputs, reconstructions, errors and the prediction of one sample",
	Args:  cobra.ExactArgs(1),
	RunE:  plotSample,
}

var plotEmbeddingCMD = &cobra.Command{
	Use:   "plot-embedding ZS.npz",
	Short: "Scatter the latent codes of normal and abnormal slices",
	Long: `plot-embedding reads "all_zs" (one latent code per row) and "all_labels"
(0 for normal, 1 for abnormal) and projects the codes to 2D.`,
	Args: cobra.ExactArgs(1),
	RunE: plotEmbedding,
}

var plotFlags = struct {
	out string
}{}

func init() {
	for _, c := range []*cobra.Command{plotTrainingCMD, plotSampleCMD, plotEmbeddingCMD} {
		c.Flags().StringVarP(&plotFlags.out, "out", "o", "",
			"set the output PNG (defaults to the input name with a .png suffix)")
	}
}

func outputPath(in string) string {
	if plotFlags.out != "" {
		return plotFlags.out
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".png"
}

func trainingOptions(c *config.Config) visualization.TrainingOptions {
	return visualization.TrainingOptions{
		NumColumns:  c.Plotting.NumColumns,
		WarmUpSteps: c.Plotting.WarmUpSteps,
		Skip:        c.Plotting.SkipMetrics,
		Width:       vg.Length(c.Plotting.WidthInches) * vg.Inch,
		Height:      vg.Length(c.Plotting.HeightInches) * vg.Inch,
		DPI:         c.Plotting.DPI,
	}
}

func plotTraining(cmd *cobra.Command, args []string) error {
	out := outputPath(args[0])
	plotted, err := visualization.PlotTraining(args[0], out, trainingOptions(cfg))
	if err != nil {
		return err
	}
	log.Info("cli", "training curves saved", map[string]interface{}{
		"path":    out,
		"metrics": plotted,
	})
	return nil
}

func plotSample(cmd *cobra.Command, args []string) error {
	rec, err := npyfile.LoadSample(args[0])
	if err != nil {
		return err
	}
	out := outputPath(args[0])
	size := vg.Length(cfg.Plotting.HeightInches) * vg.Inch
	thresh, err := visualization.PlotSample(rec, out, size, cfg.Plotting.DPI)
	if err != nil {
		return err
	}
	log.Info("cli", "sample panel saved", map[string]interface{}{
		"path":      out,
		"threshold": thresh,
	})
	return nil
}

// loadEmbedding reads the latent matrix and per-row labels
func loadEmbedding(path string) (*mat.Dense, []float64, error) {
	zs, err := npyfile.LoadNPZ(path, "all_zs")
	if err != nil {
		return nil, nil, err
	}
	if len(zs.Shape) != 2 {
		return nil, nil, fmt.Errorf("all_zs has shape %v, expected (N, D)", zs.Shape)
	}
	labels, err := npyfile.LoadNPZ(path, "all_labels")
	if err != nil {
		return nil, nil, err
	}
	if len(labels.Data) != zs.Shape[0] {
		return nil, nil, fmt.Errorf("%d labels for %d latent codes", len(labels.Data), zs.Shape[0])
	}
	return mat.NewDense(zs.Shape[0], zs.Shape[1], zs.Data), labels.Data, nil
}

func plotEmbedding(cmd *cobra.Command, args []string) error {
	zs, labels, err := loadEmbedding(args[0])
	if err != nil {
		return err
	}
	out := outputPath(args[0])
	size := vg.Length(cfg.Plotting.HeightInches) * vg.Inch
	if err := visualization.PlotEmbedding(zs, labels, out, size, cfg.Plotting.DPI); err != nil {
		return err
	}
	n, d := zs.Dims()
	log.Info("cli", "embedding saved", map[string]interface{}{
		"path":  out,
		"codes": n,
		"dims":  d,
	})
	return nil
}
