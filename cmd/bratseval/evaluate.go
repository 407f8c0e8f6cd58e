package main

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"bratseval/internal/models"
	"bratseval/pkg/config"
	"bratseval/pkg/evaluation"
	"bratseval/pkg/mask"
	"bratseval/pkg/metrics"
	"bratseval/pkg/threshold"
)

var findCMD = &cobra.Command{
	Use:   "find-threshold",
	Short: "Run Otsu on every sample and report the threshold distribution",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return evaluate(cmd, evaluation.FindThreshold)
	},
}

var useCMD = &cobra.Command{
	Use:   "use-threshold",
	Short: "Apply one fixed threshold to every sample",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return evaluate(cmd, evaluation.UseThreshold)
	},
}

var evalFlags = struct {
	dataDir, outputDir, region, score string
	threshold                         float64
	denoise, noSamples                bool
}{}

func init() {
	for _, c := range []*cobra.Command{findCMD, useCMD} {
		c.Flags().StringVarP(&evalFlags.dataDir, "data-dir", "d", "",
			"set the sample folder (overwrites the setting in the configuration file)")
		c.Flags().StringVarP(&evalFlags.outputDir, "output-dir", "o", "",
			"set the folder receiving metrics.csv and total.csv")
		c.Flags().StringVarP(&evalFlags.region, "region", "r", "",
			"set the tumor region: ET, TC or WT")
		c.Flags().StringVar(&evalFlags.score, "score", "",
			"set the reconstruction error: abs or squared")
		c.Flags().BoolVar(&evalFlags.denoise, "denoise", false,
			"clip score maps to the 1st-99th percentile before thresholding")
		c.Flags().BoolVar(&evalFlags.noSamples, "no-samples", false,
			"skip writing metrics.csv")
	}
	useCMD.Flags().Float64VarP(&evalFlags.threshold, "threshold", "t", 0,
		"set the fixed threshold (overwrites the setting in the configuration file)")
}

// applyEvalFlags copies explicitly set flags over the configuration
func applyEvalFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		c.Evaluation.DataDir = evalFlags.dataDir
	}
	if flags.Changed("output-dir") {
		c.Evaluation.OutputDir = evalFlags.outputDir
	}
	if flags.Changed("region") {
		c.Evaluation.Region = evalFlags.region
	}
	if flags.Changed("score") {
		c.Evaluation.ScoreKind = evalFlags.score
	}
	if flags.Changed("threshold") {
		c.Evaluation.Threshold = evalFlags.threshold
	}
	if flags.Changed("denoise") {
		denoise := evalFlags.denoise
		c.Evaluation.Denoise = &denoise
	}
	if flags.Changed("no-samples") {
		c.Evaluation.StoreData = !evalFlags.noSamples
	}
}

// evaluationOptions maps the configuration onto evaluator options.
// Find-threshold runs denoise by default, use-threshold runs do not.
func evaluationOptions(c *config.Config, mode evaluation.Mode) (evaluation.Options, error) {
	region, err := mask.ParseRegion(c.Evaluation.Region)
	if err != nil {
		return evaluation.Options{}, err
	}

	var kind models.ScoreKind
	switch c.Evaluation.ScoreKind {
	case string(models.ScoreAbsolute):
		kind = models.ScoreAbsolute
	case string(models.ScoreSquared):
		kind = models.ScoreSquared
	default:
		return evaluation.Options{}, fmt.Errorf("unknown score kind %q", c.Evaluation.ScoreKind)
	}

	opts := evaluation.Options{
		Mode:      mode,
		DataDir:   c.Evaluation.DataDir,
		Extension: c.Evaluation.Extension,
		Registry:  metrics.ForRegion(region, c.Evaluation.Epsilon, c.Evaluation.MinPositivePixels),
		ScoreKind: kind,
	}
	switch mode {
	case evaluation.FindThreshold:
		opts.Binarizer = threshold.OtsuBinarizer{}
		opts.Denoise = true
	case evaluation.UseThreshold:
		opts.Binarizer = threshold.FixedBinarizer{Threshold: c.Evaluation.Threshold}
	default:
		return evaluation.Options{}, fmt.Errorf("unknown mode %q", mode)
	}
	if c.Evaluation.Denoise != nil {
		opts.Denoise = *c.Evaluation.Denoise
	}
	return opts, nil
}

func evaluate(cmd *cobra.Command, mode evaluation.Mode) error {
	applyEvalFlags(cmd, cfg)
	opts, err := evaluationOptions(cfg, mode)
	if err != nil {
		return err
	}
	opts.Logger = log.Component("evaluation")

	ev, err := evaluation.NewEvaluator(opts)
	if err != nil {
		return err
	}
	report, err := ev.Run()
	if err != nil {
		return err
	}
	if err := report.WriteTables(cfg.Evaluation.OutputDir, cfg.Evaluation.StoreData); err != nil {
		log.Error("cli", err, map[string]interface{}{"dir": cfg.Evaluation.OutputDir})
		return err
	}
	log.Info("cli", "tables written", map[string]interface{}{"dir": cfg.Evaluation.OutputDir})
	if len(report.Failures) > 0 {
		log.Warning("cli", "some samples could not be evaluated", map[string]interface{}{
			"failed": len(report.Failures),
		})
	}

	printSummary(cmd.OutOrStdout(), cmd.ErrOrStderr(), report)
	return nil
}

func printSummary(w, errw io.Writer, r *evaluation.Report) {
	fmt.Fprintf(w, "%s: %d evaluated, %d skipped, %d failed\n",
		r.Mode, len(r.Samples), len(r.Skipped), len(r.Failures))
	if r.Mode == evaluation.UseThreshold {
		fmt.Fprintf(w, "%-12s %.6f\n", evaluation.ThresholdColumn, r.FixedThreshold)
	}
	for _, name := range r.MetricNames {
		st := r.Stats[name]
		fmt.Fprintf(w, "%-12s %s\n", name, formatStat(st))
	}
	if r.Mode != evaluation.UseThreshold {
		fmt.Fprintf(w, "%-12s %s\n", evaluation.ThresholdColumn, formatStat(r.Stats[evaluation.ThresholdColumn]))
	}
	if r.Extrema.MaxFile != "" {
		fmt.Fprintf(w, "best  %s %.4f (%s)\n", r.Extrema.Metric, r.Extrema.Max, r.Extrema.MaxFile)
		fmt.Fprintf(w, "worst %s %.4f (%s)\n", r.Extrema.Metric, r.Extrema.Min, r.Extrema.MinFile)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(errw, "failed: %v\n", f)
	}
}

func formatStat(st evaluation.Stat) string {
	if math.IsNaN(st.Mean) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f ± %.4f", st.Mean, st.Std)
}
