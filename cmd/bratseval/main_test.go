package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/sbinet/npyio/npz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bratseval/internal/models"
	"bratseval/pkg/config"
	"bratseval/pkg/evaluation"
	"bratseval/pkg/npyfile"
	"bratseval/pkg/threshold"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCMD.SetOut(&out)
	rootCMD.SetErr(&out)
	rootCMD.SetArgs(args)
	err := rootCMD.Execute()
	return out.String(), err
}

// squareRecord has a 15x15 tumor that the reconstruction fully removes
func squareRecord() *models.SampleRecord {
	const size = 20
	rec := &models.SampleRecord{Label: models.NewPlane(size, size)}
	for m := 0; m < models.NumModalities; m++ {
		rec.Image[m] = models.NewPlane(size, size)
		rec.Generated[m] = models.NewPlane(size, size)
	}
	for y := 1; y < size; y++ {
		for x := 1; x < size; x++ {
			gen := 0.5
			if x >= 3 && x < 18 && y >= 3 && y < 18 {
				rec.Label.Set(x, y, 1)
				gen = 0.9
			}
			for m := 0; m < models.NumModalities; m++ {
				rec.Image[m].Set(x, y, 0.5)
				rec.Generated[m].Set(x, y, gen)
			}
		}
	}
	return rec
}

func TestEvaluationOptionsModes(t *testing.T) {
	c := config.DefaultConfig()

	opts, err := evaluationOptions(c, evaluation.FindThreshold)
	require.NoError(t, err)
	assert.IsType(t, threshold.OtsuBinarizer{}, opts.Binarizer)
	assert.True(t, opts.Denoise)
	assert.Equal(t, []string{"DICE_WT", "AUROC_WT"}, opts.Registry.Names())

	c.Evaluation.Threshold = 0.25
	opts, err = evaluationOptions(c, evaluation.UseThreshold)
	require.NoError(t, err)
	assert.Equal(t, threshold.FixedBinarizer{Threshold: 0.25}, opts.Binarizer)
	assert.False(t, opts.Denoise)

	off := false
	c.Evaluation.Denoise = &off
	opts, err = evaluationOptions(c, evaluation.FindThreshold)
	require.NoError(t, err)
	assert.False(t, opts.Denoise)

	c.Evaluation.ScoreKind = "squared"
	c.Evaluation.Region = "et"
	opts, err = evaluationOptions(c, evaluation.FindThreshold)
	require.NoError(t, err)
	assert.Equal(t, models.ScoreSquared, opts.ScoreKind)
	assert.Equal(t, []string{"DICE_ET", "AUROC_ET"}, opts.Registry.Names())
}

func TestEvaluationOptionsRejectsBadValues(t *testing.T) {
	c := config.DefaultConfig()
	c.Evaluation.Region = "XX"
	_, err := evaluationOptions(c, evaluation.FindThreshold)
	assert.Error(t, err)

	c = config.DefaultConfig()
	c.Evaluation.ScoreKind = "cubic"
	_, err = evaluationOptions(c, evaluation.FindThreshold)
	assert.Error(t, err)

	_, err = evaluationOptions(config.DefaultConfig(), evaluation.Mode("guess"))
	assert.Error(t, err)
}

func TestUseThresholdCommand(t *testing.T) {
	data := t.TempDir()
	out := filepath.Join(t.TempDir(), "results")
	require.NoError(t, npyfile.WriteSample(filepath.Join(data, "samples_0.npy"), squareRecord()))

	stdout, err := execute(t, "use-threshold",
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--data-dir", data, "--output-dir", out, "--threshold", "0.1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "use-threshold: 1 evaluated, 0 skipped, 0 failed")

	f, err := os.Open(filepath.Join(out, evaluation.SummaryTableName))
	require.NoError(t, err)
	defer f.Close()
	total := dataframe.ReadCSV(f)
	require.NoError(t, total.Err)
	assert.Equal(t, evaluation.ThresholdColumn, total.Names()[0])
	assert.InDelta(t, 0.1, total.Col(evaluation.ThresholdColumn).Float()[0], 1e-12)
	assert.InDelta(t, 1.0, total.Col("DICE_WT(Mean)").Float()[0], 1e-6)

	_, err = os.Stat(filepath.Join(out, evaluation.SampleTableName))
	assert.NoError(t, err)
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "bratseval.yaml")

	stdout, err := execute(t, "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, path)

	c, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), c)

	_, err = execute(t, "init-config", path)
	assert.Error(t, err)
}

func TestLoadEmbedding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zs.npz")
	w, err := npz.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write("all_zs", []float64{0.1, 0.2, 0.3}))
	require.NoError(t, w.Write("all_labels", []int64{0, 1, 1}))
	require.NoError(t, w.Close())

	// latent codes must be a matrix
	_, _, err = loadEmbedding(path)
	assert.Error(t, err)

	_, _, err = loadEmbedding(filepath.Join(t.TempDir(), "missing.npz"))
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	plotFlags.out = ""
	assert.Equal(t, filepath.Join("runs", "samples_3.png"), outputPath(filepath.Join("runs", "samples_3.npy")))
	plotFlags.out = "figure.png"
	assert.Equal(t, "figure.png", outputPath("anything.csv"))
	plotFlags.out = ""
}
