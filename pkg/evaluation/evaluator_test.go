package evaluation

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bratseval/internal/models"
	"bratseval/pkg/mask"
	"bratseval/pkg/metrics"
	"bratseval/pkg/npyfile"
	"bratseval/pkg/threshold"
)

const size = 20

type rect struct{ x0, y0, x1, y1 int }

func (r rect) contains(x, y int) bool {
	return x >= r.x0 && x < r.x1 && y >= r.y0 && y < r.y1
}

// syntheticRecord builds a 20x20 slice whose first row and column are
// background. Pixels in tumor get label 2; pixels in changed are
// reconstructed brighter than the input.
func syntheticRecord(tumor rect, changed ...rect) *models.SampleRecord {
	rec := &models.SampleRecord{Label: models.NewPlane(size, size)}
	for m := 0; m < models.NumModalities; m++ {
		rec.Image[m] = models.NewPlane(size, size)
		rec.Generated[m] = models.NewPlane(size, size)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if tumor.contains(x, y) {
				rec.Label.Set(x, y, 2)
			}
			if x == 0 || y == 0 {
				continue
			}
			gen := 0.5
			for _, c := range changed {
				if c.contains(x, y) {
					gen = 0.9
				}
			}
			for m := 0; m < models.NumModalities; m++ {
				rec.Image[m].Set(x, y, 0.5)
				rec.Generated[m].Set(x, y, gen)
			}
		}
	}
	return rec
}

var (
	tumor    = rect{3, 3, 18, 18}
	strip    = rect{1, 1, 16, 3}
	tinyArea = rect{5, 5, 10, 10}
)

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, npyfile.WriteSample(filepath.Join(dir, "samples_0.npy"), syntheticRecord(tumor, tumor)))
	require.NoError(t, npyfile.WriteSample(filepath.Join(dir, "samples_1.npy"), syntheticRecord(tumor, tumor, strip)))
	require.NoError(t, npyfile.WriteSample(filepath.Join(dir, "samples_2.npy"), syntheticRecord(tinyArea, tinyArea)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samples_3.npy"), []byte("corrupt"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	return dir
}

func newOptions(dir string, mode Mode, b threshold.Binarizer) Options {
	return Options{
		Mode:      mode,
		DataDir:   dir,
		Binarizer: b,
		Registry:  metrics.ForRegion(mask.WholeTumor, metrics.DefaultEpsilon, metrics.DefaultMinPositivePixels),
		Denoise:   mode == FindThreshold,
		Logger:    zerolog.Nop(),
	}
}

func TestFindThresholdRun(t *testing.T) {
	dir := writeDataset(t)
	ev, err := NewEvaluator(newOptions(dir, FindThreshold, threshold.OtsuBinarizer{}))
	require.NoError(t, err)
	assert.Equal(t, Idle, ev.State())
	assert.Equal(t, []string{"samples_0.npy", "samples_1.npy", "samples_2.npy", "samples_3.npy"}, ev.Files())

	report, err := ev.Run()
	require.NoError(t, err)
	assert.Equal(t, Done, ev.State())

	require.Len(t, report.Samples, 2)
	assert.Equal(t, []string{"samples_2.npy"}, report.Skipped)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "samples_3.npy", report.Failures[0].FileName)
	assert.Contains(t, report.Failures[0].Error(), "samples_3.npy")

	perfect := report.Samples[0]
	assert.Equal(t, "samples_0.npy", perfect.FileName)
	assert.InDelta(t, 1.0, perfect.Metrics["DICE_WT"], 1e-6)
	assert.InDelta(t, 1.0, perfect.Metrics["AUROC_WT"], 1e-9)

	wantDice := 2.0 * 225 / (225 + 225 + 30)
	assert.InDelta(t, wantDice, report.Samples[1].Metrics["DICE_WT"], 1e-6)

	assert.InDelta(t, (1+wantDice)/2, report.Stats["DICE_WT"].Mean, 1e-6)
	assert.InDelta(t, (1-wantDice)/2, report.Stats["DICE_WT"].Std, 1e-6)

	assert.Equal(t, "DICE_WT", report.Extrema.Metric)
	assert.Equal(t, "samples_0.npy", report.Extrema.MaxFile)
	assert.Equal(t, "samples_1.npy", report.Extrema.MinFile)
	assert.InDelta(t, perfect.Threshold, report.Extrema.MaxThresh, 1e-12)

	_, err = ev.Run()
	assert.Error(t, err, "an evaluator runs once")
}

func TestUseThresholdRun(t *testing.T) {
	dir := writeDataset(t)
	ev, err := NewEvaluator(newOptions(dir, UseThreshold, threshold.FixedBinarizer{Threshold: 0.2}))
	require.NoError(t, err)

	report, err := ev.Run()
	require.NoError(t, err)
	require.Len(t, report.Samples, 2)
	for _, s := range report.Samples {
		assert.Equal(t, 0.2, s.Threshold)
	}
	assert.Equal(t, 0.2, report.FixedThreshold)
	assert.InDelta(t, 1.0, report.Samples[0].Metrics["DICE_WT"], 1e-6)
}

func TestWriteTables(t *testing.T) {
	dir := writeDataset(t)
	ev, err := NewEvaluator(newOptions(dir, FindThreshold, threshold.OtsuBinarizer{}))
	require.NoError(t, err)
	report, err := ev.Run()
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "results")
	require.NoError(t, report.WriteTables(out, true))

	samples := readCSV(t, filepath.Join(out, SampleTableName))
	assert.Equal(t, 2, samples.Nrow())
	assert.Equal(t, []string{"file_name", "threshold", "DICE_WT", "AUROC_WT"}, samples.Names())

	total := readCSV(t, filepath.Join(out, SummaryTableName))
	assert.Equal(t, 1, total.Nrow())
	assert.Equal(t, []string{
		"DICE_WT(Mean)", "DICE_WT(Std)", "AUROC_WT(Mean)", "AUROC_WT(Std)",
		"threshold(Mean)", "threshold(Std)",
		"max_DICE", "max_DICE_file", "max_DICE_thresh",
		"min_DICE", "min_DICE_file", "min_DICE_thresh",
	}, total.Names())
	assert.Equal(t, "samples_0.npy", total.Col("max_DICE_file").Records()[0])
}

func TestUseThresholdSummaryLayout(t *testing.T) {
	report := &Report{
		Mode:           UseThreshold,
		MetricNames:    []string{"DICE_WT"},
		FixedThreshold: 0.05,
		Stats:          map[string]Stat{"DICE_WT": {Mean: 0.7, Std: 0.1}},
	}
	df := report.SummaryTable()
	require.NoError(t, df.Err)
	assert.Equal(t, "threshold", df.Names()[0])
	assert.NotContains(t, df.Names(), "threshold(Mean)")
	assert.InDelta(t, 0.05, df.Col("threshold").Float()[0], 1e-12)
}

func TestEmptyDirectory(t *testing.T) {
	ev, err := NewEvaluator(newOptions(t.TempDir(), FindThreshold, threshold.OtsuBinarizer{}))
	require.NoError(t, err)

	report, err := ev.Run()
	require.NoError(t, err)
	assert.Empty(t, report.Samples)
	assert.True(t, report.Stats["DICE_WT"].Mean != report.Stats["DICE_WT"].Mean, "mean of nothing is NaN")
	assert.Equal(t, 0.0, report.Extrema.Max)
	assert.Equal(t, 1.0, report.Extrema.Min)
}

func TestNewEvaluatorErrors(t *testing.T) {
	_, err := NewEvaluator(newOptions(filepath.Join(t.TempDir(), "missing"), FindThreshold, threshold.OtsuBinarizer{}))
	assert.Error(t, err)

	opts := newOptions(t.TempDir(), FindThreshold, nil)
	_, err = NewEvaluator(opts)
	assert.Error(t, err)

	opts = newOptions(t.TempDir(), FindThreshold, threshold.OtsuBinarizer{})
	opts.Registry = nil
	_, err = NewEvaluator(opts)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "iterating", Iterating.String())
	assert.Equal(t, "aggregating", Aggregating.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func readCSV(t *testing.T, path string) dataframe.DataFrame {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	require.NoError(t, df.Err)
	return df
}

func TestWriteTablesKeepsFullPrecision(t *testing.T) {
	report := &Report{
		Mode:           UseThreshold,
		MetricNames:    []string{"DICE_WT"},
		FixedThreshold: 0.0817678607279089,
		Samples: []SampleResult{
			{FileName: "samples_0.npy", Threshold: 0.0817678607279089, Metrics: map[string]float64{"DICE_WT": 0.123456789012}},
		},
		Stats:   map[string]Stat{"DICE_WT": {Mean: 0.123456789012, Std: 1.234e-7}},
		Extrema: Extrema{Metric: "DICE_WT", Max: 0.123456789012, MaxFile: "samples_0.npy", Min: 1},
	}
	out := t.TempDir()
	require.NoError(t, report.WriteTables(out, true))

	total := readRecords(t, filepath.Join(out, SummaryTableName))
	require.Len(t, total, 2)
	row := make(map[string]string)
	for i, name := range total[0] {
		row[name] = total[1][i]
	}
	assert.Equal(t, "0.0817678607279089", row[ThresholdColumn])
	assert.Equal(t, "1.234e-07", row["DICE_WT(Std)"])
	assert.Equal(t, "samples_0.npy", row["max_DICE_file"])

	v, err := strconv.ParseFloat(row[ThresholdColumn], 64)
	require.NoError(t, err)
	assert.Equal(t, 0.0817678607279089, v)

	samples := readRecords(t, filepath.Join(out, SampleTableName))
	require.Len(t, samples, 2)
	assert.Equal(t, []string{"samples_0.npy", "0.0817678607279089", "0.123456789012"}, samples[1])
}

func TestUseThresholdRunWithPointerBinarizer(t *testing.T) {
	dir := writeDataset(t)
	ev, err := NewEvaluator(newOptions(dir, UseThreshold, &threshold.FixedBinarizer{Threshold: 0.2}))
	require.NoError(t, err)

	report, err := ev.Run()
	require.NoError(t, err)
	assert.Equal(t, 0.2, report.FixedThreshold)
	assert.InDelta(t, 0.2, report.SummaryTable().Col(ThresholdColumn).Float()[0], 1e-12)
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}
