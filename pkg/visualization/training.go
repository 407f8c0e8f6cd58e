package visualization

import (
	"fmt"
	"math"
	"os"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// TrainingOptions controls the training-curve figure
type TrainingOptions struct {
	// NumColumns is the subplot grid width
	NumColumns int

	// WarmUpSteps excludes rows with step below it from the y range,
	// keeping early loss spikes from flattening the curve
	WarmUpSteps int

	// Skip lists columns that are not plotted
	Skip []string

	// Width and Height size the figure
	Width, Height vg.Length

	// DPI is the output resolution
	DPI int
}

// DefaultTrainingOptions mirrors the figure used for progress reports
func DefaultTrainingOptions() TrainingOptions {
	return TrainingOptions{
		NumColumns:  4,
		WarmUpSteps: 4000,
		Skip:        []string{"step", "samples"},
		Width:       12 * vg.Inch,
		Height:      10 * vg.Inch,
		DPI:         150,
	}
}

// PlotTraining reads a progress CSV with a "step" column and draws one
// line plot per remaining metric column. It returns the plotted metric
// names.
func PlotTraining(progressPath, outPath string, opts TrainingOptions) ([]string, error) {
	f, err := os.Open(progressPath)
	if err != nil {
		return nil, err
	}
	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	f.Close()
	if df.Err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", progressPath, df.Err)
	}
	return plotTrainingFrame(df, outPath, opts)
}

func plotTrainingFrame(df dataframe.DataFrame, outPath string, opts TrainingOptions) ([]string, error) {
	if opts.NumColumns < 1 {
		opts.NumColumns = 1
	}
	hasStep := false
	for _, name := range df.Names() {
		if name == "step" {
			hasStep = true
		}
	}
	if !hasStep {
		return nil, fmt.Errorf("progress table has no step column")
	}
	steps := df.Col("step").Float()

	warmUp := 0
	for _, s := range steps {
		if s < float64(opts.WarmUpSteps) {
			warmUp++
		}
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, s := range opts.Skip {
		skip[s] = true
	}

	var names []string
	var plots []*plot.Plot
	for _, name := range df.Names() {
		if skip[name] || name == "step" {
			continue
		}
		values := df.Col(name).Float()

		pts := make(plotter.XYs, 0, len(values))
		for i, v := range values {
			if math.IsNaN(v) || math.IsNaN(steps[i]) {
				continue
			}
			pts = append(pts, plotter.XY{X: steps[i], Y: v})
		}

		p := plot.New()
		p.Title.Text = name
		p.X.Label.Text = "step"
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", name, err)
		}
		p.Add(line)
		if lo, hi, ok := finiteRange(values, warmUp); ok {
			p.Y.Min, p.Y.Max = lo, hi
		}

		names = append(names, name)
		plots = append(plots, p)
	}
	if len(plots) == 0 {
		return nil, fmt.Errorf("progress table has no metric columns")
	}

	rows := (len(plots) + opts.NumColumns - 1) / opts.NumColumns
	grid := make([][]*plot.Plot, rows)
	for r := range grid {
		grid[r] = make([]*plot.Plot, opts.NumColumns)
	}
	for i, p := range plots {
		grid[i/opts.NumColumns][i%opts.NumColumns] = p
	}

	if err := savePNG(grid, opts.Width, opts.Height, opts.DPI, outPath); err != nil {
		return nil, err
	}
	return names, nil
}

// finiteRange returns the min and max of values[from:], ignoring NaN.
// A flat series gets a unit-wide range.
func finiteRange(values []float64, from int) (float64, float64, bool) {
	if from >= len(values) {
		from = 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values[from:] {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 0, false
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	return lo, hi, true
}
