package evaluation

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Output file names inside the output directory
const (
	SampleTableName  = "metrics.csv"
	SummaryTableName = "total.csv"
)

// SampleTable builds one row per evaluated sample: file_name, threshold
// and one column per registered metric.
func (r *Report) SampleTable() dataframe.DataFrame {
	names := make([]string, len(r.Samples))
	thresholds := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		names[i] = s.FileName
		thresholds[i] = s.Threshold
	}

	cols := []series.Series{
		series.New(names, series.String, "file_name"),
		series.New(thresholds, series.Float, ThresholdColumn),
	}
	for _, metric := range r.MetricNames {
		values := make([]float64, len(r.Samples))
		for i, s := range r.Samples {
			values[i] = s.Metrics[metric]
		}
		cols = append(cols, series.New(values, series.Float, metric))
	}
	return dataframe.New(cols...)
}

// SummaryTable builds the one-row aggregate: <metric>(Mean) and
// <metric>(Std) per metric, the threshold statistics (or the fixed
// threshold), and the extrema diagnostics.
func (r *Report) SummaryTable() dataframe.DataFrame {
	var cols []series.Series
	float := func(name string, v float64) {
		cols = append(cols, series.New([]float64{v}, series.Float, name))
	}
	str := func(name, v string) {
		cols = append(cols, series.New([]string{v}, series.String, name))
	}

	if r.Mode == UseThreshold {
		float(ThresholdColumn, r.FixedThreshold)
	}
	for _, metric := range r.MetricNames {
		st := r.Stats[metric]
		float(metric+"(Mean)", st.Mean)
		float(metric+"(Std)", st.Std)
	}
	if r.Mode != UseThreshold {
		st := r.Stats[ThresholdColumn]
		float(ThresholdColumn+"(Mean)", st.Mean)
		float(ThresholdColumn+"(Std)", st.Std)
	}

	float("max_DICE", r.Extrema.Max)
	str("max_DICE_file", r.Extrema.MaxFile)
	float("max_DICE_thresh", r.Extrema.MaxThresh)
	float("min_DICE", r.Extrema.Min)
	str("min_DICE_file", r.Extrema.MinFile)
	float("min_DICE_thresh", r.Extrema.MinThresh)

	return dataframe.New(cols...)
}

// WriteTables writes the summary table and, when withSamples is set, the
// per-sample table into dir.
func (r *Report) WriteTables(dir string, withSamples bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if withSamples {
		if err := writeCSV(filepath.Join(dir, SampleTableName), r.SampleTable()); err != nil {
			return err
		}
	}
	return writeCSV(filepath.Join(dir, SummaryTableName), r.SummaryTable())
}

// writeCSV writes df with floats in shortest round-trip form
func writeCSV(path string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return fmt.Errorf("failed to build %s: %w", filepath.Base(path), df.Err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records(df)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// records renders df with a header row. Float columns are formatted with
// strconv 'g' and no fixed precision; other columns use gota's own text.
func records(df dataframe.DataFrame) [][]string {
	names := df.Names()
	out := make([][]string, df.Nrow()+1)
	out[0] = names
	for r := 1; r < len(out); r++ {
		out[r] = make([]string, len(names))
	}
	for c, name := range names {
		col := df.Col(name)
		var cells []string
		if col.Type() == series.Float {
			values := col.Float()
			cells = make([]string, len(values))
			for i, v := range values {
				cells[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		} else {
			cells = col.Records()
		}
		for r, cell := range cells {
			out[r+1][c] = cell
		}
	}
	return out
}
