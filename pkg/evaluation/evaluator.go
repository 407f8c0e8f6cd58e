// Package evaluation runs the anomaly detector's per-slice outputs through
// masking, thresholding and the metric registry, and aggregates the
// results over a directory of sample files.
package evaluation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"bratseval/internal/models"
	"bratseval/pkg/mask"
	"bratseval/pkg/metrics"
	"bratseval/pkg/npyfile"
	"bratseval/pkg/threshold"
)

// Mode selects how the binarisation threshold is obtained
type Mode string

const (
	// FindThreshold runs Otsu on every sample to discover an operating point
	FindThreshold Mode = "find-threshold"

	// UseThreshold applies one externally supplied threshold to every sample
	UseThreshold Mode = "use-threshold"
)

// State is the evaluator's position in a run
type State int

const (
	Idle State = iota
	Iterating
	Aggregating
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Iterating:
		return "iterating"
	case Aggregating:
		return "aggregating"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ThresholdColumn is the column holding each sample's threshold
const ThresholdColumn = "threshold"

// Options configures an evaluation run
type Options struct {
	// Mode is recorded in the report and decides the summary layout
	Mode Mode

	// DataDir holds the sample files
	DataDir string

	// Extension selects sample files by suffix; empty means ".npy"
	Extension string

	// Binarizer turns each score map into a threshold and binary map
	Binarizer threshold.Binarizer

	// Registry lists the metrics computed per sample
	Registry *metrics.Registry

	// ScoreKind selects absolute or squared reconstruction error
	ScoreKind models.ScoreKind

	// Denoise clips score maps to the [1st, 99th] percentile range
	Denoise bool

	// ExtremaMetric is tracked for best and worst samples; empty means
	// the first registered Dice metric
	ExtremaMetric string

	// Logger receives progress and per-file failures
	Logger zerolog.Logger
}

// SampleResult holds the metrics of one evaluated file
type SampleResult struct {
	FileName  string
	Threshold float64
	Metrics   map[string]float64
}

// Failure records a file that could not be evaluated
type Failure struct {
	FileName string
	Err      error
}

func (f Failure) Error() string { return f.FileName + ": " + f.Err.Error() }

// Stat is a mean and population standard deviation
type Stat struct {
	Mean float64
	Std  float64
}

// Extrema identifies the best and worst samples by the tracked metric
type Extrema struct {
	Metric    string
	Max       float64
	MaxFile   string
	MaxThresh float64
	Min       float64
	MinFile   string
	MinThresh float64
}

// Report is the outcome of a run
type Report struct {
	Mode        Mode
	MetricNames []string
	// FixedThreshold is set for UseThreshold runs
	FixedThreshold float64
	Samples        []SampleResult
	Skipped        []string
	Failures       []Failure
	Stats          map[string]Stat
	Extrema        Extrema
}

// Evaluator walks a fixed list of sample files
type Evaluator struct {
	opts  Options
	files []string
	state State
	index int
	log   zerolog.Logger
}

// NewEvaluator lists the candidate files in opts.DataDir, sorted by name
func NewEvaluator(opts Options) (*Evaluator, error) {
	if opts.Binarizer == nil {
		return nil, fmt.Errorf("evaluator needs a binarizer")
	}
	if opts.Registry == nil || len(opts.Registry.Names()) == 0 {
		return nil, fmt.Errorf("evaluator needs at least one metric")
	}
	if opts.Extension == "" {
		opts.Extension = ".npy"
	}
	if opts.ScoreKind == "" {
		opts.ScoreKind = models.ScoreAbsolute
	}
	if opts.ExtremaMetric == "" {
		for _, name := range opts.Registry.Names() {
			if strings.HasPrefix(name, "DICE_") {
				opts.ExtremaMetric = name
				break
			}
		}
	}

	entries, err := os.ReadDir(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data folder: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), opts.Extension) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	return &Evaluator{
		opts:  opts,
		files: files,
		state: Idle,
		log:   opts.Logger.With().Str("component", "evaluation").Logger(),
	}, nil
}

// Files returns the candidate file names
func (e *Evaluator) Files() []string {
	return append([]string(nil), e.files...)
}

// State returns the current run state
func (e *Evaluator) State() State { return e.state }

// Index returns the position of the file being processed
func (e *Evaluator) Index() int { return e.index }

// Run evaluates every candidate file and aggregates the results. Files
// that fail to load or score are recorded in Report.Failures and do not
// affect the aggregate.
func (e *Evaluator) Run() (*Report, error) {
	if e.state != Idle {
		return nil, fmt.Errorf("evaluator already %s", e.state)
	}

	report := &Report{
		Mode:        e.opts.Mode,
		MetricNames: e.opts.Registry.Names(),
	}
	if f, ok := e.opts.Binarizer.(threshold.Fixer); ok {
		if v, fixed := f.Fixed(); fixed {
			report.FixedThreshold = v
		}
	}

	e.state = Iterating
	e.log.Info().Int("files", len(e.files)).Str("mode", string(e.opts.Mode)).
		Str("binarizer", e.opts.Binarizer.Name()).Msg("evaluating samples")

	for i, name := range e.files {
		e.index = i
		path := filepath.Join(e.opts.DataDir, name)

		rec, err := npyfile.LoadSample(path)
		if err != nil {
			e.fail(report, name, fmt.Errorf("failed to load sample: %w", err))
			continue
		}
		rec.Name = name

		res, skipped, err := e.EvaluateRecord(rec)
		if err != nil {
			e.fail(report, name, err)
			continue
		}
		if skipped {
			e.log.Debug().Str("file", name).Msg("no anomaly in target, skipped")
			report.Skipped = append(report.Skipped, name)
			continue
		}
		report.Samples = append(report.Samples, res)
		e.log.Debug().Str("file", name).Float64("threshold", res.Threshold).
			Interface("metrics", res.Metrics).Msg("sample evaluated")
	}

	e.state = Aggregating
	e.aggregate(report)
	e.state = Done

	e.log.Info().Int("evaluated", len(report.Samples)).Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failures)).Msg("evaluation complete")
	return report, nil
}

func (e *Evaluator) fail(report *Report, name string, err error) {
	e.log.Error().Err(err).Str("file", name).Msg("sample failed")
	report.Failures = append(report.Failures, Failure{FileName: name, Err: err})
}

// EvaluateRecord scores one sample. skipped is true when any metric found
// no anomaly in the target.
func (e *Evaluator) EvaluateRecord(rec *models.SampleRecord) (res SampleResult, skipped bool, err error) {
	if err := rec.Validate(); err != nil {
		return SampleResult{}, false, err
	}

	score := rec.AnomalyScore(e.opts.ScoreKind)
	if e.opts.Denoise {
		score = mask.RemoveNoise(score)
	}
	score, fg, err := mask.MaskImages(rec.Image[:], score)
	if err != nil {
		return SampleResult{}, false, err
	}

	thresh, binary, err := e.opts.Binarizer.Binarize(score, fg)
	if err != nil {
		return SampleResult{}, false, fmt.Errorf("binarize: %w", err)
	}

	results, err := e.opts.Registry.ComputeAll(models.Prediction{Score: score, Binary: binary}, rec.Label)
	if err != nil {
		return SampleResult{}, false, err
	}

	res = SampleResult{FileName: rec.Name, Threshold: thresh, Metrics: make(map[string]float64, len(results))}
	for name, r := range results {
		v, ok := r.Value()
		if !ok {
			return SampleResult{}, true, nil
		}
		res.Metrics[name] = v
	}
	return res, false, nil
}

func (e *Evaluator) aggregate(report *Report) {
	report.Stats = make(map[string]Stat, len(report.MetricNames)+1)
	for _, name := range report.MetricNames {
		values := make([]float64, len(report.Samples))
		for i, s := range report.Samples {
			values[i] = s.Metrics[name]
		}
		report.Stats[name] = meanStd(values)
	}
	thresholds := make([]float64, len(report.Samples))
	for i, s := range report.Samples {
		thresholds[i] = s.Threshold
	}
	report.Stats[ThresholdColumn] = meanStd(thresholds)

	ext := Extrema{Metric: e.opts.ExtremaMetric, Max: 0, Min: 1}
	if ext.Metric != "" {
		for _, s := range report.Samples {
			v := s.Metrics[ext.Metric]
			if v > ext.Max {
				ext.Max, ext.MaxFile, ext.MaxThresh = v, s.FileName, s.Threshold
			}
			if v < ext.Min {
				ext.Min, ext.MinFile, ext.MinThresh = v, s.FileName, s.Threshold
			}
		}
	}
	report.Extrema = ext
}

func meanStd(values []float64) Stat {
	if len(values) == 0 {
		return Stat{Mean: math.NaN(), Std: math.NaN()}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return Stat{Mean: mean, Std: std}
}
