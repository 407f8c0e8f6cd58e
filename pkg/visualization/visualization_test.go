package visualization

import (
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"

	"bratseval/internal/models"
)

func assertPNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
}

func TestPlotTraining(t *testing.T) {
	dir := t.TempDir()
	progress := filepath.Join(dir, "progress.csv")

	var b strings.Builder
	b.WriteString("step,samples,loss,mse,vb\n")
	for i := 0; i < 20; i++ {
		step := i * 500
		b.WriteString(strings.Join([]string{
			itoa(step), itoa(step * 16), ftoa(1.0 / float64(i+1)), ftoa(0.5 / float64(i+1)), "0.25",
		}, ",") + "\n")
	}
	require.NoError(t, os.WriteFile(progress, []byte(b.String()), 0644))

	opts := DefaultTrainingOptions()
	opts.Width, opts.Height, opts.DPI = 6*vg.Inch, 4*vg.Inch, 40
	out := filepath.Join(dir, "figs", "progress.png")

	names, err := PlotTraining(progress, out, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"loss", "mse", "vb"}, names)
	assertPNG(t, out)
}

func TestPlotTrainingErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := PlotTraining(filepath.Join(dir, "missing.csv"), filepath.Join(dir, "x.png"), DefaultTrainingOptions())
	assert.Error(t, err)

	noStep := filepath.Join(dir, "nostep.csv")
	require.NoError(t, os.WriteFile(noStep, []byte("loss\n1\n2\n"), 0644))
	_, err = PlotTraining(noStep, filepath.Join(dir, "x.png"), DefaultTrainingOptions())
	assert.Error(t, err)

	onlyStep := filepath.Join(dir, "onlystep.csv")
	require.NoError(t, os.WriteFile(onlyStep, []byte("step,samples\n1,2\n2,4\n"), 0644))
	_, err = PlotTraining(onlyStep, filepath.Join(dir, "x.png"), DefaultTrainingOptions())
	assert.Error(t, err)
}

func TestFiniteRange(t *testing.T) {
	lo, hi, ok := finiteRange([]float64{100, 3, 1, 2}, 1)
	require.True(t, ok)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 3.0, hi)

	lo, hi, ok = finiteRange([]float64{2, 2}, 5)
	require.True(t, ok)
	assert.Equal(t, 1.5, lo)
	assert.Equal(t, 2.5, hi)
}

func sampleRecord() *models.SampleRecord {
	const n = 24
	rec := &models.SampleRecord{Label: models.NewPlane(n, n)}
	for m := 0; m < models.NumModalities; m++ {
		rec.Image[m] = models.NewPlane(n, n)
		rec.Generated[m] = models.NewPlane(n, n)
	}
	for y := 2; y < n-2; y++ {
		for x := 2; x < n-2; x++ {
			tumor := x > 8 && x < 16 && y > 8 && y < 16
			if tumor {
				rec.Label.Set(x, y, 4)
			}
			for m := 0; m < models.NumModalities; m++ {
				rec.Image[m].Set(x, y, 0.4+0.01*float64(m))
				if tumor {
					rec.Generated[m].Set(x, y, 0.9)
				} else {
					rec.Generated[m].Set(x, y, 0.4+0.01*float64(m))
				}
			}
		}
	}
	return rec
}

func TestAnalyzeSample(t *testing.T) {
	rec := sampleRecord()
	fig, err := AnalyzeSample(rec)
	require.NoError(t, err)
	assert.Greater(t, fig.Threshold, 0.0)
	assert.Less(t, fig.Threshold, 0.5)
	assert.Equal(t, 1.0, fig.Segmentation.At(12, 12))
	assert.Equal(t, 0.0, fig.Segmentation.At(4, 4))
	assert.Equal(t, 0.0, fig.Segmentation.At(0, 0))
}

func TestPlotSample(t *testing.T) {
	out := filepath.Join(t.TempDir(), "samples_24.png")
	thresh, err := PlotSample(sampleRecord(), out, 6*vg.Inch, 40)
	require.NoError(t, err)
	assert.Greater(t, thresh, 0.0)
	assertPNG(t, out)
}

func TestProject2D(t *testing.T) {
	zs := mat.NewDense(6, 3, []float64{
		0, 0, 1,
		1, 0, 1,
		2, 1, 0,
		3, 1, 0,
		4, 2, 1,
		5, 2, 1,
	})
	pts, err := Project2D(zs)
	require.NoError(t, err)
	r, c := pts.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.GreaterOrEqual(t, pts.At(i, j), 0.0)
			assert.LessOrEqual(t, pts.At(i, j), 1.0)
		}
	}

	_, err = Project2D(mat.NewDense(1, 3, nil))
	assert.Error(t, err)
}

func TestPlotEmbedding(t *testing.T) {
	zs := mat.NewDense(8, 4, nil)
	labels := make([]float64, 8)
	for i := 0; i < 8; i++ {
		for j := 0; j < 4; j++ {
			zs.Set(i, j, float64((i*7+j*3)%5)+float64(i%2)*4)
		}
		labels[i] = float64(i % 2)
	}
	out := filepath.Join(t.TempDir(), "tsne.png")
	require.NoError(t, PlotEmbedding(zs, labels, out, 3*vg.Inch, 40))
	assertPNG(t, out)

	assert.Error(t, PlotEmbedding(zs, labels[:3], out, 3*vg.Inch, 40))
}

func TestPalettes(t *testing.T) {
	g := grayPalette(256).Colors()
	require.Len(t, g, 256)
	r, _, _, _ := g[255].RGBA()
	assert.Equal(t, uint32(0xffff), r)

	s := spectralPalette(64).Colors()
	assert.Len(t, s, 64)
}

func itoa(i int) string { return strconv.Itoa(i) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 6, 64) }
