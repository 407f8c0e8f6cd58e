package npyfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"bratseval/internal/models"
)

// Channel layout of a stored sample: four input modalities, the label,
// then four generated modalities.
const (
	LabelChannel     = models.NumModalities
	GeneratedChannel = models.NumModalities + 1
	SampleChannels   = 2*models.NumModalities + 1
)

// ErrTooFewChannels is returned for sample arrays with fewer than
// SampleChannels trailing channels
var ErrTooFewChannels = errors.New("sample array has too few channels")

// LoadSample reads a (1,H,W,C) or (H,W,C) sample file. Image channels are
// rescaled from bytes to [0,1]; the label channel is kept as is.
func LoadSample(path string) (*models.SampleRecord, error) {
	arr, err := Load(path)
	if err != nil {
		return nil, err
	}
	rec, err := SampleFromArray(arr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	rec.Name = filepath.Base(path)
	return rec, nil
}

// SampleFromArray splits an HWC array into a sample record
func SampleFromArray(arr Array) (*models.SampleRecord, error) {
	shape := arr.Shape
	if len(shape) == 4 {
		if shape[0] != 1 {
			return nil, fmt.Errorf("%w: leading dimension %d, expected 1", ErrUnsupportedArray, shape[0])
		}
		shape = shape[1:]
	}
	if len(shape) != 3 {
		return nil, fmt.Errorf("%w: shape %v, expected (1,H,W,C)", ErrUnsupportedArray, arr.Shape)
	}
	h, w, c := shape[0], shape[1], shape[2]
	if c < SampleChannels {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrTooFewChannels, c, SampleChannels)
	}
	if len(arr.Data) != h*w*c {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrUnsupportedArray, len(arr.Data), arr.Shape)
	}

	rec := &models.SampleRecord{Label: models.NewPlane(w, h)}
	for m := 0; m < models.NumModalities; m++ {
		rec.Image[m] = models.NewPlane(w, h)
		rec.Generated[m] = models.NewPlane(w, h)
	}
	for px := 0; px < h*w; px++ {
		base := px * c
		for m := 0; m < models.NumModalities; m++ {
			rec.Image[m].Data[px] = arr.Data[base+m] / 255.0
			rec.Generated[m].Data[px] = arr.Data[base+GeneratedChannel+m] / 255.0
		}
		rec.Label.Data[px] = arr.Data[base+LabelChannel]
	}
	return rec, nil
}

// SampleToBytes packs a record into the (1,H,W,9) uint8 layout
func SampleToBytes(rec *models.SampleRecord) ([]uint8, []int, error) {
	if err := rec.Validate(); err != nil {
		return nil, nil, err
	}
	h, w := rec.Height(), rec.Width()
	out := make([]uint8, h*w*SampleChannels)
	for px := 0; px < h*w; px++ {
		base := px * SampleChannels
		for m := 0; m < models.NumModalities; m++ {
			out[base+m] = toByte(rec.Image[m].Data[px] * 255)
			out[base+GeneratedChannel+m] = toByte(rec.Generated[m].Data[px] * 255)
		}
		out[base+LabelChannel] = toByte(rec.Label.Data[px])
	}
	return out, []int{1, h, w, SampleChannels}, nil
}

// WriteSample stores rec as a (1,H,W,9) uint8 .npy file
func WriteSample(path string, rec *models.SampleRecord) error {
	data, shape, err := SampleToBytes(rec)
	if err != nil {
		return err
	}
	return WriteBytes(path, data, shape)
}

func toByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// WriteBytes writes data as a C-ordered uint8 .npy array with the given
// shape, using format version 1.0.
func WriteBytes(path string, data []uint8, shape []int) error {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return fmt.Errorf("%d values for shape %v", len(data), shape)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if _, err := w.Write(npyHeader("|u1", shape)); err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// npyHeader builds the magic string, version and the padded header dict,
// aligned so the data starts on a 64-byte boundary.
func npyHeader(descr string, shape []int) []byte {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := "(" + strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	shapeStr += ")"

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeStr)
	const preamble = 10
	total := preamble + len(dict) + 1
	if rem := total % 64; rem != 0 {
		dict += strings.Repeat(" ", 64-rem)
	}
	dict += "\n"

	hdr := make([]byte, preamble, preamble+len(dict))
	copy(hdr, "\x93NUMPY")
	hdr[6], hdr[7] = 1, 0
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(len(dict)))
	return append(hdr, dict...)
}
