// Package npyfile reads and writes the NumPy arrays exchanged with the
// sampling pipeline: per-slice sample records and npz parameter archives.
package npyfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sbinet/npyio/npy"
	"github.com/sbinet/npyio/npz"
)

// ErrUnsupportedArray is returned for dtypes or layouts that cannot be
// converted to float64 values
var ErrUnsupportedArray = errors.New("unsupported array")

// Array is a dense C-ordered array converted to float64
type Array struct {
	Data  []float64
	Shape []int
}

// Load reads a whole .npy file
func Load(path string) (Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return Array{}, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads one npy stream
func Decode(r io.Reader) (Array, error) {
	rd, err := npy.NewReader(r)
	if err != nil {
		return Array{}, fmt.Errorf("reading npy header: %w", err)
	}
	if rd.Header.Descr.Fortran {
		return Array{}, fmt.Errorf("%w: fortran-ordered data", ErrUnsupportedArray)
	}
	data, err := readFloats(rd.Header.Descr.Type, rd.Read)
	if err != nil {
		return Array{}, err
	}
	return Array{Data: data, Shape: append([]int(nil), rd.Header.Descr.Shape...)}, nil
}

// LoadNPZ reads the array stored under key in an .npz archive
func LoadNPZ(path, key string) (Array, error) {
	f, err := npz.Open(path)
	if err != nil {
		return Array{}, err
	}
	defer f.Close()

	name := key
	hdr := f.Header(name)
	if hdr == nil {
		name = key + ".npy"
		hdr = f.Header(name)
	}
	if hdr == nil {
		return Array{}, fmt.Errorf("%s: no array named %q", path, key)
	}
	if hdr.Descr.Fortran {
		return Array{}, fmt.Errorf("%w: %s is fortran-ordered", ErrUnsupportedArray, key)
	}

	data, err := readFloats(hdr.Descr.Type, func(ptr interface{}) error {
		return f.Read(name, ptr)
	})
	if err != nil {
		return Array{}, fmt.Errorf("%s[%s]: %w", path, key, err)
	}
	return Array{Data: data, Shape: append([]int(nil), hdr.Descr.Shape...)}, nil
}

// readFloats reads into a slice of the stored element type and widens it
func readFloats(dtype string, read func(ptr interface{}) error) ([]float64, error) {
	switch strings.TrimLeft(dtype, "<>|=") {
	case "f8":
		var v []float64
		if err := read(&v); err != nil {
			return nil, err
		}
		return v, nil
	case "f4":
		var v []float32
		if err := read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "u1":
		var v []uint8
		if err := read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "u2":
		var v []uint16
		if err := read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "i1":
		var v []int8
		if err := read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "i2":
		var v []int16
		if err := read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "i4":
		var v []int32
		if err := read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "i8":
		var v []int64
		if err := read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "b1":
		var v []bool
		if err := read(&v); err != nil {
			return nil, err
		}
		out := make([]float64, len(v))
		for i, b := range v {
			if b {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedArray, dtype)
	}
}

type number interface {
	~uint8 | ~uint16 | ~int8 | ~int16 | ~int32 | ~int64 | ~float32
}

func widen[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
