package driver

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"bratseval/pkg/npyfile"
)

// LatentShifter adjusts the semantic latent code before sampling
type LatentShifter interface {
	Shift(z *mat.Dense) (*mat.Dense, error)
}

// IdentityShifter leaves z unchanged
type IdentityShifter struct{}

func (IdentityShifter) Shift(z *mat.Dense) (*mat.Dense, error) { return z, nil }

// LinearShifter moves each standardised latent code along the normal of a
// linear discriminant w·z + b until the discriminant equals Target, then
// undoes the standardisation. Codes end up on the decision surface chosen
// as "healthy", so the decoder reconstructs a tumor-free slice.
type LinearShifter struct {
	Weight *mat.VecDense
	Bias   float64
	Mean   *mat.VecDense
	Std    *mat.VecDense
	Target float64
}

// NewLinearShifter validates that all vectors share one dimension
func NewLinearShifter(weight []float64, bias float64, mean, std []float64, target float64) (*LinearShifter, error) {
	d := len(weight)
	if d == 0 {
		return nil, fmt.Errorf("discriminant weight is empty")
	}
	if len(mean) != d || len(std) != d {
		return nil, fmt.Errorf("latent statistics have %d/%d entries, weight has %d", len(mean), len(std), d)
	}
	for i, s := range std {
		if s == 0 {
			return nil, fmt.Errorf("latent std is zero at %d", i)
		}
	}
	return &LinearShifter{
		Weight: mat.NewVecDense(d, append([]float64(nil), weight...)),
		Bias:   bias,
		Mean:   mat.NewVecDense(d, append([]float64(nil), mean...)),
		Std:    mat.NewVecDense(d, append([]float64(nil), std...)),
		Target: target,
	}, nil
}

// LoadLinearShifter reads "weight" and "bias" from linearPath and
// "z_mean" and "z_std" from zStatePath
func LoadLinearShifter(linearPath, zStatePath string, target float64) (*LinearShifter, error) {
	w, err := npyfile.LoadNPZ(linearPath, "weight")
	if err != nil {
		return nil, fmt.Errorf("failed to load discriminant: %w", err)
	}
	b, err := npyfile.LoadNPZ(linearPath, "bias")
	if err != nil {
		return nil, fmt.Errorf("failed to load discriminant: %w", err)
	}
	if len(b.Data) != 1 {
		return nil, fmt.Errorf("discriminant bias has %d entries, expected 1", len(b.Data))
	}
	mean, err := npyfile.LoadNPZ(zStatePath, "z_mean")
	if err != nil {
		return nil, fmt.Errorf("failed to load latent statistics: %w", err)
	}
	std, err := npyfile.LoadNPZ(zStatePath, "z_std")
	if err != nil {
		return nil, fmt.Errorf("failed to load latent statistics: %w", err)
	}
	return NewLinearShifter(w.Data, b.Data[0], mean.Data, std.Data, target)
}

// Shift returns a shifted copy of z, one latent code per row
func (s *LinearShifter) Shift(z *mat.Dense) (*mat.Dense, error) {
	n, d := z.Dims()
	if d != s.Weight.Len() {
		return nil, fmt.Errorf("latent codes have %d dimensions, discriminant has %d", d, s.Weight.Len())
	}

	ww := mat.Dot(s.Weight, s.Weight)
	out := mat.NewDense(n, d, nil)
	zn := mat.NewVecDense(d, nil)
	for i := 0; i < n; i++ {
		zn.SubVec(z.RowView(i), s.Mean)
		zn.DivElemVec(zn, s.Std)

		step := (s.Target - s.Bias - mat.Dot(zn, s.Weight)) / ww
		zn.AddScaledVec(zn, step, s.Weight)

		zn.MulElemVec(zn, s.Std)
		zn.AddVec(zn, s.Mean)
		out.SetRow(i, zn.RawVector().Data)
	}
	return out, nil
}

// Score evaluates the discriminant on standardised codes
func (s *LinearShifter) Score(z *mat.Dense) []float64 {
	n, d := z.Dims()
	out := make([]float64, n)
	zn := mat.NewVecDense(d, nil)
	for i := 0; i < n; i++ {
		zn.SubVec(z.RowView(i), s.Mean)
		zn.DivElemVec(zn, s.Std)
		out[i] = mat.Dot(zn, s.Weight) + s.Bias
	}
	return out
}
