// Package driver runs the anomaly-detection sampling loop around an
// external diffusion model: embed each batch, optionally shift the latent
// code, generate a healthy reconstruction, pack the result, gather across
// workers and store one sample file per slice.
//
// It is a library entry point for programs that embed a Model: build
// Params with ParamsFromConfig and hand them to New.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"bratseval/internal/models"
	"bratseval/pkg/npyfile"
)

// Batch is a group of input slices with their segmentations. Images are
// normalised to [-1,1]; Seg holds integer class labels.
type Batch struct {
	Images [][models.NumModalities]models.Plane
	Seg    []models.Plane
}

// Len returns the number of slices
func (b *Batch) Len() int { return len(b.Images) }

// Source yields batches for one worker and returns io.EOF when exhausted
type Source interface {
	Next(ctx context.Context) (*Batch, error)
}

// Model is the external diffusion model contract. Embed returns one
// latent code per slice; Generate samples a reconstruction conditioned on
// those codes, in [-1,1].
type Model interface {
	Embed(ctx context.Context, images [][models.NumModalities]models.Plane) (*mat.Dense, error)
	Generate(ctx context.Context, images [][models.NumModalities]models.Plane, z *mat.Dense) ([][models.NumModalities]models.Plane, error)
}

// Params configures a run
type Params struct {
	// Sources holds one batch source per worker; rank i reads Sources[i]
	Sources []Source

	// Model is shared by all workers and must be safe for concurrent use
	Model Model

	// Shifter adjusts z; nil means no shift
	Shifter LatentShifter

	// OutputDir receives samples_<idx>.npy
	OutputDir string

	// LimitBatches caps the batches each worker consumes; <0 is unlimited
	LimitBatches int

	Logger zerolog.Logger
}

// Driver executes the sampling loop
type Driver struct {
	params Params
	log    zerolog.Logger
}

// New validates params
func New(params Params) (*Driver, error) {
	if len(params.Sources) == 0 {
		return nil, fmt.Errorf("driver needs at least one worker source")
	}
	if params.Model == nil {
		return nil, fmt.Errorf("driver needs a model")
	}
	if params.Shifter == nil {
		params.Shifter = IdentityShifter{}
	}
	return &Driver{
		params: params,
		log:    params.Logger.With().Str("component", "driver").Logger(),
	}, nil
}

// Run processes every worker's batches, gathers the packed samples on all
// ranks and writes them from rank 0. It returns the written file paths.
func (d *Driver) Run(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := len(d.params.Sources)
	g := newGatherer(workers)
	start := time.Now()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		written  []string
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for rank := 0; rank < workers; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()

			local, err := d.sampleShard(ctx, rank)
			if err != nil {
				fail(fmt.Errorf("worker %d: %w", rank, err))
				return
			}

			all, err := g.AllGather(ctx, rank, local)
			if err != nil {
				fail(fmt.Errorf("worker %d gather: %w", rank, err))
				return
			}

			if rank == 0 {
				d.log.Info().Int("samples", len(all)).Dur("elapsed", time.Since(start)).
					Str("dir", d.params.OutputDir).Msg("saving samples")
				paths, err := d.save(all)
				if err != nil {
					fail(err)
					return
				}
				written = paths
			}

			if err := g.Barrier(ctx, rank); err != nil {
				fail(fmt.Errorf("worker %d barrier: %w", rank, err))
			}
		}(rank)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	d.log.Info().Int("files", len(written)).Msg("anomaly detection complete")
	return written, nil
}

func (d *Driver) sampleShard(ctx context.Context, rank int) ([]Packed, error) {
	src := d.params.Sources[rank]
	var out []Packed
	for n := 0; d.params.LimitBatches < 0 || n < d.params.LimitBatches; n++ {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", n, err)
		}
		packed, err := d.sampleBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", n, err)
		}
		out = append(out, packed...)
		d.log.Debug().Int("rank", rank).Int("batch", n).Int("slices", batch.Len()).Msg("batch sampled")
	}
	return out, nil
}

func (d *Driver) sampleBatch(ctx context.Context, batch *Batch) ([]Packed, error) {
	if len(batch.Seg) != batch.Len() {
		return nil, fmt.Errorf("%d images but %d segmentations", batch.Len(), len(batch.Seg))
	}

	z, err := d.params.Model.Embed(ctx, batch.Images)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if r, _ := z.Dims(); r != batch.Len() {
		return nil, fmt.Errorf("model returned %d latent codes for %d slices", r, batch.Len())
	}
	z, err = d.params.Shifter.Shift(z)
	if err != nil {
		return nil, fmt.Errorf("shifting latent codes: %w", err)
	}

	generated, err := d.params.Model.Generate(ctx, batch.Images, z)
	if err != nil {
		return nil, fmt.Errorf("sampling: %w", err)
	}
	if len(generated) != batch.Len() {
		return nil, fmt.Errorf("model generated %d slices for %d inputs", len(generated), batch.Len())
	}

	out := make([]Packed, batch.Len())
	for i := range out {
		p, err := Pack(batch.Images[i], batch.Seg[i], generated[i])
		if err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

func (d *Driver) save(all []Packed) ([]string, error) {
	if err := os.MkdirAll(d.params.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	paths := make([]string, len(all))
	for idx, p := range all {
		path := filepath.Join(d.params.OutputDir, fmt.Sprintf("samples_%d.npy", idx))
		if err := npyfile.WriteBytes(path, p.Data, p.Shape); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
		}
		paths[idx] = path
	}
	return paths, nil
}
