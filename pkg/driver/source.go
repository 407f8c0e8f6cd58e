package driver

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"bratseval/internal/models"
	"bratseval/pkg/config"
)

// Slice is one input slice with its segmentation
type Slice struct {
	Images [models.NumModalities]models.Plane
	Seg    models.Plane
}

type memorySource struct {
	mu      sync.Mutex
	batches []*Batch
}

func (s *memorySource) Next(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil, io.EOF
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil
}

// ShardSlices deals slices round-robin over workers and groups each
// worker's share into batches of at most batchSize. Slice i goes to rank
// i mod workers.
func ShardSlices(slices []Slice, workers, batchSize int) ([]Source, error) {
	if workers < 1 || batchSize < 1 {
		return nil, fmt.Errorf("need at least one worker and a positive batch size, got %d and %d", workers, batchSize)
	}
	shards := make([]*memorySource, workers)
	for i := range shards {
		shards[i] = &memorySource{}
	}
	for i, s := range slices {
		src := shards[i%workers]
		n := len(src.batches)
		if n == 0 || src.batches[n-1].Len() == batchSize {
			src.batches = append(src.batches, &Batch{})
			n++
		}
		b := src.batches[n-1]
		b.Images = append(b.Images, s.Images)
		b.Seg = append(b.Seg, s.Seg)
	}

	out := make([]Source, workers)
	for i, s := range shards {
		out[i] = s
	}
	return out, nil
}

// NewShifter loads the linear discriminant when shifting is enabled and
// returns the identity otherwise
func NewShifter(enabled bool, linearPath, zStatePath string, target float64) (LatentShifter, error) {
	if !enabled {
		return IdentityShifter{}, nil
	}
	if linearPath == "" || zStatePath == "" {
		return nil, fmt.Errorf("latent shifting needs both a discriminant and latent statistics file")
	}
	return LoadLinearShifter(linearPath, zStatePath, target)
}

// ParamsFromConfig builds run parameters from the driver section of cfg
func ParamsFromConfig(cfg *config.Config, slices []Slice, model Model, log zerolog.Logger) (Params, error) {
	sources, err := ShardSlices(slices, cfg.Driver.Workers, cfg.Driver.BatchSize)
	if err != nil {
		return Params{}, err
	}
	shifter, err := NewShifter(cfg.Driver.ShiftingZ, cfg.Driver.LinearPath, cfg.Driver.ZStatePath, cfg.Driver.AnomalyScore)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Sources:      sources,
		Model:        model,
		Shifter:      shifter,
		OutputDir:    cfg.Driver.OutputDir,
		LimitBatches: cfg.Driver.LimitBatches,
		Logger:       log,
	}, nil
}
