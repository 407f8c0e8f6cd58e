package driver

import (
	"fmt"
	"math"

	"bratseval/internal/models"
	"bratseval/pkg/npyfile"
)

// Packed is one sample in the stored (1,H,W,9) uint8 layout
type Packed struct {
	Data  []uint8
	Shape []int
}

// ToBytes converts a plane to bytes. With rescale the plane is taken to be
// in [-1,1] and mapped to [0,255]; otherwise values are used as is. Values
// are clamped, then truncated.
func ToBytes(p models.Plane, rescale bool) []uint8 {
	out := make([]uint8, p.Len())
	for i, v := range p.Data {
		if rescale {
			v = (v + 1) * 127.5
		}
		if math.IsNaN(v) || v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out[i] = uint8(v)
	}
	return out
}

// Pack interleaves the input modalities, the segmentation and the
// generated modalities into channel-last order.
func Pack(images [models.NumModalities]models.Plane, seg models.Plane, generated [models.NumModalities]models.Plane) (Packed, error) {
	for c := 0; c < models.NumModalities; c++ {
		if !images[c].SameShape(seg) || !generated[c].SameShape(seg) {
			return Packed{}, fmt.Errorf("channel %d does not match the %dx%d segmentation", c, seg.Width, seg.Height)
		}
	}

	var img, gen [models.NumModalities][]uint8
	for c := 0; c < models.NumModalities; c++ {
		img[c] = ToBytes(images[c], true)
		gen[c] = ToBytes(generated[c], true)
	}
	lbl := ToBytes(seg, false)

	h, w := seg.Height, seg.Width
	out := make([]uint8, h*w*npyfile.SampleChannels)
	for px := 0; px < h*w; px++ {
		base := px * npyfile.SampleChannels
		for c := 0; c < models.NumModalities; c++ {
			out[base+c] = img[c][px]
			out[base+npyfile.GeneratedChannel+c] = gen[c][px]
		}
		out[base+npyfile.LabelChannel] = lbl[px]
	}
	return Packed{Data: out, Shape: []int{1, h, w, npyfile.SampleChannels}}, nil
}
