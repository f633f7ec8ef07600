// Package canonical reduces image arrays of rank 2, 3 or 4 to a single 2D
// plane.
//
// Supported layouts are (H, W), (H, W, C), (H, W, Z) and (H, W, Z, C). For
// rank 3 the meaning of the last axis is ambiguous; it is resolved by size:
// axes no longer than ChannelAxisMaxSize are channels (e.g. anterior and
// posterior views), longer ones are depth.
package canonical

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"scintiref/internal/models"
)

// DefaultChannelAxisMaxSize is the largest trailing axis of a rank-3 array
// that is still read as a channel axis
const DefaultChannelAxisMaxSize = 4

var (
	// ErrChannelOutOfRange is returned when the requested channel does not exist
	ErrChannelOutOfRange = errors.New("channel out of range")

	// ErrSliceOutOfRange is returned when an explicit slice index does not exist
	ErrSliceOutOfRange = errors.New("slice out of range")

	// ErrUnsupportedShape is returned for ranks other than 2, 3 and 4
	ErrUnsupportedShape = errors.New("unsupported shape")
)

// AxisRole is the resolved meaning of a trailing axis: ChannelAxis or DepthAxis
type AxisRole interface {
	axisSize() int
}

// ChannelAxis is an axis indexing views or frames of the same plane
type ChannelAxis struct{ Size int }

// DepthAxis is an axis indexing parallel slices through a volume
type DepthAxis struct{ Size int }

func (a ChannelAxis) axisSize() int { return a.Size }
func (a DepthAxis) axisSize() int { return a.Size }

func (a ChannelAxis) String() string { return fmt.Sprintf("ChannelAxis(%d)", a.Size) }
func (a DepthAxis) String() string { return fmt.Sprintf("DepthAxis(%d)", a.Size) }

// Selection picks one plane out of a higher-rank array
type Selection struct {
	// Channel is the index along a channel axis
	Channel int

	// Slice is the index along a depth axis; nil selects the middle slice
	Slice *int
}

// SliceAt is a helper for building a Selection with an explicit slice
func SliceAt(i int) *int { return &i }

// Canonicalizer extracts planes from arrays of ambiguous rank
type Canonicalizer struct {
	// ChannelAxisMaxSize overrides DefaultChannelAxisMaxSize when positive
	ChannelAxisMaxSize int
}

// New creates a canonicalizer; a non-positive threshold uses the default
func New(channelAxisMaxSize int) Canonicalizer {
	return Canonicalizer{ChannelAxisMaxSize: channelAxisMaxSize}
}

func (c Canonicalizer) threshold() int {
	if c.ChannelAxisMaxSize > 0 {
		return c.ChannelAxisMaxSize
	}
	return DefaultChannelAxisMaxSize
}

// ResolveTrailingAxis decides how the last axis of a rank-3 array is read
func (c Canonicalizer) ResolveTrailingAxis(size int) AxisRole {
	if size <= c.threshold() {
		return ChannelAxis{Size: size}
	}
	return DepthAxis{Size: size}
}

// Plane returns the 2D plane of v selected by sel. The result has one row per
// index of axis 0 and one column per index of axis 1.
func (c Canonicalizer) Plane(v *models.Volume, sel Selection) (*mat.Dense, error) {
	shape := v.Shape
	if len(shape) < 2 || len(shape) > 4 {
		return nil, errors.Wrapf(ErrUnsupportedShape, "shape %s", models.ShapeString(shape))
	}
	if shape[0] < 1 || shape[1] < 1 {
		return nil, errors.Wrapf(ErrUnsupportedShape, "empty plane in shape %s", models.ShapeString(shape))
	}

	switch len(shape) {
	case 2:
		return extract(v, nil), nil

	case 3:
		switch role := c.ResolveTrailingAxis(shape[2]).(type) {
		case ChannelAxis:
			ch, err := channelIndex(role, sel.Channel, shape)
			if err != nil {
				return nil, err
			}
			return extract(v, []int{ch}), nil
		case DepthAxis:
			z, err := sliceIndex(role, sel.Slice, shape)
			if err != nil {
				return nil, err
			}
			return extract(v, []int{z}), nil
		}

	case 4:
		z, err := sliceIndex(DepthAxis{Size: shape[2]}, sel.Slice, shape)
		if err != nil {
			return nil, err
		}
		ch, err := channelIndex(ChannelAxis{Size: shape[3]}, sel.Channel, shape)
		if err != nil {
			return nil, err
		}
		return extract(v, []int{z, ch}), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedShape, "shape %s", models.ShapeString(shape))
}

func channelIndex(axis ChannelAxis, ch int, shape []int) (int, error) {
	if ch < 0 || ch >= axis.Size {
		return 0, errors.Wrapf(ErrChannelOutOfRange, "channel %d for shape %s", ch, models.ShapeString(shape))
	}
	return ch, nil
}

func sliceIndex(axis DepthAxis, slice *int, shape []int) (int, error) {
	if slice == nil {
		return axis.Size / 2, nil
	}
	if *slice < 0 || *slice >= axis.Size {
		return 0, errors.Wrapf(ErrSliceOutOfRange, "slice %d for shape %s", *slice, models.ShapeString(shape))
	}
	return *slice, nil
}

// extract copies the (H, W) plane at the given trailing indices into a dense
// row-major matrix
func extract(v *models.Volume, trailing []int) *mat.Dense {
	h, w := v.Shape[0], v.Shape[1]
	// Offset of element (0, 0, trailing...) in column-major order
	base, stride := 0, h*w
	for i, idx := range trailing {
		base += idx * stride
		stride *= v.Shape[2+i]
	}

	data := make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			data[y*w+x] = v.Data[base+x*h+y]
		}
	}
	return mat.NewDense(h, w, data)
}

// ToVolume wraps a plane as a rank-2 volume with an identity affine
func ToVolume(m mat.Matrix) *models.Volume {
	h, w := m.Dims()
	v := models.NewVolume(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v.Set(m.At(y, x), y, x)
		}
	}
	return v
}
