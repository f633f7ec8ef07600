// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz) as float64 arrays.
package nifti

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
)

var (
	// ErrInvalidHeader is returned for files that are not NIfTI-1
	ErrInvalidHeader = errors.New("invalid nifti header")

	// ErrUnsupportedDataType is returned for sample types this package cannot decode
	ErrUnsupportedDataType = errors.New("unsupported nifti data type")
)

// VolumeReader loads a volume from a file
type VolumeReader interface {
	ReadVolume(path string) (*models.Volume, error)
}

// Reader is the file-backed VolumeReader
type Reader struct{}

// ReadVolume implements VolumeReader
func (Reader) ReadVolume(path string) (*models.Volume, error) { return Read(path) }

// Read loads the volume stored at path; gzip compression is detected from
// the stream itself
func Read(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	v, err := Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return v, nil
}

// Decode reads a NIfTI-1 stream, optionally gzip-compressed
func Decode(r io.Reader) (*models.Volume, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "opening gzip stream")
		}
		defer gz.Close()
		r = gz
	} else {
		r = br
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading stream")
	}
	return parse(raw)
}

func parse(raw []byte) (*models.Volume, error) {
	if len(raw) < headerSize {
		return nil, errors.Wrapf(ErrInvalidHeader, "file is %d bytes, shorter than a header", len(raw))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw) == headerSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw) == headerSize:
		order = binary.BigEndian
	default:
		return nil, errors.Wrap(ErrInvalidHeader, "sizeof_hdr is not 348")
	}

	h := Header{}
	if err := binary.Read(bytes.NewReader(raw[:headerSize]), order, &h); err != nil {
		return nil, errors.Wrap(err, "decoding header")
	}
	if h.Magic != singleFileMagic {
		return nil, errors.Wrap(ErrInvalidHeader, "magic is not n+1; only single-file nifti is supported")
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return nil, errors.Wrapf(ErrInvalidHeader, "dim[0]=%d not in [1, 7]", h.Dim[0])
	}

	shape := h.Shape()
	n := 1
	for axis, s := range shape {
		if s < 1 {
			return nil, errors.Wrapf(ErrInvalidHeader, "dim[%d]=%d", axis+1, s)
		}
		n *= s
	}

	size := bytesPer(h.DataType)
	if size == 0 {
		return nil, errors.Wrapf(ErrUnsupportedDataType, "code %d", h.DataType)
	}

	offset := int(h.VoxOffset)
	if offset < minDataOffset {
		offset = minDataOffset
	}
	if len(raw) < offset+n*size {
		return nil, errors.Wrapf(ErrInvalidHeader, "need %d data bytes at offset %d, have %d", n*size, offset, len(raw)-offset)
	}

	data := decodeSamples(raw[offset:offset+n*size], h.DataType, order, n)
	if slope, inter, ok := h.scaling(); ok {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	log.WithFields(log.Fields{
		"shape":     models.ShapeString(shape),
		"dataType":  h.DataType,
		"byteOrder": order,
	}).Debug("Decoded nifti volume")

	return &models.Volume{Shape: shape, Data: data, Affine: h.Affine()}, nil
}

func decodeSamples(b []byte, dt int16, order binary.ByteOrder, n int) []float64 {
	out := make([]float64, n)
	switch dt {
	case DTUint8:
		for i := range out {
			out[i] = float64(b[i])
		}
	case DTInt8:
		for i := range out {
			out[i] = float64(int8(b[i]))
		}
	case DTInt16:
		for i := range out {
			out[i] = float64(int16(order.Uint16(b[2*i:])))
		}
	case DTUint16:
		for i := range out {
			out[i] = float64(order.Uint16(b[2*i:]))
		}
	case DTInt32:
		for i := range out {
			out[i] = float64(int32(order.Uint32(b[4*i:])))
		}
	case DTUint32:
		for i := range out {
			out[i] = float64(order.Uint32(b[4*i:]))
		}
	case DTFloat32:
		for i := range out {
			out[i] = float64(math.Float32frombits(order.Uint32(b[4*i:])))
		}
	case DTInt64:
		for i := range out {
			out[i] = float64(int64(order.Uint64(b[8*i:])))
		}
	case DTUint64:
		for i := range out {
			out[i] = float64(order.Uint64(b[8*i:]))
		}
	case DTFloat64:
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(b[8*i:]))
		}
	}
	return out
}

// Write stores v as a little-endian float32 NIfTI-1 file, gzip-compressed
// when path ends in .gz
func Write(path string, v *models.Volume) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := Encode(w, v); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return errors.Wrapf(err, "flushing %s", path)
		}
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// Encode writes v as an uncompressed float32 NIfTI-1 stream
func Encode(w io.Writer, v *models.Volume) error {
	h, err := newHeader(v)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return errors.Wrap(err, "writing header")
	}
	// Empty extension block: header is followed by 4 zero bytes up to vox_offset
	if _, err := bw.Write(make([]byte, minDataOffset-headerSize)); err != nil {
		return errors.Wrap(err, "writing extension flag")
	}
	buf := make([]byte, 4)
	for _, x := range v.Data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(x)))
		if _, err := bw.Write(buf); err != nil {
			return errors.Wrap(err, "writing data")
		}
	}
	return errors.Wrap(bw.Flush(), "flushing data")
}

func newHeader(v *models.Volume) (Header, error) {
	h := Header{}
	if v.Rank() < 1 || v.Rank() > 7 {
		return h, errors.Wrapf(ErrInvalidHeader, "cannot store rank %d", v.Rank())
	}
	if v.Len() != len(v.Data) {
		return h, errors.Wrapf(ErrInvalidHeader, "shape %s holds %d samples, data has %d",
			models.ShapeString(v.Shape), v.Len(), len(v.Data))
	}

	h.SizeOfHdr = headerSize
	h.Dim[0] = int16(v.Rank())
	for i := 1; i < 8; i++ {
		h.Dim[i] = 1
		h.PixDim[i] = 1
	}
	for i, s := range v.Shape {
		if s < 1 || s > math.MaxInt16 {
			return h, errors.Wrapf(ErrInvalidHeader, "axis %d has size %d", i, s)
		}
		h.Dim[i+1] = int16(s)
	}
	h.DataType = DTFloat32
	h.BitPix = 32
	h.VoxOffset = minDataOffset
	h.SclSlope = 1
	h.Magic = singleFileMagic

	a := v.Affine
	for col := 0; col < 3; col++ {
		norm := math.Sqrt(a[0][col]*a[0][col] + a[1][col]*a[1][col] + a[2][col]*a[2][col])
		if norm > 0 {
			h.PixDim[col+1] = float32(norm)
		}
	}
	h.PixDim[0] = 1

	h.SFormCode = 1
	for j := 0; j < 4; j++ {
		h.SRowX[j] = float32(a[0][j])
		h.SRowY[j] = float32(a[1][j])
		h.SRowZ[j] = float32(a[2][j])
	}

	// The qform is only written for axis-aligned, non-flipped transforms,
	// where the quaternion is the identity
	if isPositiveDiagonal(a) {
		h.QFormCode = 1
		h.QOffsetX = float32(a[0][3])
		h.QOffsetY = float32(a[1][3])
		h.QOffsetZ = float32(a[2][3])
	}
	return h, nil
}

func isPositiveDiagonal(a [4][4]float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == j && a[i][j] <= 0 {
				return false
			}
			if i != j && a[i][j] != 0 {
				return false
			}
		}
	}
	return true
}
