package nifti

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"scintiref/internal/models"
)

func testVolume(shape ...int) *models.Volume {
	v := models.NewVolume(shape...)
	for i := range v.Data {
		v.Data[i] = float64(i) * 0.5
	}
	return v
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	shapes := [][]int{{4, 3}, {4, 3, 2}, {5, 4, 6}, {3, 2, 5, 2}}
	for _, shape := range shapes {
		for _, name := range []string{"vol.nii", "vol.nii.gz"} {
			v := testVolume(shape...)
			path := filepath.Join(dir, models.ShapeString(shape)+name)
			if err := Write(path, v); err != nil {
				t.Fatalf("Write %v failed: %v", shape, err)
			}
			got, err := Read(path)
			if err != nil {
				t.Fatalf("Read %v failed: %v", shape, err)
			}
			if models.ShapeString(got.Shape) != models.ShapeString(shape) {
				t.Errorf("Expected shape %v, got %v", shape, got.Shape)
			}
			for i := range v.Data {
				if got.Data[i] != v.Data[i] {
					t.Fatalf("Sample %d: expected %f, got %f", i, v.Data[i], got.Data[i])
				}
			}
			if got.Affine != models.Identity() {
				t.Errorf("Expected identity affine, got %v", got.Affine)
			}
		}
	}
}

func TestAffineIsPreserved(t *testing.T) {
	v := testVolume(3, 3, 1)
	v.Affine = [4][4]float64{
		{-2, 0, 0, 10},
		{0, -2, 0, 20},
		{0, 0, 3, -5},
		{0, 0, 0, 1},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Affine != v.Affine {
		t.Errorf("Expected affine %v, got %v", v.Affine, got.Affine)
	}
}

// rawVolume builds an uncompressed int16 big-endian file with scaling
func rawVolume(t *testing.T, values []int16, slope, inter float32) []byte {
	t.Helper()
	h := Header{SizeOfHdr: headerSize, DataType: DTInt16, BitPix: 16, VoxOffset: minDataOffset,
		SclSlope: slope, SclInter: inter, Magic: singleFileMagic}
	h.Dim = [8]int16{2, int16(len(values)), 1, 1, 1, 1, 1, 1}
	h.PixDim = [8]float32{1, 2, 3, 1, 1, 1, 1, 1}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &h); err != nil {
		t.Fatalf("Failed to write header: %v", err)
	}
	buf.Write(make([]byte, minDataOffset-headerSize))
	if err := binary.Write(&buf, binary.BigEndian, values); err != nil {
		t.Fatalf("Failed to write data: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeBigEndianScaled(t *testing.T) {
	raw := rawVolume(t, []int16{-2, 0, 7}, 2, 1)
	v, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []float64{-3, 1, 15}
	for i, w := range want {
		if v.Data[i] != w {
			t.Errorf("Sample %d: expected %f, got %f", i, w, v.Data[i])
		}
	}
	// No sform or qform: affine falls back to the pixdim diagonal
	if v.Affine[0][0] != 2 || v.Affine[1][1] != 3 || v.Affine[2][2] != 1 {
		t.Errorf("Unexpected fallback affine %v", v.Affine)
	}
}

func TestDecodeZeroSlopeMeansUnscaled(t *testing.T) {
	raw := rawVolume(t, []int16{4, 5}, 0, 100)
	v, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if v.Data[0] != 4 || v.Data[1] != 5 {
		t.Errorf("Expected unscaled data, got %v", v.Data)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte("not nifti")},
		{"zeros", make([]byte, 400)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("Expected ErrInvalidHeader, got %v", err)
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "absent.nii.gz")); !os.IsNotExist(errors.Cause(err)) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}
