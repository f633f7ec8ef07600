package prepare

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"scintiref/internal/models"
	"scintiref/pkg/nifti"
)

// framed builds an array whose samples encode their frame: frame f holds
// 100*f + linear index within the plane
func framed(shape ...int) *models.Volume {
	v := models.NewVolume(shape...)
	plane := shape[0] * shape[1]
	for i := range v.Data {
		v.Data[i] = float64(100*(i/plane) + i%plane)
	}
	return v
}

func TestExtractView(t *testing.T) {
	tests := []struct {
		name      string
		view      View
		shape     []int
		wantFrame int
		wantErr   bool
	}{
		{"ant 2d", ViewAnterior, []int{4, 3}, 0, false},
		{"ant single frame", ViewAnterior, []int{4, 3, 1}, 0, false},
		{"ant two frames", ViewAnterior, []int{4, 3, 2}, 0, false},
		{"post two frames", ViewPosterior, []int{4, 3, 2}, 1, false},
		{"post 2d", ViewPosterior, []int{4, 3}, 0, true},
		{"post single frame", ViewPosterior, []int{4, 3, 1}, 0, true},
		{"ant three frames", ViewAnterior, []int{4, 3, 3}, 0, true},
		{"ant 4d", ViewAnterior, []int{4, 3, 2, 2}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(&Params{View: tt.view, PosteriorIndex: DefaultPosteriorIndex}, nil)
			out, err := b.ExtractView(framed(tt.shape...))
			if tt.wantErr {
				if !errors.Is(err, ErrNoView) {
					t.Errorf("Expected ErrNoView, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractView failed: %v", err)
			}
			if models.ShapeString(out.Shape) != "(4, 3, 1)" {
				t.Fatalf("Expected (4, 3, 1), got %s", models.ShapeString(out.Shape))
			}
			for i, x := range out.Data {
				if want := float64(100*tt.wantFrame + i); x != want {
					t.Fatalf("Sample %d: expected %f, got %f", i, want, x)
				}
			}
		})
	}
}

func TestProcessNumbersBySourcePosition(t *testing.T) {
	root := t.TempDir()
	src, out := filepath.Join(root, "src"), filepath.Join(root, "out")
	files := map[string][]int{
		"a.nii.gz": {4, 3, 2},
		"b.nii.gz": {4, 3},
		"c.nii":    {4, 3, 2},
	}
	for name, shape := range files {
		if err := nifti.Write(filepath.Join(src, name), framed(shape...)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(src, "d.nii.gz"), []byte("broken"), 0644); err != nil {
		t.Fatalf("Failed to write broken file: %v", err)
	}

	b := NewBuilder(&Params{View: ViewPosterior, PosteriorIndex: 1, OutputDir: out}, nil)
	if err := b.Process([]Source{{Dir: src, Prefix: "AUT2023"}}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	st := b.Stats()["AUT2023"]
	if st.Written != 2 || st.Skipped != 1 || st.Unreadable != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
	for _, name := range []string{"AUT2023_000001_0000.nii.gz", "AUT2023_000003_0000.nii.gz"} {
		v, err := nifti.Read(filepath.Join(out, name))
		if err != nil {
			t.Fatalf("Expected output %s: %v", name, err)
		}
		if v.Affine != models.Identity() {
			t.Errorf("%s: expected identity affine", name)
		}
		if v.Data[0] != 100 {
			t.Errorf("%s: expected posterior frame, got first sample %f", name, v.Data[0])
		}
	}
	if _, err := os.Stat(filepath.Join(out, CaseFileName("AUT2023", 2))); !os.IsNotExist(err) {
		t.Errorf("Skipped file should leave a numbering gap")
	}
}

func TestProcessErrors(t *testing.T) {
	root := t.TempDir()
	b := NewBuilder(&Params{View: "lateral", OutputDir: root}, nil)
	if err := b.Process(nil); !errors.Is(err, ErrUnknownView) {
		t.Errorf("Expected ErrUnknownView, got %v", err)
	}
	b = NewBuilder(&Params{View: ViewAnterior, OutputDir: root}, nil)
	if err := b.Process([]Source{{Dir: filepath.Join(root, "absent"), Prefix: "X"}}); !errors.Is(err, ErrMissingDir) {
		t.Errorf("Expected ErrMissingDir, got %v", err)
	}
}

func TestRotateInPlane180(t *testing.T) {
	v := framed(2, 3, 2)
	v.Affine[0][3] = 7
	r, err := RotateInPlane180(v)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if r.Affine != v.Affine {
		t.Errorf("Affine should be preserved")
	}
	for f := 0; f < 2; f++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				if got, want := r.At(y, x, f), v.At(1-y, 2-x, f); got != want {
					t.Errorf("(%d,%d,%d): expected %f, got %f", y, x, f, want, got)
				}
			}
		}
	}

	twice, _ := RotateInPlane180(r)
	for i := range v.Data {
		if twice.Data[i] != v.Data[i] {
			t.Fatalf("Double rotation should be identity at %d", i)
		}
	}

	if _, err := RotateInPlane180(models.NewVolume(5)); err == nil {
		t.Errorf("Expected error for rank-1 volume")
	}
}

func TestOrient(t *testing.T) {
	root := t.TempDir()
	in, out := filepath.Join(root, "in"), filepath.Join(root, "out")
	v := framed(3, 2)
	if err := nifti.Write(filepath.Join(in, "x.nii.gz"), v); err != nil {
		t.Fatalf("Failed to write input: %v", err)
	}
	if err := os.WriteFile(filepath.Join(in, "notes.txt"), []byte("skip me"), 0644); err != nil {
		t.Fatalf("Failed to write notes: %v", err)
	}

	n, err := Orient(in, out)
	if err != nil {
		t.Fatalf("Orient failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 file written, got %d", n)
	}
	got, err := nifti.Read(filepath.Join(out, "x.nii.gz"))
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if got.At(0, 0) != v.At(2, 1) {
		t.Errorf("Expected rotated corner %f, got %f", v.At(2, 1), got.At(0, 0))
	}

	if _, err := Orient(in, in); !errors.Is(err, ErrSameDir) {
		t.Errorf("Expected ErrSameDir, got %v", err)
	}
}
