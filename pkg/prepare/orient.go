package prepare

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
	"scintiref/pkg/nifti"
)

// RotateInPlane180 flips axes 0 and 1 of v. Higher axes and the affine are
// unchanged.
func RotateInPlane180(v *models.Volume) (*models.Volume, error) {
	if v.Rank() < 2 {
		return nil, errors.Errorf("cannot rotate rank-%d volume", v.Rank())
	}
	h, w := v.Shape[0], v.Shape[1]
	plane := h * w
	out := &models.Volume{
		Shape:  append([]int(nil), v.Shape...),
		Data:   make([]float64, len(v.Data)),
		Affine: v.Affine,
	}
	for base := 0; base < len(v.Data); base += plane {
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				out.Data[base+(w-1-x)*h+(h-1-y)] = v.Data[base+x*h+y]
			}
		}
	}
	return out, nil
}

// Orient rotates every .nii/.nii.gz file of inDir into outDir under the same
// name. It returns the number of files written.
func Orient(inDir, outDir string) (int, error) {
	if info, err := os.Stat(inDir); err != nil || !info.IsDir() {
		return 0, errors.Wrapf(ErrMissingDir, "%s", inDir)
	}
	absIn, _ := filepath.Abs(inDir)
	absOut, _ := filepath.Abs(outDir)
	if absIn == absOut {
		return 0, errors.Wrapf(ErrSameDir, "%s", inDir)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", outDir)
	}

	entries, err := os.ReadDir(inDir)
	if err != nil {
		return 0, errors.Wrapf(err, "listing %s", inDir)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && (strings.HasSuffix(n, ".nii") || strings.HasSuffix(n, ".nii.gz")) {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	written := 0
	for _, n := range names {
		v, err := nifti.Read(filepath.Join(inDir, n))
		if err != nil {
			return written, err
		}
		fixed, err := RotateInPlane180(v)
		if err != nil {
			return written, errors.Wrapf(err, "%s", n)
		}
		if err := nifti.Write(filepath.Join(outDir, n), fixed); err != nil {
			return written, err
		}
		log.WithField("file", n).Debug("Fixed orientation")
		written++
	}
	return written, nil
}
