// Package prepare turns exported planar scintigraphy volumes into segmentation
// model inputs and corrects their in-plane orientation.
package prepare

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
	"scintiref/pkg/canonical"
	"scintiref/pkg/nifti"
)

// View names one frame of a two-frame planar acquisition
type View string

const (
	// ViewAnterior is frame 0, or the only frame of a single-frame image
	ViewAnterior View = "ant"
	// ViewPosterior is the configured frame of a two-frame image
	ViewPosterior View = "post"
)

// DefaultPosteriorIndex is the frame of an (H, W, 2) array holding the posterior view
const DefaultPosteriorIndex = 1

// ParseView validates a view name
func ParseView(s string) (View, error) {
	switch View(strings.ToLower(s)) {
	case ViewAnterior:
		return ViewAnterior, nil
	case ViewPosterior:
		return ViewPosterior, nil
	}
	return "", errors.Wrapf(ErrUnknownView, "%q", s)
}

// Params holds the input builder settings
type Params struct {
	View           View
	PosteriorIndex int

	// OutputDir receives every written case image
	OutputDir string
}

// Source is one input directory and the case prefix of its outputs
type Source struct {
	Dir    string
	Prefix string
}

// Stats counts the outcome per source
type Stats struct {
	Written    int
	Skipped    int
	Unreadable int
}

// Builder writes one `<prefix>_<NNNNNN>_0000.nii.gz` file per usable volume
type Builder struct {
	params *Params
	reader nifti.VolumeReader
	canon  canonical.Canonicalizer
	stats  map[string]Stats
}

// NewBuilder creates a builder; a nil reader reads from disk
func NewBuilder(params *Params, reader nifti.VolumeReader) *Builder {
	if reader == nil {
		reader = nifti.Reader{}
	}
	return &Builder{
		params: params,
		reader: reader,
		canon:  canonical.New(2),
		stats:  make(map[string]Stats),
	}
}

// ExtractView returns the requested view of v as an (H, W, 1) volume.
// Anterior accepts (H, W), (H, W, 1) and (H, W, 2); posterior only (H, W, 2).
func (b *Builder) ExtractView(v *models.Volume) (*models.Volume, error) {
	shape := v.Shape
	sel := canonical.Selection{}
	switch {
	case len(shape) == 2 && b.params.View == ViewAnterior:
	case len(shape) == 3 && shape[2] == 1 && b.params.View == ViewAnterior:
	case len(shape) == 3 && shape[2] == 2:
		if b.params.View == ViewPosterior {
			sel.Channel = b.params.PosteriorIndex
		}
	default:
		return nil, errors.Wrapf(ErrNoView, "%s view of %s", b.params.View, models.ShapeString(shape))
	}

	plane, err := b.canon.Plane(v, sel)
	if err != nil {
		return nil, err
	}
	h, w := plane.Dims()
	out := models.NewVolume(h, w, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(plane.At(y, x), y, x, 0)
		}
	}
	return out, nil
}

// CaseFileName is the model input name of the i-th (1-based) source file
func CaseFileName(prefix string, i int) string {
	return fmt.Sprintf("%s_%06d_0000.nii.gz", prefix, i)
}

// listVolumes returns the sorted `*.nii*` files of dir
func listVolumes(dir string) ([]string, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, errors.Wrapf(ErrMissingDir, "%s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.nii*"))
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	sort.Strings(files)
	return files, nil
}

// Process converts every source in order. Numbering is the 1-based position in
// the sorted listing, so skipped files leave gaps.
func (b *Builder) Process(sources []Source) error {
	if _, err := ParseView(string(b.params.View)); err != nil {
		return err
	}
	if err := os.MkdirAll(b.params.OutputDir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", b.params.OutputDir)
	}

	for _, src := range sources {
		files, err := listVolumes(src.Dir)
		if err != nil {
			return err
		}

		st := Stats{}
		for i, path := range files {
			v, err := b.reader.ReadVolume(path)
			if err != nil {
				log.WithFields(log.Fields{"file": path, "error": err}).Debug("Skipping unreadable volume")
				st.Unreadable++
				continue
			}
			view, err := b.ExtractView(v)
			if err != nil {
				log.WithFields(log.Fields{"file": path, "shape": models.ShapeString(v.Shape)}).Debug("Skipping volume without view")
				st.Skipped++
				continue
			}

			out := filepath.Join(b.params.OutputDir, CaseFileName(src.Prefix, i+1))
			if err := nifti.Write(out, view); err != nil {
				return err
			}
			st.Written++
		}

		b.stats[src.Prefix] = st
		log.WithFields(log.Fields{
			"prefix":     src.Prefix,
			"written":    st.Written,
			"skipped":    st.Skipped,
			"unreadable": st.Unreadable,
		}).Info("Prepared model inputs")
	}
	return nil
}

// Stats returns the counters of the last Process call, keyed by prefix
func (b *Builder) Stats() map[string]Stats { return b.stats }
