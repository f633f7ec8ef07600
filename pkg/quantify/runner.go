package quantify

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
	"scintiref/pkg/canonical"
	"scintiref/pkg/nifti"
	"scintiref/pkg/table"
)

// Default naming of case images and label files
const (
	DefaultImageSuffix = "_0000.nii.gz"
	DefaultLabelExt    = ".nii.gz"
)

// CasePolicy decides what a run does when one case fails with a data error
type CasePolicy string

const (
	// PolicyAbort stops the run at the first failing case
	PolicyAbort CasePolicy = "abort"
	// PolicySkip counts the failing case and continues
	PolicySkip CasePolicy = "skip"
)

// ParsePolicy validates a policy name; empty selects PolicyAbort
func ParsePolicy(s string) (CasePolicy, error) {
	switch CasePolicy(s) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	}
	return "", errors.Wrapf(ErrUnknownPolicy, "%q", s)
}

// Params holds the batch quantification settings
type Params struct {
	// ImageSuffix identifies case images and is stripped to form the case id
	ImageSuffix string

	// LabelExt is appended to the case id to find the label file
	LabelExt string

	// Mapping is the region scheme of the label files
	Mapping models.LabelMapping

	// Selection picks the plane of rank-3 and rank-4 inputs
	Selection canonical.Selection

	// ChannelAxisMaxSize is passed to the canonicalizer; 0 uses its default
	ChannelAxisMaxSize int

	// OnCaseError is applied to shape and selection errors of a single case
	OnCaseError CasePolicy

	// IncludeCounts adds per-region pixel counts to the output table
	IncludeCounts bool
}

// DefaultParams returns the settings matching the segmentation model output
func DefaultParams() *Params {
	return &Params{
		ImageSuffix: DefaultImageSuffix,
		LabelExt:    DefaultLabelExt,
		Mapping:     models.DefaultLabelMapping(),
		OnCaseError: PolicyAbort,
	}
}

// RunStats counts what happened to each discovered image
type RunStats struct {
	Images       int
	Measured     int
	MissingLabel int
	Failed       int
}

// Runner quantifies every case of an images/labels directory pair
type Runner struct {
	params  *Params
	reader  nifti.VolumeReader
	canon   canonical.Canonicalizer
	records []models.QuantificationRecord
	stats   RunStats
}

// NewRunner creates a runner; a nil reader reads NIfTI files from disk
func NewRunner(params *Params, reader nifti.VolumeReader) *Runner {
	if reader == nil {
		reader = nifti.Reader{}
	}
	return &Runner{
		params: params,
		reader: reader,
		canon:  canonical.New(params.ChannelAxisMaxSize),
	}
}

// Run measures every `*<ImageSuffix>` image in imagesDir against its label in
// labelsDir. Records are sorted by case id.
func (r *Runner) Run(imagesDir, labelsDir string) error {
	if err := r.params.Mapping.Validate(); err != nil {
		return errors.Wrap(err, "invalid label mapping")
	}
	policy, err := ParsePolicy(string(r.params.OnCaseError))
	if err != nil {
		return err
	}
	for _, dir := range []string{imagesDir, labelsDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return errors.Wrapf(ErrMissingDir, "%s", dir)
		}
	}

	images, err := filepath.Glob(filepath.Join(imagesDir, "*"+r.params.ImageSuffix))
	if err != nil {
		return errors.Wrapf(err, "listing %s", imagesDir)
	}
	if len(images) == 0 {
		return errors.Wrapf(ErrNoImages, "no *%s in %s", r.params.ImageSuffix, imagesDir)
	}
	sort.Strings(images)

	r.records = r.records[:0]
	r.stats = RunStats{Images: len(images)}
	for _, img := range images {
		caseID := CaseID(filepath.Base(img), r.params.ImageSuffix)
		labelPath := filepath.Join(labelsDir, LabelName(caseID, r.params.LabelExt))
		if _, err := os.Stat(labelPath); err != nil {
			log.WithFields(log.Fields{"case": caseID, "label": labelPath}).Debug("Skipping case without label")
			r.stats.MissingLabel++
			continue
		}

		rec, err := r.measureCase(caseID, img, labelPath)
		if err != nil {
			if policy == PolicyAbort {
				return err
			}
			log.WithFields(log.Fields{"case": caseID, "error": err}).Warn("Skipping failed case")
			r.stats.Failed++
			continue
		}
		r.records = append(r.records, rec)
		r.stats.Measured++
	}

	sort.SliceStable(r.records, func(i, j int) bool { return r.records[i].CaseID < r.records[j].CaseID })

	log.WithFields(log.Fields{
		"images":       r.stats.Images,
		"measured":     r.stats.Measured,
		"missingLabel": r.stats.MissingLabel,
		"failed":       r.stats.Failed,
	}).Info("Quantification finished")
	return nil
}

func (r *Runner) measureCase(caseID, imagePath, labelPath string) (models.QuantificationRecord, error) {
	imgVol, err := r.reader.ReadVolume(imagePath)
	if err != nil {
		return models.QuantificationRecord{}, errors.Wrapf(err, "case %s", caseID)
	}
	lblVol, err := r.reader.ReadVolume(labelPath)
	if err != nil {
		return models.QuantificationRecord{}, errors.Wrapf(err, "case %s", caseID)
	}

	img, err := r.canon.Plane(imgVol, r.params.Selection)
	if err != nil {
		return models.QuantificationRecord{}, errors.Wrapf(err, "case %s image", caseID)
	}
	lbl, err := r.canon.Plane(lblVol, r.params.Selection)
	if err != nil {
		return models.QuantificationRecord{}, errors.Wrapf(err, "case %s labels", caseID)
	}

	m, err := Measure(img, lbl, r.params.Mapping)
	if err != nil {
		return models.QuantificationRecord{}, errors.Wrapf(err, "case %s: image %s, labels %s", caseID,
			models.ShapeString(imgVol.Shape), models.ShapeString(lblVol.Shape))
	}
	return m.Record(caseID, r.params.Mapping), nil
}

// Records returns the measured cases of the last run
func (r *Runner) Records() []models.QuantificationRecord { return r.records }

// Stats returns the counters of the last run
func (r *Runner) Stats() RunStats { return r.stats }

// Table renders the records of the last run
func (r *Runner) Table() *table.Table {
	t := table.New(models.QuantificationColumns(r.params.Mapping, r.params.IncludeCounts)...)
	for _, rec := range r.records {
		t.Append(rec.Row(r.params.Mapping, r.params.IncludeCounts))
	}
	return t
}
