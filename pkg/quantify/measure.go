// Package quantify computes per-region intensity statistics over a planar
// image and its segmentation, and the soft-tissue to bone uptake ratio of
// each body side.
package quantify

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"scintiref/internal/models"
)

// Measurement holds the statistics of one image/label pair
type Measurement struct {
	// Means per region; Missing() when the region has no pixels
	Means map[string]float64

	// Counts per region
	Counts map[string]int
}

// Measure averages img over the pixels of each region in mapping. Label
// values are rounded half to even before comparison.
func Measure(img, labels mat.Matrix, mapping models.LabelMapping) (Measurement, error) {
	ir, ic := img.Dims()
	lr, lc := labels.Dims()
	if ir != lr || ic != lc {
		return Measurement{}, errors.Wrapf(ErrShapeMismatch, "image %dx%d, labels %dx%d", ir, ic, lr, lc)
	}

	byLabel := make(map[int][]float64, len(mapping))
	for _, v := range mapping {
		byLabel[v] = nil
	}
	for y := 0; y < ir; y++ {
		for x := 0; x < ic; x++ {
			l := math.RoundToEven(labels.At(y, x))
			if math.IsNaN(l) {
				continue
			}
			if vals, ok := byLabel[int(l)]; ok {
				byLabel[int(l)] = append(vals, img.At(y, x))
			}
		}
	}

	m := Measurement{
		Means:  make(map[string]float64, len(mapping)),
		Counts: make(map[string]int, len(mapping)),
	}
	for region, label := range mapping {
		vals := byLabel[label]
		m.Counts[region] = len(vals)
		if len(vals) == 0 {
			m.Means[region] = models.Missing()
			continue
		}
		m.Means[region] = stat.Mean(vals, nil)
	}
	return m, nil
}

// Ratio returns soft / bone, or Missing() when either mean is missing or bone
// is zero
func Ratio(soft, bone float64) float64 {
	if models.IsMissing(soft) || models.IsMissing(bone) || math.IsInf(soft, 0) || math.IsInf(bone, 0) || bone == 0 {
		return models.Missing()
	}
	return soft / bone
}

// Ratios computes the soft/bone ratio for every side of mapping
func (m Measurement) Ratios(mapping models.LabelMapping) map[string]float64 {
	out := make(map[string]float64)
	for _, side := range mapping.Sides() {
		out[side] = Ratio(m.Means[models.SoftRegion(side)], m.Means[models.BoneRegion(side)])
	}
	return out
}

// Record packages a measurement as a table record
func (m Measurement) Record(caseID string, mapping models.LabelMapping) models.QuantificationRecord {
	return models.QuantificationRecord{
		CaseID: caseID,
		Means:  m.Means,
		Counts: m.Counts,
		Ratios: m.Ratios(mapping),
	}
}

// CaseID strips suffix from an image file name: "P01_0000.nii.gz" -> "P01"
func CaseID(imageName, suffix string) string {
	return strings.TrimSuffix(imageName, suffix)
}

// LabelName is the label file name paired with a case
func LabelName(caseID, ext string) string {
	return fmt.Sprintf("%s%s", caseID, ext)
}
