// Package dicomindex builds the series-level index of raw DICOM acquisitions:
// one row per series instance UID with the header fields of its first file
// and the number of files that belong to it.
package dicomindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
	"scintiref/pkg/table"
)

// DefaultExtensions are the lower-cased extensions scanned by default; ""
// matches files without an extension
var DefaultExtensions = []string{"", ".dcm"}

// DefaultVendorExtensions are vendor-specific DICOM extensions
var DefaultVendorExtensions = []string{".ima"}

// Params configures a series scan
type Params struct {
	// Extensions is the allow-list of candidate file extensions
	Extensions []string

	// VendorExtensions are additional candidate extensions
	VendorExtensions []string
}

// ScanStats tallies what happened to the candidate files of a scan
type ScanStats struct {
	Candidates int
	Indexed    int
	Skipped    map[SkipReason]int
}

// TotalSkipped sums skips over every reason
func (s ScanStats) TotalSkipped() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// SeriesIndex is the result of a scan
type SeriesIndex struct {
	Records []models.SeriesRecord
	Stats   ScanStats
}

// UniquePatients counts distinct non-empty patient ids
func (idx *SeriesIndex) UniquePatients() int {
	seen := make(map[string]struct{})
	for _, r := range idx.Records {
		if r.PatientID != "" {
			seen[r.PatientID] = struct{}{}
		}
	}
	return len(seen)
}

// Table renders the index as a series table
func (idx *SeriesIndex) Table() *table.Table {
	t := table.New(models.SeriesColumns...)
	for _, r := range idx.Records {
		t.Append(r.Row())
	}
	return t
}

// Builder scans DICOM trees into a SeriesIndex
type Builder struct {
	params    Params
	extractor HeaderExtractor
	allowed   map[string]bool
}

// NewBuilder creates a builder that reads headers through extractor. A nil
// extractor uses DicomExtractor.
func NewBuilder(params Params, extractor HeaderExtractor) *Builder {
	if extractor == nil {
		extractor = DicomExtractor{}
	}
	if params.Extensions == nil {
		params.Extensions = DefaultExtensions
	}
	if params.VendorExtensions == nil {
		params.VendorExtensions = DefaultVendorExtensions
	}
	allowed := make(map[string]bool)
	for _, ext := range append(append([]string{}, params.Extensions...), params.VendorExtensions...) {
		allowed[normalizeExt(ext)] = true
	}
	return &Builder{params: params, extractor: extractor, allowed: allowed}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// IsCandidate reports whether a file name passes the extension filter
func (b *Builder) IsCandidate(name string) bool {
	return b.allowed[strings.ToLower(filepath.Ext(name))]
}

// seriesAccumulator collects one representative record per series uid and
// counts member files. It is owned by a single Build call.
type seriesAccumulator struct {
	rows  map[string]*models.SeriesRecord
	order []string
}

func newSeriesAccumulator() *seriesAccumulator {
	return &seriesAccumulator{rows: make(map[string]*models.SeriesRecord)}
}

// add records one file; only the first file of a series supplies fields
func (a *seriesAccumulator) add(root, path string, h Header) {
	uid := h["SeriesInstanceUID"]
	if rec, ok := a.rows[uid]; ok {
		rec.FileCount++
		return
	}
	a.rows[uid] = &models.SeriesRecord{
		Root:              root,
		ExampleFile:       path,
		PatientID:         h["PatientID"],
		StudyUID:          h["StudyInstanceUID"],
		SeriesUID:         uid,
		StudyDate:         h["StudyDate"],
		StudyTime:         h["StudyTime"],
		Modality:          h["Modality"],
		SeriesDescription: h["SeriesDescription"],
		ProtocolName:      h["ProtocolName"],
		FileCount:         1,
	}
	a.order = append(a.order, uid)
}

// records returns the accumulated rows sorted by patient, date, time and
// modality; empty values sort first
func (a *seriesAccumulator) records() []models.SeriesRecord {
	out := make([]models.SeriesRecord, 0, len(a.order))
	for _, uid := range a.order {
		out = append(out, *a.rows[uid])
	}
	sort.SliceStable(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if x.PatientID != y.PatientID {
			return x.PatientID < y.PatientID
		}
		if x.StudyDate != y.StudyDate {
			return x.StudyDate < y.StudyDate
		}
		if x.StudyTime != y.StudyTime {
			return x.StudyTime < y.StudyTime
		}
		return x.Modality < y.Modality
	})
	return out
}

// Build scans every root recursively and returns one record per series
func (b *Builder) Build(roots []string) (*SeriesIndex, error) {
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	for _, root := range roots {
		if err := checkDir(root); err != nil {
			return nil, err
		}
	}

	acc := newSeriesAccumulator()
	stats := ScanStats{Skipped: make(map[SkipReason]int)}
	for _, root := range roots {
		if err := b.scanRoot(root, acc, &stats); err != nil {
			return nil, err
		}
	}

	idx := &SeriesIndex{Records: acc.records(), Stats: stats}
	log.WithFields(log.Fields{
		"roots":      len(roots),
		"candidates": stats.Candidates,
		"indexed":    stats.Indexed,
		"skipped":    stats.TotalSkipped(),
		"series":     len(idx.Records),
	}).Info("Series index built")
	return idx, nil
}

func (b *Builder) scanRoot(root string, acc *seriesAccumulator, stats *ScanStats) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable subdirectory is skipped like an unreadable file
			log.WithFields(log.Fields{"path": path, "error": err}).Debug("Skipping unreadable entry")
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			if path == root {
				return errors.Wrapf(err, "walking %s", root)
			}
			return nil
		}
		if d.IsDir() || !b.IsCandidate(d.Name()) {
			return nil
		}

		stats.Candidates++
		res := b.extractor.Extract(path)
		if !res.OK() {
			stats.Skipped[res.Reason]++
			log.WithFields(log.Fields{
				"path":   path,
				"reason": res.Reason,
				"error":  res.Err,
			}).Debug("Skipping file")
			return nil
		}
		if res.Header["SeriesInstanceUID"] == "" {
			stats.Skipped[SkipNoSeriesUID]++
			return nil
		}

		stats.Indexed++
		acc.add(root, path, res.Header)
		return nil
	})
}

func checkDir(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return errors.Wrapf(ErrMissingRoot, "%s: %v", root, err)
	}
	if !info.IsDir() {
		return errors.Wrapf(ErrMissingRoot, "%s is not a directory", root)
	}
	return nil
}

// ExistingRoots joins every subfolder onto base and keeps those that exist
func ExistingRoots(base string, subfolders []string) []string {
	if len(subfolders) == 0 {
		subfolders = []string{"."}
	}
	var roots []string
	for _, s := range subfolders {
		p := filepath.Join(base, s)
		if checkDir(p) == nil {
			roots = append(roots, p)
		}
	}
	return roots
}
