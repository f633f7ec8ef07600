package dicomindex

import (
	"io/fs"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
	"scintiref/pkg/table"
)

// FileIndex is the per-file listing of readable DICOM files under one root
type FileIndex struct {
	Records []models.FileRecord
	Stats   ScanStats
}

// Table renders the index with CamelCase DICOM keyword columns
func (idx *FileIndex) Table() *table.Table {
	t := table.New(models.FileColumns...)
	for _, r := range idx.Records {
		t.Append(r.Row())
	}
	return t
}

// BuildFileIndex lists every .dcm file below root, one record per readable
// file in walk order. Files without a series uid are kept here; only
// unreadable and malformed files are skipped.
func BuildFileIndex(root string, extractor HeaderExtractor) (*FileIndex, error) {
	if extractor == nil {
		extractor = DicomExtractor{}
	}
	if err := checkDir(root); err != nil {
		return nil, err
	}

	idx := &FileIndex{Stats: ScanStats{Skipped: make(map[SkipReason]int)}}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(d.Name())) != ".dcm" {
			return nil
		}

		idx.Stats.Candidates++
		res := extractor.Extract(path)
		h := res.Header
		switch {
		case res.OK():
		case res.Reason == SkipNoSeriesUID && res.Header != nil:
		default:
			idx.Stats.Skipped[res.Reason]++
			log.WithFields(log.Fields{"path": path, "reason": res.Reason}).Debug("Skipping file")
			return nil
		}

		idx.Stats.Indexed++
		idx.Records = append(idx.Records, models.FileRecord{
			Path:                path,
			PatientID:           h["PatientID"],
			PatientName:         h["PatientName"],
			StudyInstanceUID:    h["StudyInstanceUID"],
			SeriesInstanceUID:   h["SeriesInstanceUID"],
			SOPInstanceUID:      h["SOPInstanceUID"],
			StudyDate:           h["StudyDate"],
			StudyTime:           h["StudyTime"],
			AcquisitionDateTime: h["AcquisitionDateTime"],
			AccessionNumber:     h["AccessionNumber"],
			StudyDescription:    h["StudyDescription"],
			SeriesDescription:   h["SeriesDescription"],
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"root":    root,
		"files":   len(idx.Records),
		"skipped": idx.Stats.TotalSkipped(),
	}).Info("File index built")
	return idx, nil
}
