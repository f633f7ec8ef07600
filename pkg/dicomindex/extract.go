package dicomindex

import (
	"os"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// SkipReason says why a candidate file contributed nothing to the index
type SkipReason int

const (
	// NotSkipped marks a successful extraction
	NotSkipped SkipReason = iota
	// SkipUnreadable is a file that could not be opened or read
	SkipUnreadable
	// SkipMalformed is a readable file that did not parse as DICOM
	SkipMalformed
	// SkipNoSeriesUID is a parsed file without a series instance UID
	SkipNoSeriesUID
)

func (r SkipReason) String() string {
	switch r {
	case NotSkipped:
		return "ok"
	case SkipUnreadable:
		return "unreadable"
	case SkipMalformed:
		return "malformed"
	case SkipNoSeriesUID:
		return "no-series-uid"
	}
	return "unknown"
}

// Header is the flat set of named fields read from one file. Absent
// attributes are empty strings.
type Header map[string]string

// Extraction is the outcome of reading one file's header: either a Header or
// a skip with its reason. Err carries the underlying cause for diagnostics.
type Extraction struct {
	Header Header
	Reason SkipReason
	Err    error
}

// OK reports whether the extraction produced a header
func (e Extraction) OK() bool { return e.Reason == NotSkipped }

// Skip builds a skipped extraction
func Skip(reason SkipReason, err error) Extraction {
	return Extraction{Reason: reason, Err: err}
}

// HeaderExtractor reads the metadata of one file. Implementations never
// return errors; failures come back as skips.
type HeaderExtractor interface {
	Extract(path string) Extraction
}

// Attributes read by DicomExtractor, keyed by the keyword used in Header
var headerTags = map[string]tag.Tag{
	"PatientID":           tag.PatientID,
	"PatientName":         tag.PatientName,
	"StudyInstanceUID":    tag.StudyInstanceUID,
	"SeriesInstanceUID":   tag.SeriesInstanceUID,
	"SOPInstanceUID":      tag.SOPInstanceUID,
	"StudyDate":           tag.StudyDate,
	"StudyTime":           tag.StudyTime,
	"AcquisitionDateTime": tag.AcquisitionDateTime,
	"Modality":            tag.Modality,
	"SeriesDescription":   tag.SeriesDescription,
	"StudyDescription":    tag.StudyDescription,
	"ProtocolName":        tag.ProtocolName,
	"AccessionNumber":     tag.AccessionNumber,
}

// DicomExtractor reads DICOM headers with pixel data skipped
type DicomExtractor struct{}

// Extract parses path header-only. Files that cannot be opened are
// SkipUnreadable, files that fail to parse are SkipMalformed and files
// without a SeriesInstanceUID are SkipNoSeriesUID.
func (DicomExtractor) Extract(path string) Extraction {
	f, err := os.Open(path)
	if err != nil {
		return Skip(SkipUnreadable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Skip(SkipUnreadable, err)
	}
	defer f.Close()

	ds, err := dicom.Parse(f, info.Size(), nil, dicom.SkipPixelData())
	if err != nil {
		return Skip(SkipMalformed, err)
	}

	h := make(Header, len(headerTags))
	for name, t := range headerTags {
		h[name] = elementString(ds, t)
	}
	if h["SeriesInstanceUID"] == "" {
		// The header is still returned so per-file listings can keep the row
		return Extraction{Header: h, Reason: SkipNoSeriesUID}
	}
	return Extraction{Header: h}
}

// elementString joins the string values of tag t, or returns "" when the
// element is absent or not string-valued
func elementString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return ""
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(strings.Join(values, `\`))
}
