package models

import (
	"math"
	"strconv"
)

// SeriesRecord is one row of the series index: one acquisition series with
// the header fields of its representative file
type SeriesRecord struct {
	Root              string
	ExampleFile       string
	PatientID         string
	StudyUID          string
	SeriesUID         string
	StudyDate         string
	StudyTime         string
	Modality          string
	SeriesDescription string
	ProtocolName      string

	// FileCount is the number of scanned files that resolved to SeriesUID
	FileCount int
}

// SeriesColumns is the header row of the series table
var SeriesColumns = []string{
	"dicom_root", "dicom_example_file", "patient_id", "study_uid", "series_uid",
	"study_date", "study_time", "modality", "series_description", "protocol_name",
	"n_files_in_series",
}

// Row renders the record in SeriesColumns order
func (r SeriesRecord) Row() []string {
	return []string{
		r.Root, r.ExampleFile, r.PatientID, r.StudyUID, r.SeriesUID,
		r.StudyDate, r.StudyTime, r.Modality, r.SeriesDescription, r.ProtocolName,
		strconv.Itoa(r.FileCount),
	}
}

// FileRecord is one row of the per-file DICOM index
type FileRecord struct {
	Path                string
	PatientID           string
	PatientName         string
	StudyInstanceUID    string
	SeriesInstanceUID   string
	SOPInstanceUID      string
	StudyDate           string
	StudyTime           string
	AcquisitionDateTime string
	AccessionNumber     string
	StudyDescription    string
	SeriesDescription   string
}

// FileColumns is the header row of the per-file DICOM table
var FileColumns = []string{
	"file_path", "PatientID", "PatientName", "StudyInstanceUID", "SeriesInstanceUID",
	"SOPInstanceUID", "StudyDate", "StudyTime", "AcquisitionDateTime",
	"AccessionNumber", "StudyDescription", "SeriesDescription",
}

// Row renders the record in FileColumns order
func (r FileRecord) Row() []string {
	return []string{
		r.Path, r.PatientID, r.PatientName, r.StudyInstanceUID, r.SeriesInstanceUID,
		r.SOPInstanceUID, r.StudyDate, r.StudyTime, r.AcquisitionDateTime,
		r.AccessionNumber, r.StudyDescription, r.SeriesDescription,
	}
}

// VolumeRecord is one processed volume file. Date and Time are empty when the
// file name carries no timestamp.
type VolumeRecord struct {
	Path string
	Name string
	Date string
	Time string
}

// VolumeColumns is the header row of the volume table
var VolumeColumns = []string{"nifti_path", "nifti_filename", "StudyDate", "StudyTime"}

// Row renders the record in VolumeColumns order
func (r VolumeRecord) Row() []string {
	return []string{r.Path, r.Name, r.Date, r.Time}
}

// HasTimestamp reports whether a join key can be derived for the record
func (r VolumeRecord) HasTimestamp() bool { return r.Date != "" && r.Time != "" }

// JoinKey builds the composite key shared by series and volume rows
func JoinKey(date, time string) string { return date + "_" + time }

// Missing is the in-memory marker for an undefined measurement
func Missing() float64 { return math.NaN() }

// IsMissing reports whether x is the undefined marker
func IsMissing(x float64) bool { return math.IsNaN(x) }

// FormatMeasure renders a measurement for a table cell; missing values become
// empty fields
func FormatMeasure(x float64) string {
	if IsMissing(x) {
		return ""
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// QuantificationRecord holds the region statistics of one case
type QuantificationRecord struct {
	CaseID string

	// Means is keyed by region name; an empty region maps to Missing()
	Means map[string]float64

	// Counts is the number of pixels carrying each region's label
	Counts map[string]int

	// Ratios is keyed by body side (e.g. "OS") and holds soft mean / bone mean
	Ratios map[string]float64
}

// QuantificationColumns builds the header row for a label mapping:
// case_id, <region>_mean..., <side>_soft_to_bone_ratio..., and optionally
// <region>_n...
func QuantificationColumns(m LabelMapping, withCounts bool) []string {
	cols := []string{"case_id"}
	for _, region := range m.Regions() {
		cols = append(cols, region+"_mean")
	}
	for _, side := range m.Sides() {
		cols = append(cols, side+"_soft_to_bone_ratio")
	}
	if withCounts {
		for _, region := range m.Regions() {
			cols = append(cols, region+"_n")
		}
	}
	return cols
}

// Row renders the record in QuantificationColumns order
func (r QuantificationRecord) Row(m LabelMapping, withCounts bool) []string {
	row := []string{r.CaseID}
	for _, region := range m.Regions() {
		row = append(row, FormatMeasure(r.Means[region]))
	}
	for _, side := range m.Sides() {
		row = append(row, FormatMeasure(r.Ratios[side]))
	}
	if withCounts {
		for _, region := range m.Regions() {
			row = append(row, strconv.Itoa(r.Counts[region]))
		}
	}
	return row
}
