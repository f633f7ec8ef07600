// Package reconcile joins the volume index to the DICOM series index on the
// study date/time key.
package reconcile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
	"scintiref/pkg/table"
)

// Output column names
const (
	ColKey        = "key"
	ColMatchFound = "match_found"
	ColStudyDate  = "StudyDate"
	ColStudyTime  = "StudyTime"
	ColNiftiName  = "nifti_filename"
	ColNiftiPath  = "nifti_path"
)

// collisionPrefix renames series columns that clash with volume columns
const collisionPrefix = "dicom_"

// Default column name variants and limits
var (
	DefaultDateColumns        = []string{"StudyDate", "study_date", "date", "DATE"}
	DefaultTimeColumns        = []string{"StudyTime", "study_time", "time", "TIME"}
	DefaultDescriptionColumns = []string{"SeriesDescription", "series_description"}

	// DefaultKeepColumns lists the series columns carried into the output;
	// slashes separate accepted variants of one field
	DefaultKeepColumns = []string{
		"PatientID/patient_id",
		"PatientName",
		"StudyInstanceUID/study_uid",
		"SeriesInstanceUID/series_uid",
		"SOPInstanceUID",
		"AccessionNumber",
		"StudyDescription",
		"SeriesDescription/series_description",
		"file_path/dicom_example_file",
	}

	frontColumns = []string{ColNiftiName, ColNiftiPath, ColStudyDate, ColStudyTime, ColMatchFound}
)

// DefaultUnmatchedPreview is the number of unmatched rows listed in a report
const DefaultUnmatchedPreview = 10

// Params holds the reconciliation settings
type Params struct {
	DateColumns        []string
	TimeColumns        []string
	DescriptionColumns []string
	KeepColumns        []string
	UnmatchedPreview   int
}

// DefaultParams returns the standard column variants
func DefaultParams() *Params {
	return &Params{
		DateColumns:        DefaultDateColumns,
		TimeColumns:        DefaultTimeColumns,
		DescriptionColumns: DefaultDescriptionColumns,
		KeepColumns:        DefaultKeepColumns,
		UnmatchedPreview:   DefaultUnmatchedPreview,
	}
}

// Reconciler performs the left join of volumes onto series
type Reconciler struct {
	params *Params
}

// New creates a reconciler; nil params use DefaultParams
func New(params *Params) *Reconciler {
	if params == nil {
		params = DefaultParams()
	}
	return &Reconciler{params: params}
}

// Result is the joined table and its match report
type Result struct {
	Table  *table.Table
	Report Report
}

// keyColumns are the date and time columns detected on one side
type keyColumns struct {
	date, time string
}

func (r *Reconciler) detect(t *table.Table, side string) (keyColumns, error) {
	kc := keyColumns{date: t.Pick(r.params.DateColumns...), time: t.Pick(r.params.TimeColumns...)}
	if kc.date == "" {
		return kc, errors.Wrapf(ErrMissingColumn, "%s table has no date column (%s); columns: %s",
			side, strings.Join(r.params.DateColumns, ", "), strings.Join(t.Columns, ", "))
	}
	if kc.time == "" {
		return kc, errors.Wrapf(ErrMissingColumn, "%s table has no time column (%s); columns: %s",
			side, strings.Join(r.params.TimeColumns, ", "), strings.Join(t.Columns, ", "))
	}
	return kc, nil
}

// rowKey builds the join key of row i, or "" when date or time is empty
func rowKey(t *table.Table, i int, kc keyColumns) string {
	date := strings.TrimSpace(t.Get(i, kc.date))
	tm := strings.TrimSpace(t.Get(i, kc.time))
	if date == "" || tm == "" {
		return ""
	}
	return models.JoinKey(date, tm)
}

// trimmed returns a shallow copy of t with whitespace-trimmed column names
func trimmed(t *table.Table) *table.Table {
	out := &table.Table{Columns: append([]string(nil), t.Columns...), Rows: t.Rows}
	out.TrimColumnNames()
	return out
}

// Reconcile left-joins volumes to series. Every volume row appears exactly
// once in the output; at most one series row is attached per key.
func (r *Reconciler) Reconcile(series, volumes *table.Table) (*Result, error) {
	series, volumes = trimmed(series), trimmed(volumes)

	sk, err := r.detect(series, "series")
	if err != nil {
		return nil, err
	}
	vk, err := r.detect(volumes, "volume")
	if err != nil {
		return nil, err
	}

	byKey := r.representatives(series, sk)
	keep := r.keptColumns(series, sk)

	// Output header: volume columns with date/time renamed, then key, then
	// kept series columns, then match_found
	outCols := make([]string, len(volumes.Columns))
	for i, c := range volumes.Columns {
		switch c {
		case vk.date:
			outCols[i] = ColStudyDate
		case vk.time:
			outCols[i] = ColStudyTime
		default:
			outCols[i] = c
		}
	}
	taken := make(map[string]bool, len(outCols)+2)
	for _, c := range outCols {
		taken[c] = true
	}
	keyIdx := -1
	if !taken[ColKey] {
		outCols = append(outCols, ColKey)
		keyIdx = len(outCols) - 1
	}
	taken[ColKey] = true
	taken[ColMatchFound] = true
	for _, c := range keep {
		name := c
		if taken[name] {
			name = collisionPrefix + c
		}
		taken[name] = true
		outCols = append(outCols, name)
	}
	outCols = append(outCols, ColMatchFound)

	joined := table.New(outCols...)
	report := Report{Total: volumes.Len()}
	nv := len(volumes.Columns)
	for i, vrow := range volumes.Rows {
		row := make([]string, nv, len(outCols))
		copy(row, vrow)
		key := rowKey(volumes, i, vk)
		if keyIdx >= 0 {
			row = append(row, key)
		}

		si, ok := -1, false
		if key != "" {
			si, ok = byKey[key]
		}
		for _, c := range keep {
			if ok {
				row = append(row, series.Get(si, c))
			} else {
				row = append(row, "")
			}
		}
		if ok {
			row = append(row, "1")
			report.Matched++
		} else {
			row = append(row, "0")
		}
		joined.Append(row)
	}

	joined = reorder(joined, frontColumns)
	report.Unmatched = unmatchedPreview(joined, r.params.UnmatchedPreview)

	log.WithFields(log.Fields{
		"total":     report.Total,
		"matched":   report.Matched,
		"seriesKey": len(byKey),
	}).Info("Reconciled volume index")

	return &Result{Table: joined, Report: report}, nil
}

// representatives picks one series row per key: rows are ordered by key,
// then description, then every remaining field in column order, and the
// first row of each key wins
func (r *Reconciler) representatives(series *table.Table, kc keyColumns) map[string]int {
	desc := series.Pick(r.params.DescriptionColumns...)
	descIdx := series.Index(desc)

	type candidate struct {
		key string
		row int
	}
	var cands []candidate
	for i := range series.Rows {
		if key := rowKey(series, i, kc); key != "" {
			cands = append(cands, candidate{key: key, row: i})
		}
	}

	sort.SliceStable(cands, func(a, b int) bool {
		ca, cb := cands[a], cands[b]
		if ca.key != cb.key {
			return ca.key < cb.key
		}
		ra, rb := series.Rows[ca.row], series.Rows[cb.row]
		if descIdx >= 0 && ra[descIdx] != rb[descIdx] {
			return ra[descIdx] < rb[descIdx]
		}
		for k := range ra {
			if ra[k] != rb[k] {
				return ra[k] < rb[k]
			}
		}
		return false
	})

	byKey := make(map[string]int, len(cands))
	for _, c := range cands {
		if _, ok := byKey[c.key]; !ok {
			byKey[c.key] = c.row
		}
	}
	return byKey
}

// keptColumns resolves the allow-list against the series header, followed by
// the series date and time columns
func (r *Reconciler) keptColumns(series *table.Table, kc keyColumns) []string {
	var keep []string
	seen := make(map[string]bool)
	add := func(c string) {
		if c != "" && c != ColKey && !seen[c] {
			seen[c] = true
			keep = append(keep, c)
		}
	}
	for _, entry := range r.params.KeepColumns {
		add(series.Pick(strings.Split(entry, "/")...))
	}
	add(kc.date)
	add(kc.time)
	return keep
}

// reorder moves the present front columns first, keeping the others in order
func reorder(t *table.Table, front []string) *table.Table {
	var order []int
	used := make(map[int]bool)
	for _, c := range front {
		if idx := t.Index(c); idx >= 0 && !used[idx] {
			order = append(order, idx)
			used[idx] = true
		}
	}
	for i := range t.Columns {
		if !used[i] {
			order = append(order, i)
		}
	}

	cols := make([]string, len(order))
	for j, i := range order {
		cols[j] = t.Columns[i]
	}
	out := table.New(cols...)
	for _, row := range t.Rows {
		nr := make([]string, len(order))
		for j, i := range order {
			nr[j] = row[i]
		}
		out.Append(nr)
	}
	return out
}

// Report summarizes how many volumes found their series
type Report struct {
	Total   int
	Matched int

	// Unmatched holds the first unmatched rows as
	// (nifti_filename, StudyDate, StudyTime)
	Unmatched [][]string
}

// Percent is the matched share in percent; 0 for an empty volume table
func (r Report) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return 100 * float64(r.Matched) / float64(r.Total)
}

// String renders the report the way the CLI prints it
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Matched %d/%d NIfTIs (%.1f%%)", r.Matched, r.Total, r.Percent())
	if len(r.Unmatched) > 0 {
		b.WriteString("\nUnmatched (first rows):")
		for _, u := range r.Unmatched {
			fmt.Fprintf(&b, "\n  %s", strings.Join(u, "  "))
		}
	}
	return b.String()
}

func unmatchedPreview(t *table.Table, limit int) [][]string {
	var out [][]string
	for i := range t.Rows {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if t.Get(i, ColMatchFound) == "1" {
			continue
		}
		out = append(out, []string{t.Get(i, ColNiftiName), t.Get(i, ColStudyDate), t.Get(i, ColStudyTime)})
	}
	return out
}
