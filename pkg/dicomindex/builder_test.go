package dicomindex

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/errors"
)

// fakeExtractor serves headers from a map keyed by file base name
type fakeExtractor struct {
	headers map[string]Header
	skips   map[string]SkipReason
	calls   []string
}

func (f *fakeExtractor) Extract(path string) Extraction {
	name := filepath.Base(path)
	f.calls = append(f.calls, name)
	if r, ok := f.skips[name]; ok {
		return Skip(r, errors.New("fake skip"))
	}
	h, ok := f.headers[name]
	if !ok {
		return Skip(SkipMalformed, errors.New("not a dicom file"))
	}
	if h["SeriesInstanceUID"] == "" {
		return Extraction{Header: h, Reason: SkipNoSeriesUID}
	}
	return Extraction{Header: h}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", p, err)
		}
	}
}

func header(patient, series, date, tm, desc string) Header {
	return Header{
		"PatientID":         patient,
		"StudyInstanceUID":  "study-" + patient,
		"SeriesInstanceUID": series,
		"StudyDate":         date,
		"StudyTime":         tm,
		"Modality":          "NM",
		"SeriesDescription": desc,
		"ProtocolName":      "WB",
	}
}

func TestBuildOneRowPerSeries(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFiles(t, rootA, "s1/a1.dcm", "s1/a2.dcm", "s2/IM0001", "notes.txt")
	writeFiles(t, rootB, "s1/b1.DCM", "s3/c1.ima")

	fx := &fakeExtractor{headers: map[string]Header{
		"a1.dcm": header("P2", "1.2.1", "20230115", "093000", "ANT"),
		"a2.dcm": header("P2", "1.2.1", "20990101", "000000", "changed"),
		"b1.DCM": header("P2", "1.2.1", "20990101", "000000", "changed"),
		"IM0001": header("P1", "1.2.2", "20200101", "120000", "POST"),
		"c1.ima": header("P0", "1.2.3", "20210101", "080000", "ANT"),
	}}

	idx, err := NewBuilder(Params{}, fx).Build([]string{rootA, rootB})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(idx.Records) != 3 {
		t.Fatalf("Expected 3 series, got %d", len(idx.Records))
	}

	counts := map[string]int{}
	for _, r := range idx.Records {
		counts[r.SeriesUID] = r.FileCount
	}
	want := map[string]int{"1.2.1": 3, "1.2.2": 1, "1.2.3": 1}
	for uid, n := range want {
		if counts[uid] != n {
			t.Errorf("Series %s: expected count %d, got %d", uid, n, counts[uid])
		}
	}

	for _, name := range fx.calls {
		if name == "notes.txt" {
			t.Errorf("notes.txt should not be a candidate")
		}
	}
	if idx.Stats.Candidates != 5 {
		t.Errorf("Expected 5 candidates, got %d", idx.Stats.Candidates)
	}
}

func TestBuildFirstFileIsRepresentative(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a1.dcm", "a2.dcm")
	fx := &fakeExtractor{headers: map[string]Header{
		"a1.dcm": header("P1", "1.2.1", "20230115", "093000", "ANT"),
		"a2.dcm": header("P9", "1.2.1", "20990101", "000000", "changed"),
	}}

	idx, err := NewBuilder(Params{}, fx).Build([]string{root})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	r := idx.Records[0]
	// WalkDir visits a1.dcm before a2.dcm
	if r.PatientID != "P1" || r.StudyDate != "20230115" || r.SeriesDescription != "ANT" {
		t.Errorf("Later file overwrote representative fields: %+v", r)
	}
	if r.ExampleFile != filepath.Join(root, "a1.dcm") {
		t.Errorf("Unexpected representative file %s", r.ExampleFile)
	}
	if r.FileCount != 2 {
		t.Errorf("Expected count 2, got %d", r.FileCount)
	}
}

func TestBuildSkipsAreCounted(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "ok.dcm", "broken.dcm", "locked.dcm", "nouid.dcm")
	fx := &fakeExtractor{
		headers: map[string]Header{
			"ok.dcm":    header("P1", "1.2.1", "20230115", "093000", "ANT"),
			"nouid.dcm": header("P1", "", "20230115", "093000", "ANT"),
		},
		skips: map[string]SkipReason{"locked.dcm": SkipUnreadable},
	}

	idx, err := NewBuilder(Params{}, fx).Build([]string{root})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(idx.Records) != 1 {
		t.Fatalf("Expected 1 series, got %d", len(idx.Records))
	}
	tests := []struct {
		reason SkipReason
		want   int
	}{
		{SkipMalformed, 1},
		{SkipUnreadable, 1},
		{SkipNoSeriesUID, 1},
	}
	for _, tt := range tests {
		if got := idx.Stats.Skipped[tt.reason]; got != tt.want {
			t.Errorf("Skip reason %s: expected %d, got %d", tt.reason, tt.want, got)
		}
	}
	if idx.Stats.TotalSkipped() != 3 {
		t.Errorf("Expected 3 skipped, got %d", idx.Stats.TotalSkipped())
	}
}

func TestBuildSortOrder(t *testing.T) {
	root := t.TempDir()
	fx := &fakeExtractor{headers: map[string]Header{}}
	inputs := []Header{
		header("P2", "s1", "20230101", "100000", "A"),
		header("P1", "s2", "20230102", "090000", "A"),
		header("P1", "s3", "20230101", "110000", "A"),
		header("P1", "s4", "20230101", "090000", "A"),
		header("", "s5", "20230101", "090000", "A"),
	}
	for i, h := range inputs {
		name := "f" + strconv.Itoa(i) + ".dcm"
		writeFiles(t, root, name)
		fx.headers[name] = h
	}

	idx, err := NewBuilder(Params{}, fx).Build([]string{root})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	var got []string
	for _, r := range idx.Records {
		got = append(got, r.SeriesUID)
	}
	want := []string{"s5", "s4", "s3", "s2", "s1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
	if idx.UniquePatients() != 2 {
		t.Errorf("Expected 2 unique patients, got %d", idx.UniquePatients())
	}
}

func TestBuildMissingRoot(t *testing.T) {
	_, err := NewBuilder(Params{}, &fakeExtractor{}).Build([]string{filepath.Join(t.TempDir(), "absent")})
	if !errors.Is(err, ErrMissingRoot) {
		t.Fatalf("Expected ErrMissingRoot, got %v", err)
	}

	if _, err := NewBuilder(Params{}, &fakeExtractor{}).Build(nil); !errors.Is(err, ErrNoRoots) {
		t.Fatalf("Expected ErrNoRoots, got %v", err)
	}
}

func TestIsCandidate(t *testing.T) {
	b := NewBuilder(Params{Extensions: []string{"", "DCM"}, VendorExtensions: []string{".ima"}}, &fakeExtractor{})
	tests := []struct {
		name string
		want bool
	}{
		{"IM0001", true},
		{"a.dcm", true},
		{"a.DCM", true},
		{"a.IMA", true},
		{"a.nii.gz", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		if got := b.IsCandidate(tt.name); got != tt.want {
			t.Errorf("IsCandidate(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExistingRoots(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, "DICOMS_AUT2020/x.dcm")
	roots := ExistingRoots(base, []string{"DICOMS_AUT2020", "DICOMS_AUT2023"})
	if len(roots) != 1 || roots[0] != filepath.Join(base, "DICOMS_AUT2020") {
		t.Errorf("Unexpected roots %v", roots)
	}
}

func TestDicomExtractorSkips(t *testing.T) {
	dir := t.TempDir()
	res := DicomExtractor{}.Extract(filepath.Join(dir, "missing.dcm"))
	if res.Reason != SkipUnreadable {
		t.Errorf("Expected unreadable skip for missing file, got %s", res.Reason)
	}

	junk := filepath.Join(dir, "junk.dcm")
	if err := os.WriteFile(junk, []byte("this is not a dicom file"), 0644); err != nil {
		t.Fatalf("Failed to write junk file: %v", err)
	}
	res = DicomExtractor{}.Extract(junk)
	if res.OK() {
		t.Errorf("Expected junk file to be skipped")
	}
}

func TestBuildFileIndex(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a/1.dcm", "a/2.dcm", "a/3.dcm", "a/IM0001")
	fx := &fakeExtractor{headers: map[string]Header{
		"1.dcm":  header("P1", "1.2.1", "20230115", "093000", "ANT"),
		"2.dcm":  header("P1", "", "20230115", "093000", "ANT"),
		"IM0001": header("P1", "1.2.1", "20230115", "093000", "ANT"),
	}}

	idx, err := BuildFileIndex(root, fx)
	if err != nil {
		t.Fatalf("BuildFileIndex failed: %v", err)
	}
	if len(idx.Records) != 2 {
		t.Fatalf("Expected 2 file rows, got %d", len(idx.Records))
	}
	if idx.Stats.Skipped[SkipMalformed] != 1 {
		t.Errorf("Expected one malformed skip, got %d", idx.Stats.Skipped[SkipMalformed])
	}
	tb := idx.Table()
	if tb.Get(0, "PatientID") != "P1" || tb.Get(0, "StudyDate") != "20230115" {
		t.Errorf("Unexpected first row %v", tb.Rows[0])
	}
}
