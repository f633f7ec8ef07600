// Package volumeindex lists processed volume files and derives the
// acquisition date and time embedded in each file name.
package volumeindex

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scintiref/internal/models"
	"scintiref/pkg/table"
)

// DefaultPattern matches compressed NIfTI volumes
const DefaultPattern = "*.nii.gz"

// ErrMissingRoot is returned when the volume directory does not exist
var ErrMissingRoot = errors.New("volume directory not found")

var (
	// timestampPattern captures YYYYMMDD and HHMMSS from a 14-digit run that
	// starts with the century prefix "20"
	timestampPattern = regexp.MustCompile(`(20\d{6})(\d{6})`)

	// separatedTimestampPattern also accepts one '_', '-' or 'T' between the
	// date and the time
	separatedTimestampPattern = regexp.MustCompile(`(20\d{6})[_\-T]?(\d{6})`)
)

// ExtractTimestamp returns the leftmost date/time pair found in name, or two
// empty strings
func ExtractTimestamp(name string) (date, time string) {
	return extract(timestampPattern, name)
}

func extract(re *regexp.Regexp, name string) (string, string) {
	m := re.FindStringSubmatch(name)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// Builder enumerates volume files under one directory
type Builder struct {
	// Pattern is the glob applied to file names in the root directory
	Pattern string

	// AllowSeparator accepts names like 20230115_093000 in addition to the
	// concatenated 14-digit form
	AllowSeparator bool
}

// Timestamp derives the date and time of a file name with the builder's rules
func (b *Builder) Timestamp(name string) (date, time string) {
	if b.AllowSeparator {
		return extract(separatedTimestampPattern, name)
	}
	return ExtractTimestamp(name)
}

// NewBuilder creates a builder; an empty pattern means DefaultPattern
func NewBuilder(pattern string) *Builder {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Builder{Pattern: pattern}
}

// Build returns one record per matching file, sorted by file name. Files
// without a timestamp get empty date and time.
func (b *Builder) Build(root string) ([]models.VolumeRecord, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(ErrMissingRoot, "%s: %v", root, err)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrMissingRoot, "%s is not a directory", root)
	}

	matches, err := filepath.Glob(filepath.Join(root, b.Pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q", b.Pattern)
	}
	sort.Strings(matches)

	records := make([]models.VolumeRecord, 0, len(matches))
	untimed := 0
	for _, path := range matches {
		if fi, err := os.Stat(path); err != nil || fi.IsDir() {
			continue
		}
		name := filepath.Base(path)
		date, tm := b.Timestamp(name)
		if date == "" {
			untimed++
			log.WithField("file", name).Debug("No timestamp in file name")
		}
		records = append(records, models.VolumeRecord{Path: path, Name: name, Date: date, Time: tm})
	}

	log.WithFields(log.Fields{
		"root":         root,
		"files":        len(records),
		"no_timestamp": untimed,
	}).Info("Volume index built")
	return records, nil
}

// Table renders volume records as a volume table
func Table(records []models.VolumeRecord) *table.Table {
	t := table.New(models.VolumeColumns...)
	for _, r := range records {
		t.Append(r.Row())
	}
	return t
}
