package dicomindex

import "github.com/pkg/errors"

var (
	// ErrMissingRoot is returned when a scan root does not exist or is not a directory
	ErrMissingRoot = errors.New("scan root not found")

	// ErrNoRoots is returned when Build is called without any root
	ErrNoRoots = errors.New("no scan roots given")
)
