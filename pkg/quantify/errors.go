package quantify

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when an image plane and its label plane differ in shape
	ErrShapeMismatch = errors.New("image and label shapes differ")

	// ErrNoImages is returned when the images directory holds no case images
	ErrNoImages = errors.New("no case images found")

	// ErrMissingDir is returned when an input directory does not exist
	ErrMissingDir = errors.New("directory does not exist")

	// ErrUnknownPolicy is returned for an on-case-error value other than abort or skip
	ErrUnknownPolicy = errors.New("unknown case error policy")
)
