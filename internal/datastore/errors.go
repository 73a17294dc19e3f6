package datastore

import (
	"fmt"

	"github.com/racephotos/bibfinder/internal/errors"
)

// Sentinel errors for repository operations.
var (
	// ErrPhotoNotFound indicates the requested photo does not exist.
	ErrPhotoNotFound = errors.NewStd("photo not found")

	// ErrInvalidTransition indicates the photo was not in any of the states
	// the transition required.
	ErrInvalidTransition = errors.NewStd("invalid photo state transition")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.NewStd("invalid input")
)

// dbError wraps a GORM failure as a persistence error.
func dbError(op string, err error) error {
	return errors.New(fmt.Errorf("%s: %w", op, err)).
		Component("datastore").
		Category(errors.CategoryPersistence).
		Context("operation", op).
		Build()
}
