//go:build !cgo || !gbm

package buffer

import "errors"

// GBMAvailable reports whether this build includes the GBM allocator.
const GBMAvailable = false

// OpenGBM returns an error when built without cgo or the gbm tag.
// Callers should fall back to OpenDumb.
func OpenGBM(fd int) (Allocator, error) {
	return nil, errors.New("GBM allocator not available: built without cgo or -tags gbm")
}
