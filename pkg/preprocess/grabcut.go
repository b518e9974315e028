//go:build !opencv

package preprocess

import (
	"context"
	"errors"
	"image"
)

// ErrOpenCVUnavailable is returned when GrabCut is requested in a build
// without the opencv tag.
var ErrOpenCVUnavailable = errors.New("grabcut background removal requires building with -tags opencv")

// GrabCutRemover is unavailable in this build.
type GrabCutRemover struct{}

// NewGrabCutRemover always fails without the opencv build tag.
func NewGrabCutRemover(iterations, borderSize, maxConcurrent int) (*GrabCutRemover, error) {
	return nil, ErrOpenCVUnavailable
}

// RemoveBackground always fails without the opencv build tag.
func (*GrabCutRemover) RemoveBackground(context.Context, image.Image) (image.Image, error) {
	return nil, ErrOpenCVUnavailable
}
