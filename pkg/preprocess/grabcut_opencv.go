//go:build opencv

package preprocess

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// GrabCutRemover segments the foreground with OpenCV GrabCut, seeded with a
// rectangle inset from the image border.
type GrabCutRemover struct {
	Iterations int
	BorderSize int
	sem        chan struct{}
}

// NewGrabCutRemover returns a remover running at most maxConcurrent
// segmentations at a time.
func NewGrabCutRemover(iterations, borderSize, maxConcurrent int) (*GrabCutRemover, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &GrabCutRemover{
		Iterations: iterations,
		BorderSize: borderSize,
		sem:        make(chan struct{}, maxConcurrent),
	}, nil
}

// RemoveBackground keeps pixels GrabCut labels as definite or probable
// foreground and makes the rest transparent.
func (g *GrabCutRemover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	select {
	case g.sem <- struct{}{}:
		defer func() { <-g.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()
	// GrabCut expects BGR.
	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(src, &bgr, gocv.ColorRGBToBGR)

	w, h := bgr.Cols(), bgr.Rows()
	border := g.BorderSize
	if border*2 >= w || border*2 >= h {
		border = 0
	}
	rect := image.Rect(border, border, w-border, h-border)

	mask := gocv.NewMat()
	defer mask.Close()
	bgdModel := gocv.NewMat()
	defer bgdModel.Close()
	fgdModel := gocv.NewMat()
	defer fgdModel.Close()

	iterations := g.Iterations
	if iterations < 1 {
		iterations = 5
	}
	gocv.GrabCut(bgr, &mask, rect, &bgdModel, &fgdModel, iterations, gocv.GCInitWithRect)
	if mask.Empty() {
		return nil, fmt.Errorf("grabcut produced an empty mask")
	}

	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			// 1 = foreground, 3 = probable foreground.
			if v := mask.GetUCharAt(y, x); v != 1 && v != 3 {
				c.A = 0
			}
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}
