// Package geometry converts bounding boxes between raster pixel-space and
// PDF point-space. Pixel-space has a top-left origin; PDF point-space has a
// bottom-left origin, so vertical conversion inverts the axis.
package geometry

import (
	"fmt"

	"pdf-translator/internal/types"
)

// Box is an axis-aligned rectangle in PDF point-space, anchored at its
// bottom-left corner.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PixelRect is an axis-aligned rectangle in pixel-space, given by its
// top-left (X1, Y1) and bottom-right (X2, Y2) corners.
type PixelRect struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// ScaleFactor returns pixels-per-point for a page rendered at the given
// pixel width.
func ScaleFactor(renderedWidthPx, pageWidthPts float64) (float64, error) {
	if renderedWidthPx <= 0 || pageWidthPts <= 0 {
		return 0, types.NewValidationError(
			fmt.Sprintf("invalid page dimensions: rendered width %.2fpx, page width %.2fpt", renderedWidthPx, pageWidthPts), nil)
	}
	return renderedWidthPx / pageWidthPts, nil
}

// ToPoints converts a pixel-space rectangle to point-space. The vertical
// axis is inverted: y_points = pageHeight - y_pixels/scale - height_points.
func ToPoints(r PixelRect, scale, pageHeightPts float64) (Box, error) {
	if err := validateScale(scale, pageHeightPts); err != nil {
		return Box{}, err
	}
	w := (r.X2 - r.X1) / scale
	h := (r.Y2 - r.Y1) / scale
	if w <= 0 || h <= 0 {
		return Box{}, types.NewValidationError(
			fmt.Sprintf("invalid pixel rect: width %.2f, height %.2f", r.X2-r.X1, r.Y2-r.Y1), nil)
	}

	return Box{
		X:      r.X1 / scale,
		Y:      pageHeightPts - r.Y1/scale - h,
		Width:  w,
		Height: h,
	}, nil
}

// ToPixels converts a point-space box to pixel-space. Inverse of ToPoints.
func ToPixels(b Box, scale, pageHeightPts float64) (PixelRect, error) {
	if err := validateScale(scale, pageHeightPts); err != nil {
		return PixelRect{}, err
	}
	if b.Width <= 0 || b.Height <= 0 {
		return PixelRect{}, types.NewValidationError(
			fmt.Sprintf("invalid box: width %.2f, height %.2f", b.Width, b.Height), nil)
	}

	x1 := b.X * scale
	y1 := (pageHeightPts - b.Y - b.Height) * scale
	return PixelRect{
		X1: x1,
		Y1: y1,
		X2: x1 + b.Width*scale,
		Y2: y1 + b.Height*scale,
	}, nil
}

// ClampToPage clips the box to page bounds, preserving the invariant
// 0 <= x,y and x+width <= pageWidth, y+height <= pageHeight.
func ClampToPage(b Box, pageWidthPts, pageHeightPts float64) Box {
	if b.X < 0 {
		b.Width += b.X
		b.X = 0
	}
	if b.Y < 0 {
		b.Height += b.Y
		b.Y = 0
	}
	if b.X+b.Width > pageWidthPts {
		b.Width = pageWidthPts - b.X
	}
	if b.Y+b.Height > pageHeightPts {
		b.Height = pageHeightPts - b.Y
	}
	return b
}

func validateScale(scale, pageHeightPts float64) error {
	if scale <= 0 {
		return types.NewValidationError(fmt.Sprintf("invalid scale factor %.4f", scale), nil)
	}
	if pageHeightPts <= 0 {
		return types.NewValidationError(fmt.Sprintf("invalid page height %.2fpt", pageHeightPts), nil)
	}
	return nil
}
