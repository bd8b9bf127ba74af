package layout

import (
	"image"
	"image/color"
	"image/draw"
)

// preprocessor converts page images into the CHW float32 tensors the layout
// model expects: letterboxed to a square input, ImageNet-normalized.
type preprocessor struct {
	targetSize int
	mean       [3]float32
	std        [3]float32
}

func newPreprocessor(targetSize int) *preprocessor {
	return &preprocessor{
		targetSize: targetSize,
		mean:       [3]float32{0.485, 0.456, 0.406},
		std:        [3]float32{0.229, 0.224, 0.225},
	}
}

// letterbox describes how a source image was fitted into the square model
// input, so detections can be mapped back to source pixels.
type letterbox struct {
	scale   float64 // source pixels -> model pixels
	offsetX int
	offsetY int
}

// fit scales the image to fit the square target preserving aspect ratio and
// pads the remainder with gray.
func (p *preprocessor) fit(img image.Image) (image.Image, letterbox) {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	scale := float64(p.targetSize) / float64(srcW)
	if srcH > srcW {
		scale = float64(p.targetSize) / float64(srcH)
	}
	fitW := int(float64(srcW) * scale)
	fitH := int(float64(srcH) * scale)

	resized := resizeNearest(img, fitW, fitH)

	padded := image.NewRGBA(image.Rect(0, 0, p.targetSize, p.targetSize))
	gray := color.RGBA{114, 114, 114, 255}
	draw.Draw(padded, padded.Bounds(), &image.Uniform{C: gray}, image.Point{}, draw.Src)

	offsetX := (p.targetSize - fitW) / 2
	offsetY := (p.targetSize - fitH) / 2
	draw.Draw(padded, image.Rect(offsetX, offsetY, offsetX+fitW, offsetY+fitH),
		resized, resized.Bounds().Min, draw.Src)

	return padded, letterbox{scale: scale, offsetX: offsetX, offsetY: offsetY}
}

// tensor converts a square RGBA image to a normalized CHW float32 slice with
// shape [1, 3, size, size].
func (p *preprocessor) tensor(img image.Image) ([]float32, []int64) {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	data := make([]float32, 3*height*width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			idx := y*width + x
			data[idx] = (float32(r>>8)/255.0 - p.mean[0]) / p.std[0]
			data[height*width+idx] = (float32(g>>8)/255.0 - p.mean[1]) / p.std[1]
			data[2*height*width+idx] = (float32(b>>8)/255.0 - p.mean[2]) / p.std[2]
		}
	}

	return data, []int64{1, 3, int64(height), int64(width)}
}

// unfit maps a model-space coordinate back to source-image pixels.
func (l letterbox) unfit(x, y float64) (float64, float64) {
	return (x - float64(l.offsetX)) / l.scale, (y - float64(l.offsetY)) / l.scale
}

// resizeNearest scales an image with nearest-neighbor sampling. Layout
// detection is robust to the resulting aliasing and this keeps the
// preprocessing dependency-free.
func resizeNearest(img image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			srcX := x * srcW / width
			srcY := y * srcH / height
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}
	return dst
}
