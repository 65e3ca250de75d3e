package dcm

import (
	"fmt"
	"image"

	"github.com/suyashkumar/dicom/pkg/frame"
)

// NormalizedFrame decodes one pixel frame and rescales it to the full 8-bit
// range (min-max normalization), matching how exports are levelled for
// viewing. Greyscale sources stay greyscale; colour sources keep their
// channels, scaled by the global min/max across all channels.
func NormalizedFrame(fr *frame.Frame) (image.Image, error) {
	src, err := fr.GetImage()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch src.(type) {
	case *image.Gray, *image.Gray16:
		return normalizeGray(src), nil
	default:
		return normalizeColor(src), nil
	}
}

func normalizeGray(src image.Image) *image.Gray {
	bounds := src.Bounds()
	lo, hi := uint32(1<<16-1), uint32(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v, _, _, _ := src.At(x, y).RGBA()
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	span := hi - lo
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v, _, _, _ := src.At(x, y).RGBA()
			dst.Pix[(y-bounds.Min.Y)*dst.Stride+(x-bounds.Min.X)] = scale8(v, lo, span)
		}
	}
	return dst
}

func normalizeColor(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	lo, hi := uint32(1<<16-1), uint32(0)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			for _, v := range [3]uint32{r, g, b} {
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
		}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	span := hi - lo
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := src.At(x, y).RGBA()
			i := (y-bounds.Min.Y)*dst.Stride + (x-bounds.Min.X)*4
			dst.Pix[i] = scale8(r, lo, span)
			dst.Pix[i+1] = scale8(g, lo, span)
			dst.Pix[i+2] = scale8(b, lo, span)
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// scale8 maps v from [lo, lo+span] onto [0, 255]. A flat frame maps to 0.
func scale8(v, lo, span uint32) uint8 {
	if span == 0 {
		return 0
	}
	return uint8((uint64(v-lo)*255 + uint64(span)/2) / uint64(span))
}
