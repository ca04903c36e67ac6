package export

import (
	"image"
	"image/draw"
)

// Premultiply converts a straight-alpha bitmap into its premultiplied
// variant. Opaque pixels pass through untouched; fully transparent pixels
// become premultiplied black so no color fringes at the matte edge; partial
// pixels scale each channel by alpha with rounding.
//
// The input must always be a fresh straight-alpha capture. Running this over
// an already premultiplied image darkens edge pixels a second time.
func Premultiply(src *image.NRGBA) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		srcRow := src.Pix[(y-bounds.Min.Y)*src.Stride:]
		dstRow := dst.Pix[(y-bounds.Min.Y)*dst.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			i := x * 4
			a := srcRow[i+3]
			switch a {
			case 255:
				copy(dstRow[i:i+4], srcRow[i:i+4])
			case 0:
				dstRow[i], dstRow[i+1], dstRow[i+2], dstRow[i+3] = 0, 0, 0, 0
			default:
				dstRow[i] = scale(srcRow[i], a)
				dstRow[i+1] = scale(srcRow[i+1], a)
				dstRow[i+2] = scale(srcRow[i+2], a)
				dstRow[i+3] = a
			}
		}
	}
	return dst
}

// scale computes round(c * a / 255) without floating point.
func scale(c, a uint8) uint8 {
	return uint8((uint32(c)*uint32(a) + 127) / 255)
}

// toNRGBA normalizes a decoded screenshot into straight-alpha NRGBA.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	bounds := img.Bounds()
	dst := image.NewNRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)
	return dst
}
