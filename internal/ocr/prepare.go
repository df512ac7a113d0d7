package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

// PrepareOptions controls how a subtitle bitmap becomes an OCR input.
type PrepareOptions struct {
	// pixels at or above both thresholds (0-1) count as text
	AlphaThreshold float64
	LumaThreshold  float64
	// white margin kept around the text
	Border int
}

var DefaultPrepareOptions = PrepareOptions{
	AlphaThreshold: 100.0 / 255,
	LumaThreshold:  100.0 / 255,
	Border:         5,
}

// Prepare renders the opaque light pixels of img as black on a white
// background, cropped to the text plus a border. It returns nil when no
// pixel qualifies.
func Prepare(img image.Image, opts PrepareOptions) *image.Gray {
	b := img.Bounds()
	text := image.Rectangle{}
	mask := make([]bool, b.Dx()*b.Dy())

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if float64(c.A)/255 < opts.AlphaThreshold {
				continue
			}
			if Luminance(c.R, c.G, c.B) < opts.LumaThreshold {
				continue
			}
			mask[(y-b.Min.Y)*b.Dx()+(x-b.Min.X)] = true
			text = text.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	if text.Empty() {
		return nil
	}

	border := max(opts.Border, 0)
	out := image.NewGray(image.Rect(0, 0, text.Dx()+2*border, text.Dy()+2*border))
	for i := range out.Pix {
		out.Pix[i] = 0xff
	}
	for y := text.Min.Y; y < text.Max.Y; y++ {
		for x := text.Min.X; x < text.Max.X; x++ {
			if mask[(y-b.Min.Y)*b.Dx()+(x-b.Min.X)] {
				out.SetGray(x-text.Min.X+border, y-text.Min.Y+border, color.Gray{})
			}
		}
	}
	return out
}

// Luminance is the relative luminance (0-1) of an sRGB color.
func Luminance(r, g, b uint8) float64 {
	return 0.2126*srgbToLinear(r) + 0.7152*srgbToLinear(g) + 0.0722*srgbToLinear(b)
}

func srgbToLinear(c uint8) float64 {
	v := float64(c) / 255
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// EncodePNG prepares img and encodes it. ok is false when the bitmap holds
// no text pixels.
func EncodePNG(img image.Image, opts PrepareOptions) (data []byte, ok bool, err error) {
	gray := Prepare(img, opts)
	if gray == nil {
		return nil, false, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}
