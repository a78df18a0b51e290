package l1image

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Kind records the byte width of the samples an Image was built from.
type Kind uint8

const (
	KindUint8   Kind = 1
	KindUint16  Kind = 2
	KindFloat32 Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindFloat32:
		return "float32"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ErrDimension is returned when a sample buffer does not match the declared
// width and height.
var ErrDimension = errors.New("image dimensions do not match sample count")

// Image is a row-major grid of samples. Pixel p addresses x + y*Width.
// Samples are held as float32 on the 8-bit 0..255 scale regardless of Kind,
// so intensity thresholds mean the same thing for every source depth.
type Image struct {
	Width, Height int
	Kind          Kind
	Pix           []float32
}

// New returns a zeroed w×h image.
func New(w, h int, kind Kind) *Image {
	return &Image{Width: w, Height: h, Kind: kind, Pix: make([]float32, w*h)}
}

func checkDims(w, h, n int) error {
	if w <= 0 || h <= 0 || w*h != n {
		return fmt.Errorf("%w: %dx%d with %d samples", ErrDimension, w, h, n)
	}
	return nil
}

// FromGray8 copies 8-bit samples into a new Image.
func FromGray8(w, h int, pix []uint8) (*Image, error) {
	if err := checkDims(w, h, len(pix)); err != nil {
		return nil, err
	}
	im := New(w, h, KindUint8)
	for i, v := range pix {
		im.Pix[i] = float32(v)
	}
	return im, nil
}

// gray16Scale maps 0..65535 onto 0..255.
const gray16Scale = 1.0 / 257

// FromGray16 copies 16-bit samples into a new Image, rescaled to 0..255
// without dropping the extra precision.
func FromGray16(w, h int, pix []uint16) (*Image, error) {
	if err := checkDims(w, h, len(pix)); err != nil {
		return nil, err
	}
	im := New(w, h, KindUint16)
	for i, v := range pix {
		im.Pix[i] = float32(float64(v) * gray16Scale)
	}
	return im, nil
}

// FromFloat32 wraps a copy of pix.
func FromFloat32(w, h int, pix []float32) (*Image, error) {
	if err := checkDims(w, h, len(pix)); err != nil {
		return nil, err
	}
	im := New(w, h, KindFloat32)
	copy(im.Pix, pix)
	return im, nil
}

// FromImage converts a decoded image to a grayscale sample grid. 16-bit
// grayscale sources keep their precision on the 0..255 scale; everything
// else is reduced to 8 bits.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	switch s := src.(type) {
	case *image.Gray16:
		im := New(w, h, KindUint16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				im.Pix[x+y*w] = float32(float64(s.Gray16At(b.Min.X+x, b.Min.Y+y).Y) * gray16Scale)
			}
		}
		return im
	case *image.Gray:
		im := New(w, h, KindUint8)
		for y := 0; y < h; y++ {
			off := s.PixOffset(b.Min.X, b.Min.Y+y)
			row := s.Pix[off : off+w]
			for x, v := range row {
				im.Pix[x+y*w] = float32(v)
			}
		}
		return im
	}
	im := New(w, h, KindUint8)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			im.Pix[x+y*w] = float32(g.Y)
		}
	}
	return im
}

// Index returns the pixel offset of (x, y).
func (im *Image) Index(x, y int) int { return x + y*im.Width }

// XY splits a pixel offset into coordinates.
func (im *Image) XY(p int) (x, y int) { return p % im.Width, p / im.Width }

// In reports whether (x, y) lies inside the image.
func (im *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < im.Width && y < im.Height
}

// InF reports whether (x, y) lies at least margin pixels inside the image.
func (im *Image) InF(x, y, margin float64) bool {
	return x >= margin && y >= margin &&
		x <= float64(im.Width-1)-margin && y <= float64(im.Height-1)-margin
}

// At returns the sample at (x, y), clamping coordinates to the nearest edge.
func (im *Image) At(x, y int) float32 {
	x = min(max(x, 0), im.Width-1)
	y = min(max(y, 0), im.Height-1)
	return im.Pix[x+y*im.Width]
}

// Sample returns the bilinearly interpolated value at (x, y) with edge
// clamping.
func (im *Image) Sample(x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	fx, fy := x-x0, y-y0
	ix, iy := int(x0), int(y0)
	a := float64(im.At(ix, iy))
	b := float64(im.At(ix+1, iy))
	c := float64(im.At(ix, iy+1))
	d := float64(im.At(ix+1, iy+1))
	return (a*(1-fx)+b*fx)*(1-fy) + (c*(1-fx)+d*fx)*fy
}

// MinMax returns the smallest and largest samples.
func (im *Image) MinMax() (lo, hi float32) {
	if len(im.Pix) == 0 {
		return 0, 0
	}
	lo, hi = im.Pix[0], im.Pix[0]
	for _, v := range im.Pix[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
