package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagesim/types"
)

// Channel orders a model may expect
const (
	OrderRGB = "rgb"
	OrderBGR = "bgr"
)

// Config describes the input contract of the feature extractor.
type Config struct {
	InputSize       int
	ChannelOrder    string
	Mean            [3]float32
	Std             [3]float32
	AcceptedFormats []FormatType
	// MaxPixels bounds width*height before pixels are decoded
	MaxPixels int64
}

// DefaultMaxPixels is the decompression-bomb threshold: twice 89,478,485 pixels.
const DefaultMaxPixels = 2 * 89478485

// DefaultConfig matches ImageNet-trained ResNet50 weights: 224x224 BGR with the
// per-channel ImageNet mean subtracted and no scaling.
func DefaultConfig() Config {
	return Config{
		InputSize:       224,
		ChannelOrder:    OrderBGR,
		Mean:            [3]float32{103.939, 116.779, 123.68},
		Std:             [3]float32{1, 1, 1},
		AcceptedFormats: []FormatType{FormatPNG, FormatJPEG},
		MaxPixels:       DefaultMaxPixels,
	}
}

// Validate checks that the configuration can produce tensors
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	if c.ChannelOrder != OrderRGB && c.ChannelOrder != OrderBGR {
		return fmt.Errorf("unknown channel order %q", c.ChannelOrder)
	}
	for i, s := range c.Std {
		if s == 0 {
			return fmt.Errorf("channel %d std must be non-zero", i)
		}
	}
	if len(c.AcceptedFormats) == 0 {
		return errors.New("at least one accepted format is required")
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("max pixels must be positive, got %d", c.MaxPixels)
	}
	return nil
}

// SourceInfo is what can be learned about an image without decoding pixels
type SourceInfo struct {
	Format FormatType
	Width  int
	Height int
}

// Preprocessor turns encoded images into model-ready tensors. It holds only
// immutable configuration and is safe for concurrent use.
type Preprocessor struct {
	cfg      Config
	accepted map[FormatType]bool
}

// NewPreprocessor validates cfg and builds a Preprocessor.
func NewPreprocessor(cfg Config) (*Preprocessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	accepted := make(map[FormatType]bool, len(cfg.AcceptedFormats))
	for _, f := range cfg.AcceptedFormats {
		accepted[f] = true
	}
	return &Preprocessor{cfg: cfg, accepted: accepted}, nil
}

// Shape is the tensor shape every Preprocess call produces.
func (p *Preprocessor) Shape() Shape {
	return Shape{Height: p.cfg.InputSize, Width: p.cfg.InputSize, Channels: 3}
}

// DescribeSource reads the image header and checks the format is accepted.
func (p *Preprocessor) DescribeSource(src types.ImageSource) (SourceInfo, error) {
	data, err := src.Bytes()
	if err != nil {
		return SourceInfo{}, types.NewError(types.KindDecode, "imageprocessor.read", err)
	}
	return p.describe(src, data)
}

func (p *Preprocessor) describe(src types.ImageSource, data []byte) (SourceInfo, error) {
	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return SourceInfo{}, types.Errorf(types.KindDecode, "imageprocessor.decode",
			"%s is not a valid image: %v", src.ID(), err)
	}
	info := SourceInfo{Format: FormatType(name), Width: cfg.Width, Height: cfg.Height}
	if !p.accepted[info.Format] {
		return info, types.Errorf(types.KindUnsupportedFormat, "imageprocessor.decode",
			"%s: format %s is not accepted (want %s)", src.ID(), name, p.acceptedList())
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.cfg.MaxPixels {
		return info, types.Errorf(types.KindUnsupportedFormat, "imageprocessor.decode",
			"%s: %dx%d is %d pixels, above the limit of %d", src.ID(), cfg.Width, cfg.Height, pixels, p.cfg.MaxPixels)
	}
	return info, nil
}

// Preprocess decodes src, coerces it to RGB, resizes it to the model input
// with a Lanczos filter and applies the channel normalization.
func (p *Preprocessor) Preprocess(src types.ImageSource) (Tensor, error) {
	data, err := src.Bytes()
	if err != nil {
		return Tensor{}, types.NewError(types.KindDecode, "imageprocessor.read", err)
	}
	if _, err := p.describe(src, data); err != nil {
		return Tensor{}, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Tensor{}, types.Errorf(types.KindDecode, "imageprocessor.decode",
			"failed to decode %s: %v", src.ID(), err)
	}
	if img.Bounds().Empty() {
		return Tensor{}, types.Errorf(types.KindUnsupportedFormat, "imageprocessor.decode",
			"%s has no pixels", src.ID())
	}

	rgb := toOpaqueRGB(img)
	size := p.cfg.InputSize
	resized := image.NewNRGBA(image.Rect(0, 0, size, size))
	Lanczos3.Scale(resized, resized.Bounds(), rgb, rgb.Bounds(), draw.Src, nil)

	return p.normalize(resized), nil
}

// toOpaqueRGB drops the alpha channel, keeping the straight colour values.
func toOpaqueRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch src := img.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := out.PixOffset(0, y-b.Min.Y)
			for x := b.Min.X; x < b.Max.X; x++ {
				yi, ci := src.YOffset(x, y), src.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				out.Pix[off], out.Pix[off+1], out.Pix[off+2], out.Pix[off+3] = r, g, bl, 0xff
				off += 4
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := out.PixOffset(0, y-b.Min.Y)
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				v := row[x]
				out.Pix[off], out.Pix[off+1], out.Pix[off+2], out.Pix[off+3] = v, v, v, 0xff
				off += 4
			}
		}
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			dst := out.Pix[out.PixOffset(0, y-b.Min.Y):][:4*b.Dx()]
			copy(dst, src.Pix[src.PixOffset(b.Min.X, y):])
			for i := 3; i < len(dst); i += 4 {
				dst[i] = 0xff
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				off := out.PixOffset(x-b.Min.X, y-b.Min.Y)
				out.Pix[off] = c.R
				out.Pix[off+1] = c.G
				out.Pix[off+2] = c.B
				out.Pix[off+3] = 0xff
			}
		}
	}
	return out
}

func (p *Preprocessor) normalize(img *image.NRGBA) Tensor {
	t := NewTensor(p.Shape())
	order := [3]int{0, 1, 2}
	if p.cfg.ChannelOrder == OrderBGR {
		order = [3]int{2, 1, 0}
	}
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			off := img.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(img.Pix[off+order[c]])
				t.Set(y, x, c, (v-p.cfg.Mean[c])/p.cfg.Std[c])
			}
		}
	}
	return t
}

func (p *Preprocessor) acceptedList() string {
	names := make([]string, 0, len(p.cfg.AcceptedFormats))
	for _, f := range p.cfg.AcceptedFormats {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}
