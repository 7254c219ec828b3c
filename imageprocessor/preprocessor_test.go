package imageprocessor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"imagesim/types"
)

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestPreprocessor(t *testing.T) *Preprocessor {
	t.Helper()
	p, err := NewPreprocessor(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to build preprocessor: %v", err)
	}
	return p
}

func TestPreprocessSolidColorBGR(t *testing.T) {
	p := newTestPreprocessor(t)
	data := encodePNG(t, solidImage(50, 30, color.NRGBA{R: 200, G: 100, B: 50, A: 255}))

	tensor, err := p.Preprocess(types.FromBytes("solid.png", data))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if tensor.Shape != (Shape{Height: 224, Width: 224, Channels: 3}) {
		t.Fatalf("unexpected shape %v", tensor.Shape)
	}
	if !tensor.Valid() {
		t.Fatal("tensor data does not match shape")
	}

	// channel 0 is blue after the BGR swap
	want := [3]float32{50 - 103.939, 100 - 116.779, 200 - 123.68}
	for _, pos := range [][2]int{{0, 0}, {112, 112}, {223, 223}} {
		for c := 0; c < 3; c++ {
			got := tensor.At(pos[0], pos[1], c)
			if math.Abs(float64(got-want[c])) > 1e-3 {
				t.Fatalf("pixel %v channel %d: expected %v, got %v", pos, c, want[c], got)
			}
		}
	}
}

func TestPreprocessRGBOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelOrder = OrderRGB
	cfg.Mean = [3]float32{0, 0, 0}
	cfg.Std = [3]float32{255, 255, 255}
	cfg.InputSize = 8
	p, err := NewPreprocessor(cfg)
	if err != nil {
		t.Fatalf("failed to build preprocessor: %v", err)
	}

	data := encodePNG(t, solidImage(16, 16, color.NRGBA{R: 255, G: 0, B: 51, A: 255}))
	tensor, err := p.Preprocess(types.FromBytes("red.png", data))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := tensor.At(4, 4, 0); math.Abs(float64(got-1)) > 1e-6 {
		t.Fatalf("expected red channel first, got %v", got)
	}
	if got := tensor.At(4, 4, 2); math.Abs(float64(got-0.2)) > 1e-6 {
		t.Fatalf("expected blue channel last, got %v", got)
	}
}

func TestPreprocessDropsAlphaWithoutDarkening(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mean = [3]float32{}
	cfg.InputSize = 4
	p, err := NewPreprocessor(cfg)
	if err != nil {
		t.Fatalf("failed to build preprocessor: %v", err)
	}

	data := encodePNG(t, solidImage(4, 4, color.NRGBA{R: 10, G: 20, B: 240, A: 0}))
	tensor, err := p.Preprocess(types.FromBytes("transparent.png", data))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := tensor.At(0, 0, 0); got != 240 {
		t.Fatalf("expected straight blue value 240, got %v", got)
	}
}

func TestPreprocessGrayscaleJPEG(t *testing.T) {
	p := newTestPreprocessor(t)
	gray := image.NewGray(image.Rect(0, 0, 300, 300))
	for i := range gray.Pix {
		gray.Pix[i] = 128
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}

	tensor, err := p.Preprocess(types.FromBytes("gray.jpg", buf.Bytes()))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	b, g, r := tensor.At(10, 10, 0)+103.939, tensor.At(10, 10, 1)+116.779, tensor.At(10, 10, 2)+123.68
	if math.Abs(float64(b-g)) > 1 || math.Abs(float64(g-r)) > 1 {
		t.Fatalf("expected equal channels for gray input, got %v %v %v", b, g, r)
	}
}

func TestPreprocessFromPath(t *testing.T) {
	p := newTestPreprocessor(t)
	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, encodePNG(t, solidImage(10, 10, color.White)), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	if _, err := p.Preprocess(types.FromPath(path)); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestPreprocessErrors(t *testing.T) {
	p := newTestPreprocessor(t)

	var gifBuf bytes.Buffer
	palette := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	if err := gif.Encode(&gifBuf, palette, nil); err != nil {
		t.Fatalf("failed to encode gif: %v", err)
	}

	tests := []struct {
		name string
		src  types.ImageSource
		want error
	}{
		{"garbage bytes", types.FromBytes("junk.png", []byte("definitely not an image")), types.ErrDecode},
		{"truncated png", types.FromBytes("cut.png", encodePNG(t, solidImage(8, 8, color.Black))[:40]), types.ErrDecode},
		{"missing file", types.FromPath(filepath.Join(t.TempDir(), "missing.png")), types.ErrDecode},
		{"format not accepted", types.FromBytes("anim.gif", gifBuf.Bytes()), types.ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Preprocess(tt.src)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDescribeSource(t *testing.T) {
	p := newTestPreprocessor(t)
	info, err := p.DescribeSource(types.FromBytes("a.png", encodePNG(t, solidImage(31, 17, color.Black))))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if info.Format != FormatPNG || info.Width != 31 || info.Height != 17 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Std[1] = 0
	if _, err := NewPreprocessor(cfg); err == nil {
		t.Fatal("expected error for zero std")
	}
	cfg = DefaultConfig()
	cfg.ChannelOrder = "hsv"
	if _, err := NewPreprocessor(cfg); err == nil {
		t.Fatal("expected error for unknown channel order")
	}
}

func TestFormats(t *testing.T) {
	if !IsImageFile("/a/B.JPEG") || IsImageFile("/a/b.gif") {
		t.Fatal("unexpected whitelist result")
	}
	if ParseFormat("jpg") != FormatJPEG || ParseFormat("PNG") != FormatPNG || ParseFormat("psd") != FormatUnknown {
		t.Fatal("unexpected ParseFormat result")
	}
}

func TestLanczosKernel(t *testing.T) {
	if lanczos3(0) != 1 {
		t.Fatal("kernel must be 1 at the origin")
	}
	for _, x := range []float64{1, 2, 3, 4} {
		if math.Abs(lanczos3(x)) > 1e-12 {
			t.Fatalf("kernel must vanish at integer %v, got %v", x, lanczos3(x))
		}
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h 8-bit
// gray image, with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth; colour type, compression, filter, interlace stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestPreprocessRejectsOversizedImages(t *testing.T) {
	p := newTestPreprocessor(t)
	bomb := types.FromBytes("bomb.png", pngHeader(65535, 65535))

	if _, err := p.Preprocess(bomb); !errors.Is(err, types.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format for 65535x65535 header, got %v", err)
	}
	if _, err := p.DescribeSource(bomb); !errors.Is(err, types.ErrUnsupportedFormat) {
		t.Fatalf("expected DescribeSource to reject the header, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.MaxPixels = 99
	small, err := NewPreprocessor(cfg)
	if err != nil {
		t.Fatalf("failed to build preprocessor: %v", err)
	}
	if _, err := small.Preprocess(types.FromBytes("a.png", encodePNG(t, solidImage(10, 10, color.Black)))); !errors.Is(err, types.ErrUnsupportedFormat) {
		t.Fatalf("expected 100 pixels to exceed a limit of 99, got %v", err)
	}
	if _, err := small.Preprocess(types.FromBytes("b.png", encodePNG(t, solidImage(9, 11, color.Black)))); err != nil {
		t.Fatalf("expected 99 pixels to pass, got %v", err)
	}
}

// genericImage hides the concrete type so toOpaqueRGB takes the generic path.
type genericImage struct{ image.Image }

func TestToOpaqueRGBFastPathsMatchGeneric(t *testing.T) {
	rect := image.Rect(0, 0, 13, 9)

	ycc := image.NewYCbCr(rect, image.YCbCrSubsampleRatio420)
	for i := range ycc.Y {
		ycc.Y[i] = uint8(i * 7)
	}
	for i := range ycc.Cb {
		ycc.Cb[i] = uint8(i * 13)
		ycc.Cr[i] = uint8(255 - i*11)
	}

	gray := image.NewGray(rect)
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i * 3)
	}

	nrgba := image.NewNRGBA(rect)
	for i := range nrgba.Pix {
		nrgba.Pix[i] = uint8(i * 5)
	}

	sub := image.Rect(2, 3, 11, 8)
	tests := []struct {
		name      string
		img       image.Image
		tolerance int
	}{
		{"ycbcr", ycc, 1},
		{"ycbcr sub-image", ycc.SubImage(sub), 1},
		{"gray", gray, 0},
		{"gray sub-image", gray.SubImage(sub), 0},
		{"nrgba", nrgba, 0},
		{"nrgba sub-image", nrgba.SubImage(sub), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fast := toOpaqueRGB(tt.img)
			slow := toOpaqueRGB(genericImage{tt.img})
			if fast.Bounds() != slow.Bounds() {
				t.Fatalf("bounds differ: %v vs %v", fast.Bounds(), slow.Bounds())
			}
			for i := range fast.Pix {
				d := int(fast.Pix[i]) - int(slow.Pix[i])
				if d < -tt.tolerance || d > tt.tolerance {
					t.Fatalf("byte %d: fast %d, generic %d", i, fast.Pix[i], slow.Pix[i])
				}
				if i%4 == 3 && fast.Pix[i] != 0xff {
					t.Fatalf("alpha at byte %d is %d", i, fast.Pix[i])
				}
			}
		})
	}
}
