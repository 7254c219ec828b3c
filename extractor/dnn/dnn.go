// Package dnn runs the image encoder through OpenCV's dnn module.
package dnn

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"
	"runtime"

	"gocv.io/x/gocv"

	"imagesim/extractor"
	"imagesim/imageprocessor"
)

// Config points at the network files. Any format gocv.ReadNet understands
// works (ONNX, Caffe, TensorFlow, Darknet, ...).
type Config struct {
	ModelPath  string
	ConfigPath string
	OutputName string
	Dim        int
}

// NewLoader returns a loader that reads the network from disk.
func NewLoader(cfg Config) extractor.Loader {
	return func() (extractor.Model, error) {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			return nil, fmt.Errorf("model weights unavailable: %w", err)
		}
		if cfg.ConfigPath != "" {
			if _, err := os.Stat(cfg.ConfigPath); err != nil {
				return nil, fmt.Errorf("model config unavailable: %w", err)
			}
		}

		net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
		if net.Empty() {
			net.Close()
			return nil, fmt.Errorf("failed to construct network from %s", cfg.ModelPath)
		}
		return &model{net: net, dim: cfg.Dim, outputName: cfg.OutputName}, nil
	}
}

type model struct {
	net        gocv.Net
	dim        int
	outputName string
}

// Forward is not reentrant; extractor.Handle serializes calls.
func (m *model) Forward(t imageprocessor.Tensor) ([]float32, error) {
	if t.Channels != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", t.Channels)
	}

	buf := tensorBytes(t)
	hwc, err := gocv.NewMatFromBytes(t.Height, t.Width, gocv.MatTypeCV32FC3, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap tensor: %w", err)
	}
	defer hwc.Close()

	// values are already normalized, so the blob only reorders HWC into NCHW
	blob := gocv.BlobFromImage(hwc, 1.0, image.Pt(t.Width, t.Height), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward(m.outputName)
	defer out.Close()
	runtime.KeepAlive(buf)

	if out.Empty() {
		return nil, fmt.Errorf("network produced no output")
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}
	return flatten(data, out.Size(), m.dim)
}

func (m *model) Close() error {
	return m.net.Close()
}

// flatten copies the network output into a vector of length dim. A feature
// map still carrying spatial positions (1 x dim x H x W) is average pooled.
func flatten(data []float32, sizes []int, dim int) ([]float32, error) {
	if len(data) == dim {
		vec := make([]float32, dim)
		copy(vec, data)
		return vec, nil
	}
	if len(sizes) == 4 && sizes[0] == 1 && sizes[1] == dim {
		return extractor.GlobalAveragePool(data, dim, sizes[2]*sizes[3])
	}
	return nil, fmt.Errorf("network output %v cannot be reduced to %d values", sizes, dim)
}

func tensorBytes(t imageprocessor.Tensor) []byte {
	buf := make([]byte, 4*len(t.Data))
	for i, v := range t.Data {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}
