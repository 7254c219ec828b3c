// Package extractor owns the pre-trained image encoder and turns
// preprocessed tensors into embedding vectors.
//
// The model is loaded at most once per Extractor. Inference through a Handle
// is serialized with a mutex: OpenCV's dnn.Net keeps per-forward state on the
// network object and is not safe to run from several goroutines at once.
// Callers may share one Handle freely; concurrent Extract calls queue.
package extractor

import (
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"imagesim/imageprocessor"
	"imagesim/types"
)

// Model is a loaded image encoder.
type Model interface {
	// Forward runs inference on a single tensor and returns the raw output vector.
	Forward(t imageprocessor.Tensor) ([]float32, error)
	Close() error
}

// Loader constructs a Model. It is called at most once per Extractor.
type Loader func() (Model, error)

// Extractor manages the lifecycle of one model instance.
type Extractor struct {
	load   Loader
	input  imageprocessor.Shape
	dim    int
	logger *zap.Logger

	mu        sync.Mutex
	attempted bool
	handle    *Handle
	err       error
}

// New prepares an Extractor; nothing is loaded until LoadOnce.
func New(load Loader, input imageprocessor.Shape, dim int, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		load:   load,
		input:  input,
		dim:    dim,
		logger: logger.Named("extractor"),
	}
}

// LoadOnce loads the model on first use and returns the same handle afterwards.
// A failed load is remembered and reported on every call; it is never retried.
func (e *Extractor) LoadOnce() (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.attempted {
		return e.handle, e.err
	}
	e.attempted = true

	e.logger.Info("loading model", zap.Stringer("input", e.input), zap.Int("dim", e.dim))
	if e.dim <= 0 || e.input.Size() <= 0 {
		e.err = types.Errorf(types.KindModelLoad, "extractor.load",
			"invalid model contract: input %v, dim %d", e.input, e.dim)
		e.logger.Error("model load failed", zap.Error(e.err))
		return nil, e.err
	}
	model, err := e.load()
	if err != nil {
		e.err = types.NewError(types.KindModelLoad, "extractor.load", err)
		e.logger.Error("model load failed", zap.Error(e.err))
		return nil, e.err
	}
	e.handle = &Handle{model: model, input: e.input, dim: e.dim}
	e.logger.Info("model loaded")
	return e.handle, nil
}

// Loaded reports whether the model has been loaded successfully.
func (e *Extractor) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle != nil
}

// Close releases the model at teardown. Handles stop accepting work afterwards.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return nil
	}
	return e.handle.close()
}

// Handle is a loaded, read-only model.
type Handle struct {
	model  Model
	input  imageprocessor.Shape
	dim    int
	mu     sync.Mutex
	closed bool
}

// Dim is the embedding length D.
func (h *Handle) Dim() int {
	return h.dim
}

// InputShape is the tensor shape the model accepts.
func (h *Handle) InputShape() imageprocessor.Shape {
	return h.input
}

// Extract runs a forward pass and returns an embedding of length Dim.
func (h *Handle) Extract(t imageprocessor.Tensor) (types.Embedding, error) {
	if t.Shape != h.input || !t.Valid() {
		return nil, types.Errorf(types.KindInference, "extractor.extract",
			"tensor shape %v (%d values) does not match model input %v", t.Shape, len(t.Data), h.input)
	}

	out, err := h.forward(t)
	if err != nil {
		return nil, types.NewError(types.KindInference, "extractor.extract", err)
	}
	if len(out) != h.dim {
		return nil, types.Errorf(types.KindInference, "extractor.extract",
			"model produced %d values, expected %d", len(out), h.dim)
	}

	embedding := make(types.Embedding, len(out))
	for i, v := range out {
		embedding[i] = float64(v)
	}
	return embedding, nil
}

func (h *Handle) forward(t imageprocessor.Tensor) (out []float32, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("model is closed")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during inference: %v\n%s", r, debug.Stack())
			out = nil
		}
	}()
	return h.model.Forward(t)
}

func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.model.Close()
}

// GlobalAveragePool averages an NCHW feature map (N=1) over its spatial
// positions, producing one value per channel.
func GlobalAveragePool(data []float32, channels, spatial int) ([]float32, error) {
	if channels <= 0 || spatial <= 0 || len(data) != channels*spatial {
		return nil, fmt.Errorf("cannot pool %d values as %d channels x %d positions", len(data), channels, spatial)
	}
	pooled := make([]float32, channels)
	for c := 0; c < channels; c++ {
		var sum float64
		for _, v := range data[c*spatial : (c+1)*spatial] {
			sum += float64(v)
		}
		pooled[c] = float32(sum / float64(spatial))
	}
	return pooled, nil
}
