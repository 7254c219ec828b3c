// Package engine is the entry point for image similarity: it composes the
// preprocessor, the feature extractor and the scorer into Compare and
// BatchCompare.
//
// Compare and BatchCompare never return errors. Every failure is reported
// inside the result with a message and an error kind. Each call runs its
// stages sequentially in the calling goroutine and may block for the length
// of model inference. Calls may come from many goroutines; inference is
// serialized inside the extractor.
package engine

import (
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"imagesim/extractor"
	"imagesim/imageprocessor"
	"imagesim/logging"
	"imagesim/similarity"
	"imagesim/types"
)

// Engine compares images by their embeddings
type Engine struct {
	extractor    *extractor.Extractor
	preprocessor *imageprocessor.Preprocessor
	cache        *embeddingCache
	logger       *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine) error

// WithLogger sets the logger used for per-call operation logs.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		e.logger = logger
		return nil
	}
}

// WithCacheSize memoizes up to size embeddings keyed by the image content.
// Zero disables the cache.
func WithCacheSize(size int) Option {
	return func(e *Engine) error {
		if size < 0 {
			return errors.New("cache size cannot be negative")
		}
		if size == 0 {
			e.cache = nil
			return nil
		}
		cache, err := newEmbeddingCache(size)
		if err != nil {
			return err
		}
		e.cache = cache
		return nil
	}
}

// New builds an Engine around an extractor owned by the caller. The model is
// loaded lazily on the first comparison unless the caller loads it first.
func New(ext *extractor.Extractor, pre *imageprocessor.Preprocessor, opts ...Option) (*Engine, error) {
	if ext == nil {
		return nil, errors.New("extractor is required")
	}
	if pre == nil {
		return nil, errors.New("preprocessor is required")
	}
	e := &Engine{
		extractor:    ext,
		preprocessor: pre,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.Named("engine")
	return e, nil
}

// Compare scores the similarity of two images.
func (e *Engine) Compare(img1, img2 types.ImageSource) types.SimilarityResult {
	opLogger := logging.WithOperation(e.logger, "engine.compare", uuid.NewString())
	opLogger.Info("computing similarity", zap.String("image1", img1.ID()), zap.String("image2", img2.ID()))

	handle, err := e.extractor.LoadOnce()
	if err != nil {
		return errorResult(opLogger, err)
	}
	first, err := e.embed(handle, img1)
	if err != nil {
		return errorResult(opLogger, err)
	}
	second, err := e.embed(handle, img2)
	if err != nil {
		return errorResult(opLogger, err)
	}

	outcome, err := similarity.Score(first, second)
	if err != nil {
		if types.KindOf(err) != types.KindUndefinedSimilarity {
			return errorResult(opLogger, err)
		}
		opLogger.Warn("similarity undefined, scoring as zero", zap.Error(err))
	}

	opLogger.Info("similarity computed",
		zap.Float64("score", outcome.Score),
		zap.Float64("raw_score", outcome.RawScore),
		zap.Stringer("level", outcome.Level))
	return types.SimilarityResult{
		Status:   types.StatusSuccess,
		Score:    outcome.Score,
		Level:    outcome.Level,
		RawScore: outcome.RawScore,
	}
}

// Embed preprocesses src and extracts its embedding, returning typed errors.
func (e *Engine) Embed(src types.ImageSource) (types.Embedding, error) {
	handle, err := e.extractor.LoadOnce()
	if err != nil {
		return nil, err
	}
	return e.embed(handle, src)
}

// Preprocessor exposes the image contract for callers that inspect sources.
func (e *Engine) Preprocessor() *imageprocessor.Preprocessor {
	return e.preprocessor
}

// Close tears down the model. The engine must not be used afterwards.
func (e *Engine) Close() error {
	return e.extractor.Close()
}

func (e *Engine) embed(handle *extractor.Handle, src types.ImageSource) (types.Embedding, error) {
	if e.cache == nil {
		return e.extract(handle, src)
	}

	data, err := src.Bytes()
	if err != nil {
		return nil, types.NewError(types.KindDecode, "imageprocessor.read", err)
	}
	key := contentKey(data)
	if vec, ok := e.cache.get(key); ok {
		return vec, nil
	}
	// hand the bytes on so path sources are not read twice
	vec, err := e.extract(handle, types.ImageSource{Path: src.Path, Name: src.Name, Data: data})
	if err != nil {
		return nil, err
	}
	e.cache.add(key, vec)
	return vec, nil
}

func (e *Engine) extract(handle *extractor.Handle, src types.ImageSource) (types.Embedding, error) {
	tensor, err := e.preprocessor.Preprocess(src)
	if err != nil {
		return nil, err
	}
	return handle.Extract(tensor)
}

func errorResult(logger *zap.Logger, err error) types.SimilarityResult {
	kind := types.KindOf(err)
	logger.Error("error computing similarity", zap.Error(err), zap.Stringer("kind", kind))
	return types.SimilarityResult{
		Status:       types.StatusError,
		Score:        0,
		Level:        types.VeryLow,
		ErrorMessage: errorMessage(err),
		ErrorKind:    kind,
	}
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}
