package scanner

import (
	"io"
	"time"

	"go.uber.org/zap"

	"imagesim/imageprocessor"
	"imagesim/types"
)

// Embedder produces embeddings for image files. *engine.Engine satisfies it.
type Embedder interface {
	Embed(src types.ImageSource) (types.Embedding, error)
	Preprocessor() *imageprocessor.Preprocessor
}

// ScanOptions defines the options for scanning
type ScanOptions struct {
	FolderPath   string
	SourcePrefix string
	ForceRewrite bool
	MaxWorkers   int            // Zero means one worker
	Output       io.Writer      // Progress lines; nil discards them
	Metadata     MetadataReader // Optional capture-time source
	Logger       *zap.Logger
}

// SearchOptions defines the options for an index search
type SearchOptions struct {
	QueryPath    string
	Threshold    float64 // Minimum raw cosine similarity
	SourcePrefix string
	Limit        int // Zero keeps every match
	Logger       *zap.Logger
}

// ScanSummary reports what a scan did
type ScanSummary struct {
	Total   int
	Indexed int
	Skipped int
	Failed  int
	Elapsed time.Duration
}

// ProcessImageResult holds the result of processing an image
type ProcessImageResult struct {
	Path    string
	Skipped bool
	Error   error
}

func (o ScanOptions) workers() int {
	if o.MaxWorkers < 1 {
		return 1
	}
	return o.MaxWorkers
}

func (o ScanOptions) output() io.Writer {
	if o.Output == nil {
		return io.Discard
	}
	return o.Output
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
