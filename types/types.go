package types

import (
	"fmt"
	"os"
)

// ImageSource is an encoded image handed to the engine, either as a file path
// or as an in-memory buffer. The engine never keeps it past a single call.
type ImageSource struct {
	Path string
	Data []byte
	Name string
}

// FromPath returns a source backed by a file on disk.
func FromPath(path string) ImageSource {
	return ImageSource{Path: path}
}

// FromBytes returns a source backed by an in-memory buffer.
func FromBytes(name string, data []byte) ImageSource {
	return ImageSource{Name: name, Data: data}
}

// ID is the identity reported back in ranked results
func (s ImageSource) ID() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Path != "" {
		return s.Path
	}
	return "<memory>"
}

// Bytes returns the encoded image, reading the file for path sources.
func (s ImageSource) Bytes() ([]byte, error) {
	if s.Data != nil {
		return s.Data, nil
	}
	if s.Path == "" {
		return nil, fmt.Errorf("image source has neither path nor data")
	}
	return os.ReadFile(s.Path)
}

// Embedding is a fixed-length point in the extractor's feature space.
type Embedding []float64

// SimilarityResult is the outcome of comparing two images
type SimilarityResult struct {
	Status       Status  `json:"status"`
	Score        float64 `json:"similarity_score"`
	Level        Level   `json:"similarity_level"`
	RawScore     float64 `json:"raw_score"`
	ErrorMessage string  `json:"message,omitempty"`
	ErrorKind    Kind    `json:"error_kind,omitempty"`
}

// RankedMatch is one candidate of a batch comparison
type RankedMatch struct {
	Image     string  `json:"image"`
	RawScore  float64 `json:"raw_score"`
	Score     float64 `json:"similarity"`
	Level     Level   `json:"similarity_level"`
	Error     string  `json:"error,omitempty"`
	ErrorKind Kind    `json:"error_kind,omitempty"`
}

// Failed reports whether the candidate could not be scored.
func (m RankedMatch) Failed() bool {
	return m.Error != ""
}

// BatchResult wraps the ranked matches of a batch comparison.
type BatchResult struct {
	Status       Status        `json:"status"`
	Reference    string        `json:"reference"`
	Matches      []RankedMatch `json:"matches"`
	ErrorMessage string        `json:"message,omitempty"`
	ErrorKind    Kind          `json:"error_kind,omitempty"`
}

// IndexedImage holds an indexed image and its embedding
type IndexedImage struct {
	ID           int64
	Path         string
	SourcePrefix string
	Format       string
	Width        int
	Height       int
	ModifiedAt   string
	CapturedAt   string // EXIF capture time when available
	Size         int64
	Embedding    Embedding
}

// ImageMatch is an index search hit
type ImageMatch struct {
	Path         string  `json:"path"`
	SourcePrefix string  `json:"source_prefix,omitempty"`
	RawScore     float64 `json:"raw_score"`
	Score        float64 `json:"similarity_score"`
	Level        Level   `json:"similarity_level"`
}
