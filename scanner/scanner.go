// Package scanner builds and searches the embedding index: it walks folders,
// embeds every accepted image and stores the vectors through the database
// package, then ranks stored images against a query image.
package scanner

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"imagesim/database"
	"imagesim/logging"
	"imagesim/similarity"
	"imagesim/types"
)

// ScanAndStoreFolder embeds every image below options.FolderPath and stores
// the vectors. Per-file failures are counted, not returned.
func ScanAndStoreFolder(db *sql.DB, emb Embedder, options ScanOptions) (ScanSummary, error) {
	logger := loggerOrNop(options.Logger).With(zap.String("operation", "scanner.scan"))
	out := options.output()

	files, err := collectImageFiles(options.FolderPath)
	if err != nil {
		return ScanSummary{}, logging.WrapStorage("scanner.walk", options.FolderPath, err)
	}

	logger.Info("starting image scan",
		zap.String("folder", options.FolderPath),
		zap.String("source_prefix", options.SourcePrefix),
		zap.Bool("force_rewrite", options.ForceRewrite),
		zap.Int("files", len(files)),
		zap.Int("workers", options.workers()))
	PrintStartupInfo(out, len(files), options)

	resultsChan := make(chan ProcessImageResult, 100)
	tracker := NewProgressTracker(len(files), resultsChan, out, logger)

	startTime := time.Now()
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, options.workers())
	for _, path := range files {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(p string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			resultsChan <- processAndStoreImage(db, emb, p, options, logger)
		}(path)
	}
	wg.Wait()
	close(resultsChan)

	summary := tracker.Stop()
	summary.Elapsed = time.Since(startTime)
	logger.Info("scan completed",
		zap.Int("indexed", summary.Indexed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))
	PrintCompletionStats(out, summary)
	return summary, nil
}

// processAndStoreImage embeds a single image and stores it in the database
func processAndStoreImage(db *sql.DB, emb Embedder, path string, options ScanOptions, logger *zap.Logger) ProcessImageResult {
	result := ProcessImageResult{Path: path}

	if !options.ForceRewrite {
		if skipResult := checkAndSkipIfUnchanged(db, path, options.SourcePrefix, logger); skipResult != nil {
			return *skipResult
		}
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		result.Error = fmt.Errorf("cannot stat file %s: %w", path, err)
		return result
	}
	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = types.NewError(types.KindDecode, "scanner.read", err)
		return result
	}
	src := types.ImageSource{Path: path, Data: data}

	info, err := emb.Preprocessor().DescribeSource(src)
	if err != nil {
		result.Error = err
		return result
	}
	vec, err := emb.Embed(src)
	if err != nil {
		result.Error = err
		return result
	}

	capturedAt := ""
	if options.Metadata != nil {
		if capturedAt, err = options.Metadata.CaptureTime(path); err != nil {
			logger.Debug("metadata unavailable", zap.String("path", path), zap.Error(err))
		}
	}

	image := types.IndexedImage{
		Path:         path,
		SourcePrefix: options.SourcePrefix,
		Format:       string(info.Format),
		Width:        info.Width,
		Height:       info.Height,
		ModifiedAt:   fileInfo.ModTime().Format(time.RFC3339),
		CapturedAt:   capturedAt,
		Size:         fileInfo.Size(),
		Embedding:    vec,
	}
	if err := database.StoreEmbedding(db, image, options.ForceRewrite); err != nil {
		result.Error = err
	}
	return result
}

// FindSimilarImages ranks indexed images by cosine similarity to the query.
// Rows whose dimension differs from the query vector are skipped.
func FindSimilarImages(db *sql.DB, emb Embedder, options SearchOptions) ([]types.ImageMatch, error) {
	logger := loggerOrNop(options.Logger).With(zap.String("operation", "scanner.search"))
	logger.Debug("starting image search",
		zap.String("query", options.QueryPath),
		zap.Float64("threshold", options.Threshold),
		zap.String("source_prefix", options.SourcePrefix))

	query, err := emb.Embed(types.FromPath(options.QueryPath))
	if err != nil {
		return nil, fmt.Errorf("failed to embed query image: %w", err)
	}

	images, err := database.QueryEmbeddings(db, options.SourcePrefix)
	if err != nil {
		return nil, err
	}

	var matches []types.ImageMatch
	for _, img := range images {
		outcome, err := similarity.Score(query, img.Embedding)
		if err != nil {
			logger.Debug("skipping indexed image", zap.String("path", img.Path), zap.Error(err))
			continue
		}
		if outcome.RawScore < options.Threshold {
			continue
		}
		matches = append(matches, types.ImageMatch{
			Path:         img.Path,
			SourcePrefix: img.SourcePrefix,
			RawScore:     outcome.RawScore,
			Score:        outcome.Score,
			Level:        outcome.Level,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].RawScore > matches[j].RawScore
	})
	if options.Limit > 0 && len(matches) > options.Limit {
		matches = matches[:options.Limit]
	}

	logger.Info("search completed", zap.Int("candidates", len(images)), zap.Int("matches", len(matches)))
	return matches, nil
}
