package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"imagesim/extractor"
	"imagesim/logging"
	"imagesim/similarity"
	"imagesim/types"
)

// BatchCompare ranks candidates by similarity to reference. The reference is
// embedded once. A candidate that fails is kept in the result with its error
// and ranked after every scored candidate; it never aborts the batch.
func (e *Engine) BatchCompare(reference types.ImageSource, candidates []types.ImageSource) types.BatchResult {
	opLogger := logging.WithOperation(e.logger, "engine.batch_compare", uuid.NewString())
	opLogger.Info("comparing batch", zap.String("reference", reference.ID()), zap.Int("candidates", len(candidates)))

	result := types.BatchResult{Reference: reference.ID()}

	handle, err := e.extractor.LoadOnce()
	if err != nil {
		return batchError(opLogger, result, err)
	}
	ref, err := e.embed(handle, reference)
	if err != nil {
		return batchError(opLogger, result, err)
	}

	result.Status = types.StatusSuccess
	result.Matches = e.rank(handle, ref, candidates, opLogger)
	return result
}

func (e *Engine) rank(handle *extractor.Handle, ref types.Embedding, candidates []types.ImageSource, logger *zap.Logger) []types.RankedMatch {
	matches := make([]types.RankedMatch, 0, len(candidates))
	failed := 0
	for _, candidate := range candidates {
		match := e.scoreCandidate(handle, ref, candidate)
		if match.Failed() {
			failed++
			logger.Warn("error comparing candidate", zap.String("image", match.Image), zap.String("error", match.Error))
		}
		matches = append(matches, match)
	}
	similarity.SortMatches(matches)

	logger.Info("batch compared", zap.Int("scored", len(matches)-failed), zap.Int("failed", failed))
	return matches
}

func (e *Engine) scoreCandidate(handle *extractor.Handle, ref types.Embedding, candidate types.ImageSource) types.RankedMatch {
	match := types.RankedMatch{Image: candidate.ID(), Level: types.VeryLow}

	vec, err := e.embed(handle, candidate)
	if err != nil {
		return failedMatch(match, err)
	}
	outcome, err := similarity.Score(ref, vec)
	if err != nil && types.KindOf(err) != types.KindUndefinedSimilarity {
		return failedMatch(match, err)
	}

	match.RawScore = outcome.RawScore
	match.Score = outcome.Score
	match.Level = outcome.Level
	return match
}

func failedMatch(match types.RankedMatch, err error) types.RankedMatch {
	match.RawScore = 0
	match.Score = 0
	match.Error = errorMessage(err)
	match.ErrorKind = types.KindOf(err)
	return match
}

func batchError(logger *zap.Logger, result types.BatchResult, err error) types.BatchResult {
	kind := types.KindOf(err)
	logger.Error("error embedding reference", zap.Error(err), zap.Stringer("kind", kind))
	result.Status = types.StatusError
	result.ErrorMessage = errorMessage(err)
	result.ErrorKind = kind
	return result
}
