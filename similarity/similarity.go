// Package similarity scores pairs of embedding vectors and classifies the result.
package similarity

import (
	"math"
	"sort"

	"imagesim/types"
)

// Outcome is a scored comparison of two embeddings.
type Outcome struct {
	RawScore float64
	Score    float64
	Level    types.Level
}

// Cosine returns dot(a,b) / (|a|*|b|). Vectors of different length fail with a
// dimension mismatch and are never truncated or padded. A zero-magnitude
// vector has no direction, so the similarity is undefined.
func Cosine(a, b types.Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, types.Errorf(types.KindDimensionMismatch, "similarity.cosine",
			"embedding lengths differ: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, types.Errorf(types.KindUndefinedSimilarity, "similarity.cosine",
			"cosine similarity is undefined for a zero-magnitude embedding")
	}

	raw := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push |raw| just past 1
	return math.Max(-1, math.Min(1, raw)), nil
}

// Score compares two embeddings. On undefined similarity it returns the zero
// outcome (score 0, VeryLow) along with the error.
func Score(a, b types.Embedding) (Outcome, error) {
	raw, err := Cosine(a, b)
	if err != nil {
		if types.KindOf(err) == types.KindUndefinedSimilarity {
			return FromRaw(0), err
		}
		return Outcome{}, err
	}
	return FromRaw(raw), nil
}

// FromRaw maps a cosine value onto the 0-100 scale and its level.
func FromRaw(raw float64) Outcome {
	score := Percent(raw)
	return Outcome{RawScore: raw, Score: score, Level: Classify(score)}
}

// Percent is round(raw*100, 2), clamped to [0, 100].
func Percent(raw float64) float64 {
	return math.Max(0, math.Min(100, Round2(raw*100)))
}

// Round2 rounds half away from zero to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Classify evaluates the level ladder on a 0-100 score, highest band first.
// Boundary values belong to the higher band.
func Classify(score float64) types.Level {
	switch {
	case score >= 80:
		return types.VeryHigh
	case score >= 60:
		return types.High
	case score >= 40:
		return types.Moderate
	case score >= 20:
		return types.Low
	default:
		return types.VeryLow
	}
}

// SortMatches orders matches by descending raw score with failed entries last.
// Equal entries keep their input order.
func SortMatches(matches []types.RankedMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Failed() != matches[j].Failed() {
			return !matches[i].Failed()
		}
		return matches[i].RawScore > matches[j].RawScore
	})
}
