package scanner

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"imagesim/database"
)

// checkAndSkipIfUnchanged checks if an image can be skipped because it hasn't changed
func checkAndSkipIfUnchanged(db *sql.DB, path string, sourcePrefix string, logger *zap.Logger) *ProcessImageResult {
	exists, storedModTime, err := database.CheckImageExists(db, path, sourcePrefix)
	if err != nil {
		return &ProcessImageResult{Path: path, Error: fmt.Errorf("database error for %s: %w", path, err)}
	}
	if !exists {
		return nil
	}

	fileInfo, err := os.Stat(path)
	if err != nil {
		return &ProcessImageResult{Path: path, Error: fmt.Errorf("cannot stat file %s: %w", path, err)}
	}

	// unparsable stored times are treated as stale and re-indexed
	storedTime, err := time.Parse(time.RFC3339, storedModTime)
	if err != nil {
		logger.Debug("stored modification time unreadable, re-indexing",
			zap.String("path", path), zap.String("stored", storedModTime))
		return nil
	}

	if !fileInfo.ModTime().Truncate(time.Second).After(storedTime) {
		logger.Debug("skipping unchanged image", zap.String("path", path))
		return &ProcessImageResult{Path: path, Skipped: true}
	}
	return nil
}
