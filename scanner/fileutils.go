package scanner

import (
	"io/fs"
	"path/filepath"

	"imagesim/imageprocessor"
)

// collectImageFiles lists the whitelisted image files below root in walk order.
// Unreadable entries are skipped.
func collectImageFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() || !imageprocessor.IsImageFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
