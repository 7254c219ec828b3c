package scanner

import (
	"github.com/barasher/go-exiftool"
)

// captureTags are tried in order when reading the capture time
var captureTags = []string{"DateTimeOriginal", "CreateDate", "DateCreated"}

// MetadataReader extracts descriptive metadata from image files.
type MetadataReader interface {
	CaptureTime(path string) (string, error)
	Close() error
}

// ExifReader reads capture times through a long-running exiftool process.
type ExifReader struct {
	et *exiftool.Exiftool
}

// NewExifReader starts exiftool. It fails when the exiftool binary is not installed.
func NewExifReader() (*ExifReader, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, err
	}
	return &ExifReader{et: et}, nil
}

// CaptureTime returns the first capture tag present, or "" when none is.
func (r *ExifReader) CaptureTime(path string) (string, error) {
	infos := r.et.ExtractMetadata(path)
	if len(infos) == 0 {
		return "", nil
	}
	if infos[0].Err != nil {
		return "", infos[0].Err
	}
	return firstTag(infos[0].Fields, captureTags), nil
}

// Close stops the exiftool process.
func (r *ExifReader) Close() error {
	return r.et.Close()
}

func firstTag(fields map[string]interface{}, tags []string) string {
	for _, tag := range tags {
		if v, ok := fields[tag].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
