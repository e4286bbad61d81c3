package readers

import (
	"fmt"
	"os"
	"path/filepath"
)

// TextFileReader reads plain text and markdown as-is. Markdown is the
// native output of the parsing layer, so it passes through unconverted.
type TextFileReader struct{}

func (r *TextFileReader) CanRead(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".txt" || ext == ".md"
}

func (r *TextFileReader) ReadText(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading text file: %w", err)
	}

	return string(buf), nil
}
