// Package extract provides plain-text extraction from document files. It is
// the file-reader collaborator consumed by file ingestion jobs.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document files by extension.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content. Plain text
// formats (.txt, .md, .rst) are returned as-is after UTF-8 validation; PDF,
// ODT, RTF, DOCX, and XLSX are decoded from their binary formats. Unknown
// extensions are treated as plain text.
func (e *Extractor) Extract(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return extractPDF(content)
	case ".odt", ".rtf":
		return extractCat(path)
	case ".xlsx":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return extractExcel(content)
	case ".docx":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return extractDOCX(content)
	default:
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		return extractPlain(content)
	}
}

// Supported reports whether the extension (with leading dot) maps to a
// dedicated extractor. Unknown extensions still extract as plain text.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".odt", ".rtf", ".xlsx", ".docx", ".txt", ".md", ".rst":
		return true
	}
	return false
}
