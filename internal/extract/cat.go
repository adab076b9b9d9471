package extract

import (
	"fmt"

	"github.com/lu4p/cat"
)

// extractCat extracts text from ODT and RTF files via the cat library, which
// handles both container formats.
func extractCat(path string) (string, error) {
	text, err := cat.File(path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	return text, nil
}
