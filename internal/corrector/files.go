// Package corrector provides batch exposure correction of image files.
package corrector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/exposure-service/internal/exposure"
)

const (
	// defaultDirMode is the default permissions for created directories.
	defaultDirMode = 0o750

	correctedSuffix = "_corrected"
)

// supportedExtensions are the input image extensions the processor accepts,
// matching the formats the codec layer can decode.
var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// DiscoverImages finds all supported image files in a given directory.
// It performs a case-insensitive search and does not recurse into subdirectories.
func DiscoverImages(dirPath string) ([]string, error) {
	dirEntries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		return nil, fmt.Errorf(
			"could not read directory %s: %w",
			dirPath,
			readErr,
		)
	}

	var imagePaths []string

	for _, entry := range dirEntries {
		// Ensure we only process files, not directories.
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if supportedExtensions[ext] {
			imagePaths = append(imagePaths, filepath.Join(dirPath, entry.Name()))
		}
	}

	return imagePaths, nil
}

// setupOutputDirectory creates the output folder, including parents.
func setupOutputDirectory(outputPath string) error {
	mkdirErr := os.MkdirAll(outputPath, defaultDirMode)
	if mkdirErr != nil {
		return fmt.Errorf(
			"failed to create output directory %s: %w",
			outputPath,
			mkdirErr,
		)
	}

	return nil
}

// OutputFileName derives the output path for a corrected image. For an input
// named 'photo.jpg' corrected to PNG, it returns '<outputDir>/photo_corrected.png'.
func OutputFileName(outputDir, inputPath string, format exposure.Format) string {
	baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))

	return filepath.Join(
		outputDir,
		fmt.Sprintf("%s%s.%s", baseName, correctedSuffix, format.Extension()),
	)
}
