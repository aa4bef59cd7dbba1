// Package corrector provides batch exposure correction of image files.
package corrector

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"

	"github.com/book-expert/logger"

	"github.com/book-expert/exposure-service/internal/exposure"
)

var (
	// ErrInputPathRequired is returned when input path is not provided.
	ErrInputPathRequired = errors.New("input path is required")
	// ErrOutputPathRequired is returned when output path is not provided.
	ErrOutputPathRequired = errors.New("output path is required")
	// ErrNoImagesFound is returned when the input directory holds no supported images.
	ErrNoImagesFound = errors.New("no image files found")
)

// Options holds all configurable parameters for a Processor.
// This struct is used to initialize a new Processor with user-defined settings.
type Options struct {
	ProgressBarOutput io.Writer
	InputPath         string
	OutputPath        string
	Workers           int
	Settings          exposure.Settings
}

// Processor encapsulates the logic for processing a batch of image files.
type Processor struct {
	log    *logger.Logger
	config Options
}

// NewProcessor creates and initializes a new Processor with the given options and logger.
// It sets sensible defaults for any zero-value fields in the Options struct.
func NewProcessor(opts *Options, log *logger.Logger) *Processor {
	applyDefaultOptions(opts)

	return &Processor{
		config: *opts,
		log:    log,
	}
}

// applyDefaultOptions fills zero-value fields in Options with sensible defaults.
func applyDefaultOptions(opts *Options) {
	opts.Workers = defaultIntNonPositive(opts.Workers, runtime.NumCPU())
	opts.ProgressBarOutput = defaultWriterNil(opts.ProgressBarOutput, os.Stdout)

	if opts.Settings.Mode == "" {
		opts.Settings.Mode = exposure.ModeAuto
	}

	if opts.Settings.Format == "" {
		opts.Settings.Format = exposure.FormatPNG
	}

	if opts.Settings.Quality == "" {
		opts.Settings.Quality = exposure.QualityHigh
	}
}

func defaultIntNonPositive(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

func defaultWriterNil(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}

	return w
}

// Process is the main entry point for starting the batch correction job.
// It discovers images and hands them to the concurrent worker pool.
func (processor *Processor) Process(ctx context.Context) error {
	// Step 1: Validate the configuration before starting any work.
	err := processor.validateConfig()
	if err != nil {
		return err
	}

	// Step 2: Discover all supported images in the input directory.
	imagePaths, err := processor.discoverInputImages()
	if err != nil {
		return err
	}

	// Step 3: Make sure the output directory exists.
	err = setupOutputDirectory(processor.config.OutputPath)
	if err != nil {
		return err
	}

	// Step 4: Process each discovered image.
	processor.log.Info("Found %d image(s) to process.", len(imagePaths))

	return processor.processAllImages(ctx, imagePaths)
}

// discoverInputImages discovers input images and validates a non-empty result.
func (processor *Processor) discoverInputImages() ([]string, error) {
	imagePaths, discoveryErr := DiscoverImages(processor.config.InputPath)
	if discoveryErr != nil {
		return nil, discoveryErr
	}

	if len(imagePaths) == 0 {
		return nil, ErrNoImagesFound
	}

	return imagePaths, nil
}

// validateConfig checks if the essential configuration options have been provided.
func (processor *Processor) validateConfig() error {
	if processor.config.InputPath == "" {
		return ErrInputPathRequired
	}

	if processor.config.OutputPath == "" {
		return ErrOutputPathRequired
	}

	return processor.config.Settings.Validate()
}
