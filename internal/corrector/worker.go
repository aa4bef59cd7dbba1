// Package corrector provides batch exposure correction of image files.
package corrector

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/book-expert/exposure-service/internal/exposure"
	"github.com/book-expert/exposure-service/internal/imgcodec"
)

// imageJob represents a single task for a worker to correct one image file.
type imageJob struct {
	inputPath  string
	outputPath string
}

// processAllImages distributes the discovered images over a worker pool and
// waits for the whole batch to finish. Each image is an independent task with
// its own pixel buffer; a copy of the settings travels with each job, so
// there is no shared mutable state between workers. One image's failure is
// logged and never blocks the others.
func (processor *Processor) processAllImages(
	ctx context.Context,
	imagePaths []string,
) error {
	jobs := make(chan imageJob, len(imagePaths))

	progressBar := pb.New(len(imagePaths)).
		SetTemplateString(`{{ bar . " " "━" "━" " " " "}} {{percent .}} {{rtime .}}`).
		SetWriter(processor.config.ProgressBarOutput).
		Start()
	defer progressBar.Finish()

	var waitGroup sync.WaitGroup

	// Start a pool of worker goroutines.
	for range processor.config.Workers {
		waitGroup.Add(1)

		go processor.imageWorker(ctx, &waitGroup, jobs, progressBar)
	}

	// Send a job to the workers for each image.
	for _, imagePath := range imagePaths {
		jobs <- imageJob{
			inputPath: imagePath,
			outputPath: OutputFileName(
				processor.config.OutputPath,
				imagePath,
				processor.config.Settings.Format,
			),
		}
	}

	close(jobs) // No more jobs will be sent.

	waitGroup.Wait() // Wait for all workers to finish.

	return nil
}

// imageWorker is a goroutine that pulls jobs from the channel and processes them.
// It runs until the jobs channel is closed and empty.
func (processor *Processor) imageWorker(
	ctx context.Context,
	waitGroup *sync.WaitGroup,
	jobs <-chan imageJob,
	progressBar *pb.ProgressBar,
) {
	defer waitGroup.Done()

	for job := range jobs {
		// Check if the context has been canceled (e.g., by Ctrl+C).
		if ctx.Err() != nil {
			processor.log.Warn(
				"Context canceled, skipping %s",
				filepath.Base(job.inputPath),
			)

			return
		}

		processErr := CorrectFile(job.inputPath, job.outputPath, processor.config.Settings)
		if processErr != nil {
			processor.log.Error(
				"Failed to process %s: %v",
				filepath.Base(job.inputPath),
				processErr,
			)
		} else {
			processor.log.Success(
				"Corrected %s -> %s",
				filepath.Base(job.inputPath),
				filepath.Base(job.outputPath),
			)
		}

		progressBar.Increment()
	}
}

// CorrectFile loads, corrects, and re-encodes a single image. The settings
// are passed by value so the correction run owns an immutable copy. Decode
// failures keep their imgcodec sentinel in the chain, so callers can tell a
// broken input from a transient I/O failure.
func CorrectFile(inputPath, outputPath string, settings exposure.Settings) error {
	img, loadErr := loadImage(inputPath)
	if loadErr != nil {
		return fmt.Errorf("load failed: %w", loadErr)
	}

	bounds := img.Bounds()
	exposure.Correct(img.Pix, bounds.Dx(), bounds.Dy(), settings)

	encodeErr := saveImage(outputPath, img, settings)
	if encodeErr != nil {
		return fmt.Errorf("encoding failed: %w", encodeErr)
	}

	return nil
}

// loadImage opens and decodes one input file into an owned RGBA buffer.
func loadImage(inputPath string) (img *image.NRGBA, err error) {
	file, openErr := os.Open(inputPath)
	if openErr != nil {
		return nil, fmt.Errorf("could not open %s: %w", inputPath, openErr)
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil && err == nil {
			err = fmt.Errorf("could not close %s: %w", inputPath, closeErr)
		}
	}()

	img, err = imgcodec.Decode(file)

	return img, err
}

// saveImage encodes the corrected buffer to the output path. A partial file
// left behind by a failed encode is removed.
func saveImage(outputPath string, img *image.NRGBA, settings exposure.Settings) error {
	outFile, createErr := os.Create(outputPath)
	if createErr != nil {
		return fmt.Errorf("could not create %s: %w", outputPath, createErr)
	}

	encodeErr := imgcodec.Encode(outFile, img, settings.Format, settings.Quality)

	closeErr := outFile.Close()

	if encodeErr != nil {
		_ = os.Remove(outputPath)

		return encodeErr
	}

	if closeErr != nil {
		_ = os.Remove(outputPath)

		return fmt.Errorf("could not close %s: %w", outputPath, closeErr)
	}

	return nil
}
