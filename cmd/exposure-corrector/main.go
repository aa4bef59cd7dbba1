// Command exposure-corrector batch-corrects the exposure of image files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"

	"github.com/book-expert/exposure-service/internal/corrector"
	"github.com/book-expert/exposure-service/internal/exposure"
)

// Define named types for each section of the configuration.
type configPaths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
}

type configLogsDir struct {
	ExposureCorrector string `toml:"exposure_corrector"`
}

type configSettings struct {
	Workers    int    `toml:"workers"`
	Mode       string `toml:"mode"`
	Format     string `toml:"format"`
	Quality    string `toml:"quality"`
	Exposure   int    `toml:"exposure"`
	Brightness int    `toml:"brightness"`
	Contrast   int    `toml:"contrast"`
	Highlights int    `toml:"highlights"`
	Shadows    int    `toml:"shadows"`
}

// config represents the structure of the project.toml file, using named types.
type config struct {
	Paths    configPaths    `toml:"paths"`
	LogsDir  configLogsDir  `toml:"logs_dir"`
	Settings configSettings `toml:"settings"`
}

func main() {
	ctx := context.Background()
	// The `run` function contains the core application logic.
	// We call it and then os.Exit to ensure deferred functions are run correctly.
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main logic function, separated from main to allow for easier testing and
// clean exit handling.
func run(ctx context.Context) error {
	projectRoot, configPath, err := configurator.FindProjectRoot(".")
	if err != nil {
		return fmt.Errorf("could not find project root: %w", err)
	}

	cfg, err := safeLoadConfig(configPath)
	if err != nil {
		return err
	}

	flgs := parseFlags()

	options, err := mergeConfigAndFlags(&cfg, flgs)
	if err != nil {
		return err
	}

	return processWithLogger(ctx, &options, projectRoot, cfg.LogsDir.ExposureCorrector)
}

// safeLoadConfig loads the TOML config, allowing missing file without error.
func safeLoadConfig(path string) (config, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			var emptyCfg config

			return emptyCfg, nil
		}

		return config{}, fmt.Errorf("error loading config file: %w", err)
	}

	return cfg, nil
}

// loadConfig reads and parses the project.toml file.
func loadConfig(path string) (config, error) {
	var cfg config

	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		var zero config

		return zero, fmt.Errorf("failed to decode config file: %w", err)
	}

	return cfg, nil
}

// flags represents the command-line arguments.
type flags struct {
	inputPath  string
	outputPath string
	mode       string
	format     string
	quality    string
	workers    int
	exposure   int
	brightness int
	contrast   int
	highlights int
	shadows    int
}

// unsetAdjustment marks an adjustment flag the user did not provide, so a
// zero in the config file is not mistaken for an explicit zero on the
// command line.
const unsetAdjustment = -1000

// parseFlags defines and parses command-line flags.
func parseFlags() flags {
	var flagsVar flags
	flag.StringVar(
		&flagsVar.inputPath,
		"input",
		"",
		"Input directory for image files (required).",
	)
	flag.StringVar(
		&flagsVar.outputPath,
		"output",
		"",
		"Output directory for corrected images (required).",
	)
	flag.StringVar(
		&flagsVar.mode,
		"mode",
		"",
		"Correction mode: auto, manual, hdr, lowlight, or overexposed.",
	)
	flag.StringVar(
		&flagsVar.format,
		"format",
		"",
		"Output format: png, jpg, or webp.",
	)
	flag.StringVar(
		&flagsVar.quality,
		"quality",
		"",
		"Encoder quality: high, medium, or low.",
	)
	flag.IntVar(&flagsVar.workers, "workers", 0, "Number of concurrent workers.")
	flag.IntVar(
		&flagsVar.exposure,
		"exposure",
		unsetAdjustment,
		"Exposure adjustment in [-100, 100].",
	)
	flag.IntVar(
		&flagsVar.brightness,
		"brightness",
		unsetAdjustment,
		"Brightness adjustment in [-100, 100].",
	)
	flag.IntVar(
		&flagsVar.contrast,
		"contrast",
		unsetAdjustment,
		"Contrast adjustment in [-100, 100].",
	)
	flag.IntVar(
		&flagsVar.highlights,
		"highlights",
		unsetAdjustment,
		"Highlights adjustment in [-100, 100].",
	)
	flag.IntVar(
		&flagsVar.shadows,
		"shadows",
		unsetAdjustment,
		"Shadows adjustment in [-100, 100].",
	)
	flag.Parse()

	return flagsVar
}

// mergeConfigAndFlags combines settings from the config file and command-line flags.
// Flags take precedence over the config file settings.
func mergeConfigAndFlags(cfg *config, flgs flags) (corrector.Options, error) {
	settings, err := settingsFromConfig(&cfg.Settings)
	if err != nil {
		return corrector.Options{}, err
	}

	opts := corrector.Options{
		ProgressBarOutput: nil,
		InputPath:         cfg.Paths.InputDir,
		OutputPath:        cfg.Paths.OutputDir,
		Workers:           cfg.Settings.Workers,
		Settings:          settings,
	}

	// Command-line flags override config file values.
	if flgs.inputPath != "" {
		opts.InputPath = flgs.inputPath
	}

	if flgs.outputPath != "" {
		opts.OutputPath = flgs.outputPath
	}

	if flgs.workers > 0 {
		opts.Workers = flgs.workers
	}

	err = overrideSettings(&opts.Settings, flgs)
	if err != nil {
		return corrector.Options{}, err
	}

	return opts, nil
}

// settingsFromConfig builds correction settings from the config file section,
// falling back to the defaults for anything unset.
func settingsFromConfig(section *configSettings) (exposure.Settings, error) {
	settings := exposure.DefaultSettings()

	var err error

	if section.Mode != "" {
		settings.Mode, err = exposure.ParseMode(section.Mode)
		if err != nil {
			return exposure.Settings{}, err
		}
	}

	if section.Format != "" {
		settings.Format, err = exposure.ParseFormat(section.Format)
		if err != nil {
			return exposure.Settings{}, err
		}
	}

	if section.Quality != "" {
		settings.Quality, err = exposure.ParseQuality(section.Quality)
		if err != nil {
			return exposure.Settings{}, err
		}
	}

	settings.Exposure = section.Exposure
	settings.Brightness = section.Brightness
	settings.Contrast = section.Contrast
	settings.Highlights = section.Highlights
	settings.Shadows = section.Shadows

	return settings, nil
}

// overrideSettings applies any explicitly provided settings flags.
func overrideSettings(settings *exposure.Settings, flgs flags) error {
	var err error

	if flgs.mode != "" {
		settings.Mode, err = exposure.ParseMode(flgs.mode)
		if err != nil {
			return err
		}
	}

	if flgs.format != "" {
		settings.Format, err = exposure.ParseFormat(flgs.format)
		if err != nil {
			return err
		}
	}

	if flgs.quality != "" {
		settings.Quality, err = exposure.ParseQuality(flgs.quality)
		if err != nil {
			return err
		}
	}

	for flagValue, target := range map[*int]*int{
		&flgs.exposure:   &settings.Exposure,
		&flgs.brightness: &settings.Brightness,
		&flgs.contrast:   &settings.Contrast,
		&flgs.highlights: &settings.Highlights,
		&flgs.shadows:    &settings.Shadows,
	} {
		if *flagValue != unsetAdjustment {
			*target = *flagValue
		}
	}

	return nil
}

// processWithLogger sets up the logger and runs the processor.
func processWithLogger(
	ctx context.Context,
	options *corrector.Options,
	projectRoot, logDir string,
) error {
	log, err := setupLogger(projectRoot, logDir)
	if err != nil {
		return fmt.Errorf("could not set up logger: %w", err)
	}

	defer func() {
		cerr := log.Close()
		if cerr != nil {
			_, _ = fmt.Fprintf(
				os.Stderr,
				"failed to close logger: %v\n",
				cerr,
			)
		}
	}()

	processor := corrector.NewProcessor(options, log)

	procErr := processor.Process(ctx)
	if procErr != nil {
		return fmt.Errorf("image processing failed: %w", procErr)
	}

	return nil
}

// setupLogger initializes the logger, creating the log directory if needed.
func setupLogger(projectRoot, logDirConfig string) (*logger.Logger, error) {
	logDir := logDirConfig
	if logDir == "" {
		logDir = filepath.Join(projectRoot, "logs", "exposure_corrector")
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("20060102_150405"))

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}
