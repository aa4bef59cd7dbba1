// This file orchestrates the exposure-service, initializing and running the NATS
// worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/configurator"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"

	"github.com/book-expert/exposure-service/internal/corrector"
	"github.com/book-expert/exposure-service/internal/exposure"
	"github.com/book-expert/exposure-service/internal/imgcodec"
)

// Config represents the overall configuration structure for the exposure-service.
type Config struct {
	NATS     NATSConfig     `toml:"nats"`
	Paths    PathsConfig    `toml:"paths"`
	Exposure ExposureConfig `toml:"exposure"`
}

// PathsConfig holds common path configurations.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// NATSConfig holds NATS-specific configuration for the exposure-service.
type NATSConfig struct {
	URL                        string `toml:"url"`
	ImageStreamName            string `toml:"image_stream_name"`
	ImageConsumerName          string `toml:"image_consumer_name"`
	ImageCreatedSubject        string `toml:"image_created_subject"`
	ImageObjectStoreBucket     string `toml:"image_object_store_bucket"`
	CorrectedStreamName        string `toml:"corrected_stream_name"`
	CorrectedSubject           string `toml:"corrected_subject"`
	CorrectedObjectStoreBucket string `toml:"corrected_object_store_bucket"`
}

// ExposureConfig holds the default correction settings applied to incoming
// images that do not carry their own settings.
type ExposureConfig struct {
	Mode    string `toml:"mode"`
	Format  string `toml:"format"`
	Quality string `toml:"quality"`
}

// ImageCreatedEvent is consumed from the image stream. The optional settings
// fields let the producer request a specific correction; anything left empty
// falls back to the service defaults.
type ImageCreatedEvent struct {
	Header     events.EventHeader `json:"header"`
	ImageKey   string             `json:"image_key"`
	Mode       string             `json:"mode,omitempty"`
	Format     string             `json:"format,omitempty"`
	Quality    string             `json:"quality,omitempty"`
	Exposure   int                `json:"exposure,omitempty"`
	Brightness int                `json:"brightness,omitempty"`
	Contrast   int                `json:"contrast,omitempty"`
	Highlights int                `json:"highlights,omitempty"`
	Shadows    int                `json:"shadows,omitempty"`
}

// ImageCorrectedEvent is published after a corrected image has been uploaded.
type ImageCorrectedEvent struct {
	Header       events.EventHeader `json:"header"`
	ImageKey     string             `json:"image_key"`
	CorrectedKey string             `json:"corrected_key"`
	Mode         string             `json:"mode"`
	Format       string             `json:"format"`
}

// job represents the context for processing a single message.
type job struct {
	msg            jetstream.Msg
	jetStream      jetstream.JetStream
	imageStore     jetstream.ObjectStore
	correctedStore jetstream.ObjectStore
	cfg            *Config
	appLogger      *logger.Logger
	event          *ImageCreatedEvent
	header         *events.EventHeader
	workDir        string
	localImagePath string
}

const (
	natsFetchTimeout = 5 * time.Second
	ackWait          = 30 * time.Second

	workDirMode = 0o750

	configURLEnvVar = "EXPOSURE_SERVICE_CONFIG_URL"
)

// ErrConfigURLNotSet is returned when the configuration URL environment
// variable is missing.
var ErrConfigURLNotSet = errors.New(
	"EXPOSURE_SERVICE_CONFIG_URL environment variable is not set",
)

// main is the entry point of the application.
func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runErr := run(ctx)
	if runErr != nil {
		log.Printf("Fatal application error: %v", runErr)
		os.Exit(1)
	}

	log.Println("Application shut down gracefully.")
}

// run initializes all components and starts the message processing loop.
func run(ctx context.Context) error {
	cfg, appLogger, setupErr := setupConfigAndLogger()
	if setupErr != nil {
		return setupErr
	}
	defer func() {
		if closeErr := appLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close app logger: %v", closeErr)
		}
	}()

	natsConnection, connErr := nats.Connect(cfg.NATS.URL)
	if connErr != nil {
		return fmt.Errorf("failed to connect to NATS: %w", connErr)
	}
	defer natsConnection.Close()
	appLogger.Info("Connected to NATS server at %s", natsConnection.ConnectedUrl())

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	jsSetupErr := setupJetStream(ctx, jetStream, cfg)
	if jsSetupErr != nil {
		return fmt.Errorf("failed to set up JetStream resources: %w", jsSetupErr)
	}

	consumer, consumerErr := jetStream.Consumer(
		ctx,
		cfg.NATS.ImageStreamName,
		cfg.NATS.ImageConsumerName,
	)
	if consumerErr != nil {
		return fmt.Errorf("failed to get consumer: %w", consumerErr)
	}

	appLogger.Info(
		"Worker is running, listening for jobs on '%s'...",
		cfg.NATS.ImageCreatedSubject,
	)

	return processMessages(ctx, consumer, jetStream, cfg, appLogger)
}

// setupConfigAndLogger loads configuration and sets up the main application logger.
func setupConfigAndLogger() (*Config, *logger.Logger, error) {
	configURL := os.Getenv(configURLEnvVar)
	if configURL == "" {
		return nil, nil, ErrConfigURLNotSet
	}

	var cfg Config

	tempLogger, tempLoggerErr := logger.New(os.TempDir(), "exposure-service-bootstrap.log")
	if tempLoggerErr != nil {
		return nil, nil, fmt.Errorf(
			"failed to create bootstrap logger: %w",
			tempLoggerErr,
		)
	}
	defer func() {
		if closeErr := tempLogger.Close(); closeErr != nil {
			log.Printf("Warning: failed to close temp logger: %v", closeErr)
		}
	}()

	loadErr := configurator.LoadFromURL(configURL, &cfg, tempLogger)
	if loadErr != nil {
		return nil, nil, fmt.Errorf(
			"failed to load configuration from URL %s: %w",
			configURL,
			loadErr,
		)
	}
	log.Printf("Configuration loaded from %s", configURL)

	appLogger, loggerErr := logger.New(cfg.Paths.BaseLogsDir, "exposure-service.log")
	if loggerErr != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", loggerErr)
	}

	return &cfg, appLogger, nil
}

// setupJetStream ensures all required NATS streams and object stores exist.
func setupJetStream(ctx context.Context, jetStream jetstream.JetStream, cfg *Config) error {
	streamCfg := newStreamConfig(cfg.NATS.ImageStreamName, cfg.NATS.ImageCreatedSubject)
	_, streamErr := jetStream.CreateStream(ctx, *streamCfg)
	if streamErr != nil && !errors.Is(streamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create image stream: %w", streamErr)
	}

	consumerCfg := newConsumerConfig(cfg)
	stream, streamErr := jetStream.Stream(ctx, cfg.NATS.ImageStreamName)
	if streamErr != nil {
		return fmt.Errorf("failed to get image stream handle: %w", streamErr)
	}
	_, consumerErr := stream.CreateOrUpdateConsumer(ctx, *consumerCfg)
	if consumerErr != nil {
		return fmt.Errorf("failed to create image consumer: %w", consumerErr)
	}

	correctedStreamCfg := newStreamConfig(
		cfg.NATS.CorrectedStreamName,
		cfg.NATS.CorrectedSubject,
	)
	_, correctedStreamErr := jetStream.CreateStream(ctx, *correctedStreamCfg)
	if correctedStreamErr != nil &&
		!errors.Is(correctedStreamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create corrected stream: %w", correctedStreamErr)
	}

	for _, bucket := range []string{
		cfg.NATS.ImageObjectStoreBucket,
		cfg.NATS.CorrectedObjectStoreBucket,
	} {
		objStoreCfg := newObjectStoreConfig(bucket)
		_, objStoreErr := jetStream.CreateObjectStore(ctx, *objStoreCfg)
		if objStoreErr != nil && !errors.Is(objStoreErr, jetstream.ErrBucketExists) {
			return fmt.Errorf(
				"failed to create object store '%s': %w",
				bucket,
				objStoreErr,
			)
		}
	}

	return nil
}

func newStreamConfig(name, subject string) *jetstream.StreamConfig {
	return &jetstream.StreamConfig{
		Name:                   name,
		Description:            "",
		Subjects:               []string{subject},
		Retention:              jetstream.WorkQueuePolicy,
		MaxConsumers:           -1,
		MaxMsgs:                -1,
		MaxBytes:               -1,
		Discard:                jetstream.DiscardOld,
		DiscardNewPerSubject:   false,
		MaxAge:                 0,
		MaxMsgsPerSubject:      -1,
		MaxMsgSize:             -1,
		Storage:                jetstream.FileStorage,
		Replicas:               1,
		NoAck:                  false,
		Duplicates:             0,
		Placement:              nil,
		Mirror:                 nil,
		Sources:                nil,
		Sealed:                 false,
		DenyDelete:             false,
		DenyPurge:              false,
		AllowRollup:            false,
		Compression:            jetstream.NoCompression,
		FirstSeq:               0,
		SubjectTransform:       nil,
		RePublish:              nil,
		AllowDirect:            false,
		MirrorDirect:           false,
		ConsumerLimits:         jetstream.StreamConsumerLimits{},
		Metadata:               nil,
		Template:               "",
		AllowMsgTTL:            false,
		SubjectDeleteMarkerTTL: 0,
	}
}

func newConsumerConfig(cfg *Config) *jetstream.ConsumerConfig {
	return &jetstream.ConsumerConfig{
		Durable:            cfg.NATS.ImageConsumerName,
		Name:               "",
		Description:        "",
		FilterSubject:      cfg.NATS.ImageCreatedSubject,
		AckPolicy:          jetstream.AckExplicitPolicy,
		AckWait:            ackWait,
		MaxDeliver:         -1,
		DeliverPolicy:      jetstream.DeliverAllPolicy,
		OptStartSeq:        0,
		OptStartTime:       nil,
		BackOff:            nil,
		ReplayPolicy:       jetstream.ReplayInstantPolicy,
		RateLimit:          0,
		SampleFrequency:    "",
		MaxWaiting:         0,
		MaxAckPending:      -1,
		HeadersOnly:        false,
		MaxRequestBatch:    0,
		MaxRequestExpires:  0,
		MaxRequestMaxBytes: 0,
		InactiveThreshold:  0,
		Replicas:           0,
		MemoryStorage:      false,
		FilterSubjects:     nil,
		Metadata:           nil,
		PauseUntil:         nil,
		PriorityPolicy:     0,
		PinnedTTL:          0,
		PriorityGroups:     nil,
		DeliverSubject:     "",
		DeliverGroup:       "",
		FlowControl:        false,
		IdleHeartbeat:      0,
	}
}

func newObjectStoreConfig(bucket string) *jetstream.ObjectStoreConfig {
	return &jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "",
		TTL:         0,
		MaxBytes:    -1,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Compression: false,
		Metadata:    nil,
	}
}

// processMessages implements the core worker loop.
func processMessages(
	ctx context.Context,
	consumer jetstream.Consumer,
	jetStream jetstream.JetStream,
	cfg *Config,
	appLogger *logger.Logger,
) error {
	imageStore, imageStoreErr := jetStream.ObjectStore(
		ctx,
		cfg.NATS.ImageObjectStoreBucket,
	)
	if imageStoreErr != nil {
		return fmt.Errorf("failed to bind to image object store: %w", imageStoreErr)
	}

	correctedStore, correctedStoreErr := jetStream.ObjectStore(
		ctx,
		cfg.NATS.CorrectedObjectStoreBucket,
	)
	if correctedStoreErr != nil {
		return fmt.Errorf(
			"failed to bind to corrected object store: %w",
			correctedStoreErr,
		)
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("context error in message loop: %w", ctxErr)
		}

		batch, fetchErr := consumer.Fetch(1, jetstream.FetchMaxWait(natsFetchTimeout))
		if fetchErr != nil {
			if errors.Is(fetchErr, context.Canceled) ||
				errors.Is(fetchErr, nats.ErrTimeout) {
				continue
			}

			appLogger.Error("Error fetching messages: %v", fetchErr)

			continue
		}

		for msg := range batch.Messages() {
			handleMessage(ctx, msg, jetStream, imageStore, correctedStore, cfg, appLogger)
		}

		if batchErr := batch.Error(); batchErr != nil {
			appLogger.Error("Error during message batch processing: %v", batchErr)
		}
	}
}

// handleMessage processes a single message.
func handleMessage(
	ctx context.Context, msg jetstream.Msg, jetStream jetstream.JetStream,
	imageStore, correctedStore jetstream.ObjectStore, cfg *Config, appLogger *logger.Logger,
) {
	job, jobErr := newJob(msg, jetStream, imageStore, correctedStore, cfg, appLogger)
	if jobErr != nil {
		appLogger.Error("Failed to create job: %v", jobErr)

		return
	}

	job.run(ctx)
}

// newJob creates a new job handler.
func newJob(
	msg jetstream.Msg, jetStream jetstream.JetStream,
	imageStore, correctedStore jetstream.ObjectStore,
	cfg *Config, appLogger *logger.Logger,
) (*job, error) {
	event, unmarshalErr := unmarshalEvent(msg)
	if unmarshalErr != nil {
		return nil, unmarshalErr
	}

	return &job{
		msg:            msg,
		jetStream:      jetStream,
		imageStore:     imageStore,
		correctedStore: correctedStore,
		cfg:            cfg,
		appLogger:      appLogger,
		event:          event,
		header:         &event.Header,
		workDir:        "", // Will be set by setupWorkDir
		localImagePath: "", // Will be set by setupWorkDir
	}, nil
}

// unmarshalEvent unmarshals the ImageCreatedEvent from a message.
func unmarshalEvent(msg jetstream.Msg) (*ImageCreatedEvent, error) {
	var event ImageCreatedEvent

	err := json.Unmarshal(msg.Data(), &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ImageCreatedEvent: %w", err)
	}

	return &event, nil
}

// run executes the full lifecycle of a job.
func (j *job) run(ctx context.Context) {
	j.appLogger.Info(
		"Received job for WorkflowID [%s]: processing image key '%s'",
		j.header.WorkflowID,
		j.event.ImageKey,
	)

	if progErr := j.msg.InProgress(); progErr != nil {
		j.appLogger.Warn("Failed to send InProgress update: %v", progErr)
	}

	settings, settingsErr := j.resolveSettings()
	if settingsErr != nil {
		j.appLogger.Error(
			"Invalid correction settings for job [%s]: %v",
			j.header.WorkflowID,
			settingsErr,
		)
		j.term(settingsErr)

		return
	}

	dirErr := j.setupWorkDir()
	if dirErr != nil {
		j.appLogger.Error(
			"Error setting up work directory for job [%s]: %v",
			j.header.WorkflowID,
			dirErr,
		)
		j.nak(dirErr)

		return
	}
	defer j.cleanupWorkDir()

	if downloadErr := j.downloadImage(ctx); downloadErr != nil {
		j.appLogger.Error(
			"Error downloading image for job [%s]: %v",
			j.header.WorkflowID,
			downloadErr,
		)
		j.term(downloadErr)

		return
	}

	correctedPath, processErr := j.correctImage(settings)
	if processErr != nil {
		j.appLogger.Error(
			"Error correcting image for job [%s]: %v",
			j.header.WorkflowID,
			processErr,
		)

		// An image that cannot be decoded will fail on every redelivery;
		// a poison message must not occupy the work queue forever.
		if permanentProcessingError(processErr) {
			j.term(processErr)
		} else {
			j.nak(processErr)
		}

		return
	}

	if publishErr := j.publishCorrected(ctx, correctedPath, settings); publishErr != nil {
		j.appLogger.Error(
			"Error publishing corrected image for job [%s]: %v",
			j.header.WorkflowID,
			publishErr,
		)
		j.nak(publishErr)

		return
	}

	j.ack()
}

// resolveSettings merges the service defaults with any settings carried by
// the event, validating the result.
func (j *job) resolveSettings() (exposure.Settings, error) {
	settings := exposure.DefaultSettings()

	var err error

	for _, name := range []string{j.cfg.Exposure.Mode, j.event.Mode} {
		if name != "" {
			settings.Mode, err = exposure.ParseMode(name)
			if err != nil {
				return exposure.Settings{}, err
			}
		}
	}

	for _, name := range []string{j.cfg.Exposure.Format, j.event.Format} {
		if name != "" {
			settings.Format, err = exposure.ParseFormat(name)
			if err != nil {
				return exposure.Settings{}, err
			}
		}
	}

	for _, name := range []string{j.cfg.Exposure.Quality, j.event.Quality} {
		if name != "" {
			settings.Quality, err = exposure.ParseQuality(name)
			if err != nil {
				return exposure.Settings{}, err
			}
		}
	}

	settings.Exposure = j.event.Exposure
	settings.Brightness = j.event.Brightness
	settings.Contrast = j.event.Contrast
	settings.Highlights = j.event.Highlights
	settings.Shadows = j.event.Shadows

	validateErr := settings.Validate()
	if validateErr != nil {
		return exposure.Settings{}, fmt.Errorf("invalid settings: %w", validateErr)
	}

	return settings, nil
}

func (j *job) setupWorkDir() error {
	workDir, err := os.MkdirTemp("", fmt.Sprintf("exposure-%s-", j.header.WorkflowID))
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	j.workDir = workDir
	j.localImagePath = filepath.Join(workDir, filepath.Base(j.event.ImageKey))

	return nil
}

func (j *job) cleanupWorkDir() {
	if err := os.RemoveAll(j.workDir); err != nil {
		j.appLogger.Warn("Failed to remove temp directory '%s': %v", j.workDir, err)
	}
}

func (j *job) downloadImage(ctx context.Context) error {
	err := j.imageStore.GetFile(ctx, j.event.ImageKey, j.localImagePath)
	if err != nil {
		return fmt.Errorf(
			"failed to get image '%s' from object store: %w",
			j.event.ImageKey,
			err,
		)
	}

	return nil
}

// correctImage runs the exposure correction on the downloaded image and
// returns the path of the corrected output file. The corrector is invoked on
// the single file directly, so a decode failure surfaces here with its
// sentinel intact instead of being absorbed by batch failure isolation.
func (j *job) correctImage(settings exposure.Settings) (string, error) {
	outputDir := filepath.Join(j.workDir, "corrected")

	mkdirErr := os.MkdirAll(outputDir, workDirMode)
	if mkdirErr != nil {
		return "", fmt.Errorf("failed to create output directory: %w", mkdirErr)
	}

	correctedPath := corrector.OutputFileName(
		outputDir,
		j.localImagePath,
		settings.Format,
	)

	correctErr := corrector.CorrectFile(j.localImagePath, correctedPath, settings)
	if correctErr != nil {
		return "", fmt.Errorf("failed to correct image: %w", correctErr)
	}

	return correctedPath, nil
}

// permanentProcessingError reports whether a correction failure can never
// succeed on redelivery of the same message. Broken input bytes and formats
// without an encoder stay broken; everything else is assumed transient.
func permanentProcessingError(err error) bool {
	return errors.Is(err, imgcodec.ErrUndecodableImage) ||
		errors.Is(err, imgcodec.ErrUnsupportedFormat)
}

// publishCorrected uploads the corrected image to the object store and
// publishes an ImageCorrectedEvent.
func (j *job) publishCorrected(
	ctx context.Context,
	correctedPath string,
	settings exposure.Settings,
) error {
	baseKey := strings.TrimSuffix(j.event.ImageKey, filepath.Ext(j.event.ImageKey))
	objectName := fmt.Sprintf(
		"%s/%s/%s_corrected.%s",
		j.header.TenantID,
		j.header.WorkflowID,
		filepath.Base(baseKey),
		settings.Format.Extension(),
	)

	uploadErr := uploadFileToObjectStore(ctx, j.correctedStore, objectName, correctedPath)
	if uploadErr != nil {
		return fmt.Errorf("failed to upload '%s': %w", objectName, uploadErr)
	}

	j.appLogger.Info("Job [%s]: Uploaded '%s'", j.header.WorkflowID, objectName)

	publishErr := j.publishImageCorrectedEvent(ctx, objectName, settings)
	if publishErr != nil {
		return publishErr
	}

	j.appLogger.Info("Job [%s]: Published event for '%s'", j.header.WorkflowID, objectName)

	return nil
}

// publishImageCorrectedEvent marshals and publishes an ImageCorrectedEvent.
func (j *job) publishImageCorrectedEvent(
	ctx context.Context,
	correctedKey string,
	settings exposure.Settings,
) error {
	correctedEvent := ImageCorrectedEvent{
		Header: events.EventHeader{
			WorkflowID: j.header.WorkflowID,
			UserID:     j.header.UserID,
			TenantID:   j.header.TenantID,
			EventID:    uuid.New().String(),
			Timestamp:  time.Now(),
		},
		ImageKey:     j.event.ImageKey,
		CorrectedKey: correctedKey,
		Mode:         string(settings.Mode),
		Format:       string(settings.Format),
	}

	eventJSON, marshalErr := json.Marshal(correctedEvent)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal ImageCorrectedEvent: %w", marshalErr)
	}

	_, pubErr := j.jetStream.Publish(ctx, j.cfg.NATS.CorrectedSubject, eventJSON)
	if pubErr != nil {
		return fmt.Errorf("failed to publish ImageCorrectedEvent: %w", pubErr)
	}

	return nil
}

func (j *job) ack() {
	if err := j.msg.Ack(); err != nil {
		j.appLogger.Error(
			"Job [%s]: Failed to acknowledge message: %v",
			j.header.WorkflowID,
			err,
		)
	} else {
		j.appLogger.Success(
			"Job [%s]: Processing complete. Acknowledged.",
			j.header.WorkflowID,
		)
	}
}

func (j *job) nak(reason error) {
	j.appLogger.Error("NAK'ing message for job [%s]: %v", j.header.WorkflowID, reason)

	if err := j.msg.Nak(); err != nil {
		j.appLogger.Error("Failed to NAK message: %v", err)
	}
}

func (j *job) term(reason error) {
	j.appLogger.Error("Terminating message for job [%s]: %v", j.header.WorkflowID, reason)

	if err := j.msg.Term(); err != nil {
		j.appLogger.Error("Failed to TERM message: %v", err)
	}
}

func uploadFileToObjectStore(
	ctx context.Context,
	store jetstream.ObjectStore,
	objectName, filePath string,
) error {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open file for upload: %w", openErr)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("Warning: failed to close file '%s': %v", filePath, closeErr)
		}
	}()

	meta := jetstream.ObjectMeta{
		Name:        objectName,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
	}

	_, putErr := store.Put(ctx, meta, file)
	if putErr != nil {
		return fmt.Errorf("failed to put file in object store: %w", putErr)
	}

	return nil
}
