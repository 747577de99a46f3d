package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cloud.google.com/go/pubsub"

	"github.com/dvloznov/hsa-archiver/internal/archive"
	"github.com/dvloznov/hsa-archiver/internal/audit"
	"github.com/dvloznov/hsa-archiver/internal/config"
	"github.com/dvloznov/hsa-archiver/internal/eligibility"
	"github.com/dvloznov/hsa-archiver/internal/gcs"
	"github.com/dvloznov/hsa-archiver/internal/logger"
	"github.com/dvloznov/hsa-archiver/internal/notify"
	"github.com/dvloznov/hsa-archiver/internal/pipeline"
)

func main() {
	log := logger.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	proc, cleanup, err := buildProcessor(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire processor")
	}
	defer cleanup()

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pubsub client")
	}
	defer client.Close()

	// Cancel the receive loop on interrupt; Receive drains in-flight
	// messages before returning.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("Shutting down archiver service...")
		cancel()
	}()

	log.Info().
		Str("subscription", cfg.Subscription).
		Str("prefix", cfg.RawMailPrefix).
		Msg("Archiver service started, waiting for messages...")

	sub := client.Subscription(cfg.Subscription)
	err = sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		handleNotification(ctx, proc, cfg.RawMailPrefix, m)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Receive loop failed")
	}

	log.Info().Msg("Archiver service exited")
}

// handleNotification maps one storage notification onto an intake run.
// Only OBJECT_FINALIZE events under the raw-mail prefix trigger a run;
// everything else is acked and dropped.
func handleNotification(ctx context.Context, proc *pipeline.Processor, prefix string, m *pubsub.Message) {
	log := logger.FromContext(ctx)

	objectID := m.Attributes["objectId"]
	eventType := m.Attributes["eventType"]

	if eventType != "OBJECT_FINALIZE" || !strings.HasPrefix(objectID, prefix) {
		m.Ack()
		return
	}

	log.Info().Str("object_id", objectID).Msg("Processing storage notification")

	res := proc.Run(ctx, objectID)
	if res.Status == pipeline.StatusServerError {
		// Nack for redelivery; the run is idempotent enough to retry.
		m.Nack()
		return
	}
	m.Ack()
}

func buildProcessor(ctx context.Context, cfg *config.Config) (*pipeline.Processor, func(), error) {
	store, err := gcs.NewStore(ctx, cfg.Bucket)
	if err != nil {
		return nil, nil, err
	}

	notifier, err := notify.New(ctx, cfg.ProjectID, cfg.NotifyTopic)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	source, err := config.NewSecretManagerSource(ctx)
	if err != nil {
		notifier.Close()
		store.Close()
		return nil, nil, err
	}

	var recorder *audit.Recorder
	if cfg.AuditDataset != "" {
		recorder, err = audit.NewRecorder(ctx, cfg.ProjectID, cfg.AuditDataset)
		if err != nil {
			notifier.Close()
			store.Close()
			return nil, nil, err
		}
	}

	proc := pipeline.NewProcessor(
		store,
		gcs.NewLedgerStore(store, cfg.LedgerObject, cfg.LegacyLedgerWrites),
		eligibility.NewClassifier(cfg.GeminiModel),
		archive.NewConverter(cfg.GSBinary),
		notifier,
		config.NewCachedParams(source),
		recorder,
		cfg.AllowedSendersSecret,
	)

	cleanup := func() {
		_ = recorder.Close()
		_ = notifier.Close()
		_ = store.Close()
	}
	return proc, cleanup, nil
}
