package main

import (
	"context"
	"flag"
	"os"
	"time"

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

	messageKey := flag.String("message-key", "", "object key of the stored raw message (e.g. raw-emails/abc123)")
	flag.Parse()

	if *messageKey == "" {
		log.Fatal().Msg("Error: --message-key is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
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

	log.Info().Str("message_key", *messageKey).Msg("Starting intake")

	res := proc.Run(ctx, *messageKey)

	log.Info().
		Str("status", string(res.Status)).
		Int("archived", res.Archived).
		Int("rejected", res.Rejected).
		Msg("Intake finished")

	if res.Status == pipeline.StatusServerError {
		os.Exit(1)
	}
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

	// Audit is optional; a nil recorder records nothing.
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
