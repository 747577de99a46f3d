package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/hsa-archiver/internal/archive"
	"github.com/dvloznov/hsa-archiver/internal/eligibility"
	"github.com/dvloznov/hsa-archiver/internal/ledger"
	"github.com/dvloznov/hsa-archiver/internal/logger"
	"github.com/dvloznov/hsa-archiver/internal/mail"
)

// Status is the terminal outcome of one intake run.
type Status string

const (
	StatusProcessed     Status = "processed"
	StatusUnauthorized  Status = "unauthorized"
	StatusNoAttachments Status = "no_attachments"
	StatusServerError   Status = "server_error"
)

// ForceStorePrefix on the message subject bypasses the eligibility
// verdict. It does not bypass parsing or conversion.
const ForceStorePrefix = "FORCE_STORE"

// maxLedgerRetries bounds the fetch-append-store loop when concurrent
// intakes race on the ledger object.
const maxLedgerRetries = 5

// Result summarizes one intake run.
type Result struct {
	Status   Status
	Archived int
	Rejected int
	Message  string
}

// Processor orchestrates one intake run: fetch the raw message, decode,
// authorize, classify each attachment, archive accepted items, append
// ledger rows and notify. Collaborators are interfaces so each step can
// be mocked in tests.
type Processor struct {
	store      ObjectStore
	ledgers    LedgerStore
	classifier Classifier
	converter  Converter
	notifier   Notifier
	params     ParamSource
	audit      Recorder
	clock      Clock

	// sendersParam names the allow-list parameter in the param source.
	sendersParam string
}

// NewProcessor wires a processor from its collaborators. audit may wrap
// a nil recorder when run auditing is disabled.
func NewProcessor(
	store ObjectStore,
	ledgers LedgerStore,
	classifier Classifier,
	converter Converter,
	notifier Notifier,
	params ParamSource,
	audit Recorder,
	sendersParam string,
) *Processor {
	return &Processor{
		store:        store,
		ledgers:      ledgers,
		classifier:   classifier,
		converter:    converter,
		notifier:     notifier,
		params:       params,
		audit:        audit,
		clock:        systemClock{},
		sendersParam: sendersParam,
	}
}

// Run processes one stored message end to end. Errors escaping the run
// are caught here: they are logged, reported as a failure notice, and
// mapped to StatusServerError so the caller can ack/nack accordingly.
func (p *Processor) Run(ctx context.Context, messageKey string) Result {
	log := logger.FromContext(ctx).With().Str("message_key", messageKey).Logger()
	ctx = logger.WithContext(ctx, log)

	runID, err := p.audit.Start(ctx, messageKey)
	if err != nil {
		// Audit is advisory; the intake still runs.
		log.Warn().Err(err).Msg("Failed to record run start")
	}

	res, err := p.run(ctx, messageKey)
	if err != nil {
		log.Error().Err(err).Msg("Intake run failed")
		if nerr := p.notifier.Failure(ctx, err.Error()); nerr != nil {
			log.Warn().Err(nerr).Msg("Failed to publish failure notice")
		}
		p.audit.Finish(ctx, runID, "FAILED", err.Error())
		return Result{Status: StatusServerError, Message: err.Error()}
	}

	p.audit.Finish(ctx, runID, "SUCCESS", "")
	return res
}

func (p *Processor) run(ctx context.Context, messageKey string) (Result, error) {
	log := logger.FromContext(ctx)

	raw, err := p.store.Get(ctx, messageKey)
	if err != nil {
		return Result{}, fmt.Errorf("fetching message: %w", err)
	}

	msg, err := mail.Decode(raw)
	if err != nil {
		return Result{}, fmt.Errorf("decoding message: %w", err)
	}

	allowed, err := p.senderAllowed(ctx, msg.Sender)
	if err != nil {
		return Result{}, err
	}
	if !allowed {
		// Stop before any classification, storage or notification.
		log.Warn().Str("sender", msg.Sender).Msg("Sender not on allow list")
		return Result{Status: StatusUnauthorized, Message: "sender not authorized"}, nil
	}

	if len(msg.Attachments) == 0 {
		log.Info().Msg("Message has no supported attachments")
		return Result{Status: StatusNoAttachments, Message: "no supported attachments"}, nil
	}

	force := strings.HasPrefix(msg.Subject, ForceStorePrefix)
	if force {
		log.Info().Msg("Force-store override active for this message")
	}

	res := Result{Status: StatusProcessed}
	for _, att := range msg.Attachments {
		archived, rejected, err := p.processAttachment(ctx, att, force)
		res.Archived += archived
		res.Rejected += rejected
		if err != nil {
			// One bad attachment must not sink the rest of the message.
			log.Error().Err(err).Str("attachment", att.Filename).Msg("Attachment processing failed")
			notice := fmt.Sprintf("attachment %s: %v", att.Filename, err)
			if nerr := p.notifier.Failure(ctx, notice); nerr != nil {
				log.Warn().Err(nerr).Msg("Failed to publish failure notice")
			}
		}
	}

	if err := p.store.Tag(ctx, messageKey, "processed"); err != nil {
		// The work is done; a failed tag only risks reprocessing.
		log.Warn().Err(err).Msg("Failed to tag source message")
	}

	return res, nil
}

// senderAllowed checks the sender against the comma-separated allow
// list, case-insensitively.
func (p *Processor) senderAllowed(ctx context.Context, sender string) (bool, error) {
	value, err := p.params.Get(ctx, p.sendersParam)
	if err != nil {
		return false, fmt.Errorf("fetching sender allow list: %w", err)
	}

	sender = strings.ToLower(strings.TrimSpace(sender))
	for _, s := range strings.Split(value, ",") {
		if strings.ToLower(strings.TrimSpace(s)) == sender && sender != "" {
			return true, nil
		}
	}
	return false, nil
}

// processAttachment handles one attachment: classify, partition by
// eligibility, then archive the accepted items behind a single artifact.
// Returns how many items were archived and how many rejected.
func (p *Processor) processAttachment(ctx context.Context, att mail.Attachment, force bool) (archived, rejected int, err error) {
	log := logger.FromContext(ctx)

	items, err := p.classifier.Classify(ctx, att.Data, att.ContentType)
	if err != nil {
		return 0, 0, fmt.Errorf("classifying: %w", err)
	}
	results, err := eligibility.Normalize(items)
	if err != nil {
		return 0, 0, fmt.Errorf("normalizing classifier output: %w", err)
	}

	var accepted []eligibility.Result
	for _, r := range results {
		if r.Eligible || force {
			accepted = append(accepted, r)
			continue
		}
		rejected++
		if nerr := p.notifier.Rejection(ctx, r.Description, r.Reasoning); nerr != nil {
			log.Warn().Err(nerr).Msg("Failed to publish rejection notice")
		}
	}
	if len(accepted) == 0 {
		return 0, rejected, nil
	}

	entries := make([]ledger.Entry, len(accepted))
	for i, r := range accepted {
		entries[i] = p.buildEntry(r)
	}

	artifact, err := p.converter.ToPDFA(ctx, att.Data, att.ContentType)
	if err != nil {
		return 0, rejected, fmt.Errorf("converting to archival pdf: %w", err)
	}

	// One attachment yields one artifact; every accepted item on it
	// shares the URI. The key comes from the first accepted item.
	key, err := archive.ReserveKey(ctx,
		namingDate(entries[0]).String(),
		entries[0].Provider,
		accepted[0].ShortDescription,
		p.store.Exists)
	if err != nil {
		return 0, rejected, err
	}

	if err := p.store.Put(ctx, key, artifact, "application/pdf"); err != nil {
		return 0, rejected, fmt.Errorf("storing artifact: %w", err)
	}
	uri := p.store.URI(key)

	for i := range entries {
		entries[i].ReceiptURI = uri

		score, err := p.appendLedger(ctx, entries[i])
		if err != nil {
			return archived, rejected, err
		}
		archived++

		if nerr := p.notifier.Confirmation(ctx, entries[i], score); nerr != nil {
			log.Warn().Err(nerr).Msg("Failed to publish confirmation notice")
		}
	}

	return archived, rejected, nil
}

// buildEntry maps a normalized item onto a ledger entry. Force-stored
// items may lack fields the completeness gate would otherwise require,
// so absent values get explicit placeholders: provider "Unknown", and
// when both dates are absent the payment date becomes today in UTC.
func (p *Processor) buildEntry(r eligibility.Result) ledger.Entry {
	e := ledger.Entry{
		ServiceDate: r.ServiceDate,
		PaymentDate: r.PaymentDate,
		Provider:    namingProviderFromResult(r),
		Category:    r.Category.String(),
		Description: r.Description,
	}
	if r.Amount != nil {
		e.Amount = *r.Amount
	}
	if e.ServiceDate == nil && e.PaymentDate == nil {
		today := civil.DateOf(p.clock.Now().UTC())
		e.PaymentDate = &today
	}
	return e
}

// appendLedger runs the fetch-append-store cycle, retrying when a
// concurrent writer invalidated the fetched generation. Exactly one row
// lands per successful call.
func (p *Processor) appendLedger(ctx context.Context, e ledger.Entry) (int, error) {
	log := logger.FromContext(ctx)

	for attempt := 1; attempt <= maxLedgerRetries; attempt++ {
		l, generation, err := p.ledgers.Fetch(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetching ledger: %w", err)
		}
		if l == nil {
			l = ledger.New()
		}

		score := l.Append(e)

		err = p.ledgers.Store(ctx, l, generation)
		if err == nil {
			return score, nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return 0, fmt.Errorf("storing ledger: %w", err)
		}
		log.Warn().Int("attempt", attempt).Msg("Ledger write conflict, refetching")
	}

	return 0, fmt.Errorf("appending ledger row: gave up after %d attempts: %w", maxLedgerRetries, ledger.ErrConflict)
}

func namingDate(e ledger.Entry) civil.Date {
	if e.ServiceDate != nil {
		return *e.ServiceDate
	}
	return *e.PaymentDate
}

func namingProviderFromResult(r eligibility.Result) string {
	if r.Provider != nil {
		return *r.Provider
	}
	return "Unknown"
}
