package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/hsa-archiver/internal/eligibility"
	"github.com/dvloznov/hsa-archiver/internal/ledger"
	"github.com/dvloznov/hsa-archiver/internal/mail"
)

// Classifier determines HSA eligibility for the transactions on a
// receipt document. This interface enables mocking and testing of the
// model-backed classifier.
type Classifier interface {
	Classify(ctx context.Context, data []byte, contentType mail.ContentType) ([]eligibility.RawItem, error)
}

// Converter produces the archival PDF/A artifact for an attachment.
type Converter interface {
	ToPDFA(ctx context.Context, data []byte, contentType mail.ContentType) ([]byte, error)
}

// ObjectStore is the object surface the pipeline needs from the archive
// bucket.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Tag(ctx context.Context, key, status string) error
	URI(key string) string
}

// LedgerStore persists the CSV ledger with optimistic concurrency.
// Store must return ledger.ErrConflict when the generation is stale.
type LedgerStore interface {
	Fetch(ctx context.Context) (*ledger.Ledger, int64, error)
	Store(ctx context.Context, l *ledger.Ledger, generation int64) error
}

// Notifier delivers intake notices to the submitter.
type Notifier interface {
	Confirmation(ctx context.Context, e ledger.Entry, dupScore int) error
	Rejection(ctx context.Context, description, reasoning string) error
	Failure(ctx context.Context, message string) error
}

// ParamSource fetches runtime parameters such as the sender allow list.
type ParamSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// Recorder tracks intake runs for auditing. A nil *audit.Recorder
// satisfies this and records nothing.
type Recorder interface {
	Start(ctx context.Context, messageKey string) (string, error)
	Finish(ctx context.Context, runID, status, errMsg string)
}

// Clock supplies the current time, so the payment-date fallback is
// testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
