package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/hsa-archiver/internal/ledger"
)

// LedgerStore persists the CSV ledger as a single object. Every update
// is read-entire-state, append, write-entire-state. By default writes
// carry a generation precondition so a concurrent writer's interleaved
// update surfaces as ledger.ErrConflict instead of silently losing a
// row; legacyWrites restores the historical unconditioned overwrite.
type LedgerStore struct {
	store        *Store
	object       string
	legacyWrites bool
}

// NewLedgerStore creates a ledger store on top of an object store.
func NewLedgerStore(store *Store, object string, legacyWrites bool) *LedgerStore {
	return &LedgerStore{store: store, object: object, legacyWrites: legacyWrites}
}

// Fetch reads the current ledger and its generation token. An absent
// ledger returns (nil, 0, nil); callers initialize via ledger.New.
func (ls *LedgerStore) Fetch(ctx context.Context) (*ledger.Ledger, int64, error) {
	rc, err := ls.store.client.Bucket(ls.store.bucket).Object(ls.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("Fetch: reading ledger %s: %w", ls.object, err)
	}
	defer rc.Close()

	generation := rc.Attrs.Generation

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, 0, fmt.Errorf("Fetch: reading ledger bytes: %w", err)
	}

	l, err := ledger.Parse(data)
	if err != nil {
		return nil, 0, fmt.Errorf("Fetch: %w", err)
	}
	return l, generation, nil
}

// Store writes the ledger back. generation must be the token returned by
// the Fetch that produced this state (0 when the ledger did not exist);
// a stale token yields ledger.ErrConflict.
func (ls *LedgerStore) Store(ctx context.Context, l *ledger.Ledger, generation int64) error {
	obj := ls.store.client.Bucket(ls.store.bucket).Object(ls.object)
	if !ls.legacyWrites {
		if generation == 0 {
			obj = obj.If(storage.Conditions{DoesNotExist: true})
		} else {
			obj = obj.If(storage.Conditions{GenerationMatch: generation})
		}
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := w.Write(l.Bytes()); err != nil {
		_ = w.Close()
		return ls.storeError(err)
	}
	if err := w.Close(); err != nil {
		return ls.storeError(err)
	}
	return nil
}

func (ls *LedgerStore) storeError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("Store: %s: %w", ls.object, ledger.ErrConflict)
	}
	return fmt.Errorf("Store: writing ledger %s: %w", ls.object, err)
}
