package audit

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/dvloznov/hsa-archiver/internal/logger"
)

const runsTable = "intake_runs"

// Recorder writes one audit row per intake run to BigQuery. A nil
// Recorder is valid and records nothing, so audit stays optional.
//
// The intake_runs schema: run_id STRING, message_key STRING,
// started_ts TIMESTAMP, finished_ts TIMESTAMP, status STRING,
// error_message STRING.
type Recorder struct {
	client  *bigquery.Client
	dataset string
}

// NewRecorder creates a recorder for the given project and dataset.
func NewRecorder(ctx context.Context, projectID, dataset string) (*Recorder, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRecorder: bigquery client: %w", err)
	}
	return &Recorder{client: client, dataset: dataset}, nil
}

// Close releases the underlying client.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}

// Start inserts a RUNNING row for this invocation and returns its run ID.
// The row goes in via a DML insert job, not the streaming API: rows in
// the streaming buffer cannot be touched by DML, and Finish updates this
// row moments later.
func (r *Recorder) Start(ctx context.Context, messageKey string) (string, error) {
	if r == nil {
		return "", nil
	}

	runID := uuid.NewString()

	q := r.client.Query(startRunQuery(r.dataset))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "message_key", Value: messageKey},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: "RUNNING"},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return "", fmt.Errorf("Start: running insert query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("Start: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return "", fmt.Errorf("Start: job error: %w", err)
	}

	return runID, nil
}

// Finish updates the run row with its terminal status. Failures here are
// logged, never propagated - audit must not fail an intake that already
// completed.
func (r *Recorder) Finish(ctx context.Context, runID, status, errMsg string) {
	if r == nil || runID == "" {
		return
	}
	log := logger.FromContext(ctx)

	const maxLen = 2000
	if len(errMsg) > maxLen {
		errMsg = errMsg[:maxLen]
	}

	q := r.client.Query(finishRunQuery(r.dataset))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: status},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "run_id", Value: runID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to run audit update")
		return
	}

	jobStatus, err := job.Wait(ctx)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Failed to wait for audit update")
		return
	}
	if err := jobStatus.Err(); err != nil {
		log.Error().Err(err).Str("run_id", runID).Msg("Audit update completed with error")
	}
}

func startRunQuery(dataset string) string {
	return fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			message_key,
			started_ts,
			status
		)
		VALUES (
			@run_id,
			@message_key,
			@started_ts,
			@status
		)
	`, dataset, runsTable)
}

func finishRunQuery(dataset string) string {
	return fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, dataset, runsTable)
}
