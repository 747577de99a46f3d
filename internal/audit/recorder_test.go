package audit

import (
	"context"
	"strings"
	"testing"
)

func TestStartRunQueryIsDMLInsert(t *testing.T) {
	q := startRunQuery("hsa")

	// A query-job insert, so the row never sits in the streaming buffer
	// where the Finish update could not reach it.
	if !strings.Contains(q, "INSERT hsa.intake_runs") {
		t.Errorf("query does not insert into hsa.intake_runs:\n%s", q)
	}
	for _, param := range []string{"@run_id", "@message_key", "@started_ts", "@status"} {
		if !strings.Contains(q, param) {
			t.Errorf("query missing parameter %s:\n%s", param, q)
		}
	}
}

func TestFinishRunQueryTargetsSameTable(t *testing.T) {
	q := finishRunQuery("hsa")

	if !strings.Contains(q, "UPDATE hsa.intake_runs") {
		t.Errorf("query does not update hsa.intake_runs:\n%s", q)
	}
	if !strings.Contains(q, "WHERE run_id = @run_id") {
		t.Errorf("query missing run_id predicate:\n%s", q)
	}
	for _, param := range []string{"@status", "@finished_ts", "@error_message"} {
		if !strings.Contains(q, param) {
			t.Errorf("query missing parameter %s:\n%s", param, q)
		}
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder

	runID, err := r.Start(context.Background(), "raw-emails/msg-1")
	if err != nil {
		t.Fatalf("Start on nil recorder failed: %v", err)
	}
	if runID != "" {
		t.Errorf("runID = %q, want empty", runID)
	}

	r.Finish(context.Background(), runID, "SUCCESS", "")
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil recorder failed: %v", err)
	}
}
