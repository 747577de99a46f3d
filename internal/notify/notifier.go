package notify

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/dvloznov/hsa-archiver/internal/ledger"
)

// Kind labels a published notice.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindRejection    Kind = "rejection"
	KindError        Kind = "error"
)

// Notifier publishes intake notices to a Pub/Sub topic. Each message
// carries the notice body as data and kind/subject as attributes; the
// delivery fan-out (email relay etc.) lives behind the topic.
type Notifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a notifier for the given project and topic.
func New(ctx context.Context, projectID, topicID string) (*Notifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("notify: create pubsub client: %w", err)
	}
	return &Notifier{client: client, topic: client.Topic(topicID)}, nil
}

// Close releases the underlying client.
func (n *Notifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}

// Confirmation publishes a notice for one archived ledger entry.
func (n *Notifier) Confirmation(ctx context.Context, e ledger.Entry, dupScore int) error {
	return n.publish(ctx, KindConfirmation, "HSA Receipt Archived", FormatConfirmation(e, dupScore))
}

// Rejection publishes a notice explaining why an item was not eligible,
// with instructions for forcing acceptance.
func (n *Notifier) Rejection(ctx context.Context, description, reasoning string) error {
	return n.publish(ctx, KindRejection, "HSA Receipt Not Eligible", FormatRejection(description, reasoning))
}

// Failure publishes a processing-error notice.
func (n *Notifier) Failure(ctx context.Context, message string) error {
	return n.publish(ctx, KindError, "HSA Receipt Processing Failed", FormatFailure(message))
}

func (n *Notifier) publish(ctx context.Context, kind Kind, subject, body string) error {
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: []byte(body),
		Attributes: map[string]string{
			"kind":    string(kind),
			"subject": subject,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("notify: publishing %s notice: %w", kind, err)
	}
	return nil
}

// FormatConfirmation renders the aligned entry table for a confirmation
// notice.
func FormatConfirmation(e ledger.Entry, dupScore int) string {
	serviceDate := "N/A"
	if e.ServiceDate != nil {
		serviceDate = e.ServiceDate.String()
	}
	paymentDate := "N/A"
	if e.PaymentDate != nil {
		paymentDate = e.PaymentDate.String()
	}

	header := fmt.Sprintf("  %-12s  %-12s  %-20s  %-10s  %-30s  Amount",
		"Service Date", "Payment Date", "Provider", "Category", "Description")
	separator := "  " + strings.Repeat("-", len(header)-2)
	row := fmt.Sprintf("  %-12s  %-12s  %-20s  %-10s  %-30s  $%.2f",
		serviceDate, paymentDate, e.Provider, e.Category, e.Description, e.Amount)

	msg := strings.Join([]string{header, separator, row}, "\n")
	if e.ReceiptURI != "" {
		msg += fmt.Sprintf("\n\nReceipt: %s", e.ReceiptURI)
	}
	if dupScore > 0 {
		msg += fmt.Sprintf("\n\nNote: this entry resembles an existing ledger row (duplicate score %d/100).", dupScore)
	}
	return msg
}

// FormatRejection renders the body of a rejection notice.
func FormatRejection(description, reasoning string) string {
	return fmt.Sprintf(
		"Your receipt for %s was determined to not be HSA-eligible.\n\n"+
			"Reasoning: %s\n\n"+
			"If you believe this is incorrect, re-send the same email with the subject "+
			"line starting with \"FORCE_STORE\" to archive it regardless of eligibility.",
		description, reasoning)
}

// FormatFailure renders the body of a processing-error notice.
func FormatFailure(message string) string {
	return fmt.Sprintf(
		"An error occurred while processing your receipt.\n\n"+
			"Error: %s\n\n"+
			"Please try re-sending the email. If the problem persists, "+
			"check that the attachment is a supported image (JPEG, PNG, GIF, WebP) or PDF.",
		message)
}
