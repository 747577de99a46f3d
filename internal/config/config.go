package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the archiver needs, loaded once per process.
// Secrets (the sender allow list) are not here - they come from the
// parameter source so rotation does not require a redeploy.
type Config struct {
	ProjectID string `envconfig:"PROJECT_ID" required:"true"`

	// Bucket holds raw messages, archived receipts and the ledger.
	Bucket        string `envconfig:"BUCKET_NAME" required:"true"`
	LedgerObject  string `envconfig:"LEDGER_OBJECT" default:"ledger/hsa-receipts.csv"`
	RawMailPrefix string `envconfig:"RAW_MAIL_PREFIX" default:"raw-emails/"`

	NotifyTopic  string `envconfig:"NOTIFY_TOPIC" default:"hsa-receipt-notices"`
	Subscription string `envconfig:"INTAKE_SUBSCRIPTION" default:"hsa-receipt-intake"`

	// AuditDataset enables BigQuery run auditing when non-empty.
	AuditDataset string `envconfig:"AUDIT_DATASET" default:""`

	// AllowedSendersSecret is the full Secret Manager version name
	// holding the comma-separated sender allow list, e.g.
	// projects/p/secrets/hsa-allowed-senders/versions/latest.
	AllowedSendersSecret string `envconfig:"ALLOWED_SENDERS_SECRET" required:"true"`

	GeminiModel string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GSBinary    string `envconfig:"GS_BINARY" default:"gs"`

	// LegacyLedgerWrites restores the historical unconditioned ledger
	// overwrite, which can lose rows under concurrent intakes.
	LegacyLedgerWrites bool `envconfig:"LEGACY_LEDGER_WRITES" default:"false"`
}

// Load reads configuration from the environment, with an optional .env
// file for local runs.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
