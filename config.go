package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/erc7824/ledgergate/pkg/log"
	"github.com/erc7824/ledgergate/pkg/sign"
)

type Mode string

const (
	ModeProduction Mode = "production"
	ModeTest       Mode = "test"
)

const (
	configDirPathEnv     = "LEDGERGATE_CONFIG_DIR"
	defaultConfigDirPath = "."
)

// Config is read from the environment, after loading <config dir>/.env.
type Config struct {
	Mode        Mode   `env:"LEDGERGATE_MODE" env-default:"production"`
	ListenAddr  string `env:"LEDGERGATE_LISTEN_ADDR" env-default:":8000"`
	MetricsAddr string `env:"LEDGERGATE_METRICS_ADDR" env-default:":4242"`

	// SignerKey is the hex secp256k1 key that signs RPC responses.
	SignerKey string `env:"LEDGERGATE_SIGNER_KEY" env-required:"true"`

	// LedgerURL is empty when the gateway runs without a ledger. Commands
	// are then authorized and recorded, and rejected by the ledger stage.
	LedgerURL        string `env:"LEDGERGATE_LEDGER_URL"`
	SubmitterAccount string `env:"LEDGERGATE_SUBMITTER_ACCOUNT"`
	KeystoreDir      string `env:"LEDGERGATE_KEYSTORE_DIR"`

	AllowListPath string   `env:"LEDGERGATE_ALLOWLIST_PATH"`
	AuthorityKeys []string `env:"LEDGERGATE_AUTHORITY_KEYS" env-separator:","`
	SchemasPath   string   `env:"LEDGERGATE_SCHEMAS_PATH"`
	CommandsPath  string   `env:"LEDGERGATE_COMMANDS_PATH"`

	SubmissionTimeout time.Duration `env:"LEDGERGATE_SUBMISSION_TIMEOUT" env-default:"2m"`
	SubmissionWait    time.Duration `env:"LEDGERGATE_SUBMISSION_WAIT" env-default:"30s"`
	MsgExpiry         time.Duration `env:"LEDGERGATE_MSG_EXPIRY" env-default:"60s"`

	Database DatabaseConfig
	Log      log.Config
}

// LoadConfig builds the configuration from the environment.
func LoadConfig(logger log.Logger) (*Config, error) {
	logger = logger.WithName("config")

	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	configDotEnvPath := filepath.Join(configDirPath, ".env")
	logger.Info("loading .env file", "path", configDotEnvPath)
	if err := godotenv.Load(configDotEnvPath); err != nil {
		logger.Warn(".env file not found")
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}

	if config.Database.URL != "" {
		dbConf, err := ParseConnectionString(config.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}
		config.Database = dbConf
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	logger.Info("configuration loaded",
		"mode", config.Mode,
		"ledger", config.LedgerURL != "",
		"authorities", len(config.AuthorityKeys),
		"msgExpiry", config.MsgExpiry)
	return &config, nil
}

func (c *Config) validate() error {
	if c.Mode != ModeProduction && c.Mode != ModeTest {
		return fmt.Errorf("invalid LEDGERGATE_MODE value: %q", c.Mode)
	}
	if c.SubmissionWait <= 0 || c.SubmissionTimeout <= 0 || c.MsgExpiry <= 0 {
		return fmt.Errorf("submission timeout, submission wait and message expiry must be positive")
	}
	if c.SubmissionWait > c.SubmissionTimeout {
		return fmt.Errorf("LEDGERGATE_SUBMISSION_WAIT (%s) exceeds LEDGERGATE_SUBMISSION_TIMEOUT (%s)", c.SubmissionWait, c.SubmissionTimeout)
	}
	if c.LedgerURL != "" && c.SubmitterAccount == "" {
		return fmt.Errorf("LEDGERGATE_SUBMITTER_ACCOUNT is required when LEDGERGATE_LEDGER_URL is set")
	}
	if _, err := c.Authorities(); err != nil {
		return err
	}
	return nil
}

// Authorities parses LEDGERGATE_AUTHORITY_KEYS. Entries may be public keys,
// account ids or SS58 addresses.
func (c *Config) Authorities() ([]sign.AccountID, error) {
	ids := make([]sign.AccountID, 0, len(c.AuthorityKeys))
	for _, key := range c.AuthorityKeys {
		if key == "" {
			continue
		}
		id, err := sign.ParseAccountID(key)
		if err != nil {
			return nil, fmt.Errorf("invalid authority key %q: %w", key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
