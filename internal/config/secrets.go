package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
)

// Secrets holds the sensitive values loaded from the environment, kept
// separate from Config so config files can be committed to source control.
type Secrets struct {
	WalletKey      *ecdsa.PrivateKey
	IndexerAPIKey  string
	HeartbeatURL   string
	EventBusURL    string
	PersistenceURL string

	// RelayAuth authenticates calls to the private relay or preconfirmation
	// endpoint, when execution.policy requires one. Empty disables the
	// Authorization header entirely; some relays accept unauthenticated
	// bundle submission.
	RelayAuth string
}

const (
	envWalletKey      = "MAKER_WALLET_PRIVATE_KEY"
	envIndexerAPIKey  = "MAKER_INDEXER_API_KEY"
	envHeartbeatURL   = "MAKER_HEARTBEAT_URL"
	envEventBusURL    = "MAKER_EVENT_BUS_URL"
	envPersistenceURL = "MAKER_PERSISTENCE_URL"
	envRelayAuth      = "MAKER_RELAY_AUTH"
)

// LoadSecrets reads secret values from the process environment.
func LoadSecrets() (*Secrets, error) {
	keyHex := os.Getenv(envWalletKey)
	if keyHex == "" {
		return nil, fmt.Errorf("config: %s is required", envWalletKey)
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", envWalletKey, err)
	}

	return &Secrets{
		WalletKey:      key,
		IndexerAPIKey:  os.Getenv(envIndexerAPIKey),
		HeartbeatURL:   os.Getenv(envHeartbeatURL),
		EventBusURL:    os.Getenv(envEventBusURL),
		PersistenceURL: os.Getenv(envPersistenceURL),
		RelayAuth:      os.Getenv(envRelayAuth),
	}, nil
}

// Validate checks that secrets required given cfg's feature flags are
// present.
func (s *Secrets) Validate(cfg *Config) error {
	if cfg.PublishEvents && s.EventBusURL == "" {
		return fmt.Errorf("config: %s is required when publish_events is enabled", envEventBusURL)
	}
	if !cfg.Testing && s.HeartbeatURL == "" {
		return fmt.Errorf("config: %s is required outside testing mode", envHeartbeatURL)
	}
	return nil
}
