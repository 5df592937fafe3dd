package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "defectlab"

	// KeyringJiraTokenItem is the key for the Jira API token
	KeyringJiraTokenItem = "jira-api-token"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger logrus.FieldLogger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager(logger logrus.FieldLogger) *KeyringManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &KeyringManager{logger: logger.WithField("component", "keyring")}
}

// SaveJiraToken stores the Jira token in the OS keychain
// - macOS: Keychain Access.app → "defectlab" → "jira-api-token"
// - Windows: Credential Manager → "defectlab"
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SaveJiraToken(token string) error {
	if token == "" {
		return fmt.Errorf("jira token cannot be empty")
	}

	if err := keyring.Set(KeyringService, KeyringJiraTokenItem, token); err != nil {
		km.logger.WithError(err).Error("failed to save jira token to keychain")
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.WithField("service", KeyringService).Info("jira token saved to keychain")
	return nil
}

// GetJiraToken retrieves the Jira token; an unset token is not an error
func (km *KeyringManager) GetJiraToken() (string, error) {
	token, err := keyring.Get(KeyringService, KeyringJiraTokenItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return token, nil
}

// DeleteJiraToken removes the Jira token from the OS keychain
func (km *KeyringManager) DeleteJiraToken() error {
	err := keyring.Delete(KeyringService, KeyringJiraTokenItem)
	if err == keyring.ErrNotFound {
		// Already deleted, not an error
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("jira token deleted from keychain")
	return nil
}

// IsAvailable checks if OS keychain is available. It returns false on
// headless systems (CI) without a secret service.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")
	if err == nil || err == keyring.ErrNotFound {
		return true
	}
	km.logger.WithError(err).Debug("keychain not available")
	return false
}

// MaskToken masks a token for display: first 4 and last 4 characters
func MaskToken(token string) string {
	if token == "" {
		return "(not set)"
	}
	if len(token) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", token[:4], token[len(token)-4:])
}
