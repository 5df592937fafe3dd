package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rohankatakam/defectlab/internal/errors"
)

// TokenSource names where the Jira token came from
type TokenSource string

const (
	TokenFromEnv      TokenSource = "env"
	TokenFromKeychain TokenSource = "keychain"
	TokenFromConfig   TokenSource = "config"
	TokenNone         TokenSource = "none"
)

// CredentialManager resolves the Jira token with a priority chain:
// environment, then keychain, then config file
type CredentialManager struct {
	keyring *KeyringManager
}

// NewCredentialManager creates a credential manager over km
func NewCredentialManager(km *KeyringManager) *CredentialManager {
	return &CredentialManager{keyring: km}
}

// ResolveJiraToken fills cfg.Jira.APIToken and reports its source. Load has
// already applied JIRA_API_TOKEN, so a token present here from the
// environment wins over the keychain.
func (cm *CredentialManager) ResolveJiraToken(cfg *Config) TokenSource {
	if os.Getenv("JIRA_API_TOKEN") != "" || os.Getenv(EnvPrefix+"_JIRA_API_TOKEN") != "" {
		return TokenFromEnv
	}

	if cm.keyring != nil && cm.keyring.IsAvailable() {
		if token, err := cm.keyring.GetJiraToken(); err == nil && token != "" {
			cfg.Jira.APIToken = token
			return TokenFromKeychain
		}
	}

	if cfg.Jira.APIToken != "" {
		return TokenFromConfig
	}
	return TokenNone
}

// PromptJiraToken reads a token from in, masking input when in is the
// terminal, and stores it in the keychain
func (cm *CredentialManager) PromptJiraToken(in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter Jira API token: ")
	token, err := readSecurely(in, out)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.ConfigError("jira API token is required")
	}

	if cm.keyring == nil || !cm.keyring.IsAvailable() {
		return "", errors.ConfigError("OS keychain unavailable; set JIRA_API_TOKEN instead")
	}
	if err := cm.keyring.SaveJiraToken(token); err != nil {
		return "", err
	}
	fmt.Fprintln(out, "✓ Saved to keychain")
	return token, nil
}

// readSecurely reads a token without echoing when in is a terminal and
// falls back to a plain line read for piped input
func readSecurely(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
