package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectlab/internal/config"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a Jira API token in the OS keychain",
	Long: `Store a Jira API token in the OS keychain.

The token is read without echo when stdin is a terminal, or from a pipe:
  echo "$TOKEN" | defectlab login

JIRA_API_TOKEN still takes precedence over the keychain.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the Jira API token from the OS keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewKeyringManager(logger).DeleteJiraToken(); err != nil {
			return err
		}
		fmt.Println("✓ Jira token removed from keychain")
		return nil
	},
}

func runLogin(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager(logger)
	cm := config.NewCredentialManager(km)

	if existing, err := km.GetJiraToken(); err == nil && existing != "" {
		fmt.Printf("Replacing stored token %s\n", config.MaskToken(existing))
	}

	token, err := cm.PromptJiraToken(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("Jira token %s will be used for %s\n", config.MaskToken(token), cfg.Jira.URL)
	return nil
}
