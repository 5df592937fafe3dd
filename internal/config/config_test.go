package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/rohankatakam/defectlab/internal/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Project.Key = "BOOKKEEPER"
	cfg.Proportion.Panel = []string{"AVRO", "STORM"}
	return cfg
}

func TestLoadFromFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project:
  key: BOOKKEEPER
  repository: /src/bookkeeper
proportion:
  threshold: 7
  panel: [AVRO, STORM]
walkforward:
  fraction: 0.5
cache:
  ttl: 2h
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BOOKKEEPER", cfg.Project.Key)
	assert.Equal(t, "/src/bookkeeper", cfg.Project.Repository)
	assert.Equal(t, 7, cfg.Proportion.Threshold)
	assert.Equal(t, []string{"AVRO", "STORM"}, cfg.Proportion.Panel)
	assert.Equal(t, 0.5, cfg.WalkForward.Fraction)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)

	// untouched keys keep their defaults
	assert.Equal(t, []string{".java"}, cfg.Project.Extensions)
	assert.Equal(t, "gogit", cfg.VCS.Backend)
	assert.Equal(t, "csv", cfg.Sink.Type)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project:\n  key: AVRO\n"), 0644))

	t.Setenv("DEFECTLAB_PROJECT_KEY", "STORM")
	t.Setenv("DEFECTLAB_WALKFORWARD_FRACTION", "0.25")
	t.Setenv("JIRA_URL", "https://jira.example.org")
	t.Setenv("JIRA_API_TOKEN", "secret-token-value")
	t.Setenv("JIRA_RATE_LIMIT", "2.5")
	t.Setenv("DATABASE_URL", "postgres://localhost/defectlab")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "STORM", cfg.Project.Key)
	assert.Equal(t, 0.25, cfg.WalkForward.Fraction)
	assert.Equal(t, "https://jira.example.org", cfg.Jira.URL)
	assert.Equal(t, "secret-token-value", cfg.Jira.APIToken)
	assert.Equal(t, 2.5, cfg.Jira.RateLimit)
	assert.Equal(t, "postgres://localhost/defectlab", cfg.Sink.DSN)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("project: [unterminated\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveOmitsToken(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := validConfig()
	cfg.Jira.APIToken = "do-not-write-me"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, cfg.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-write-me")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BOOKKEEPER", loaded.Project.Key)
	assert.Empty(t, loaded.Jira.APIToken)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		ctx     ValidationContext
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid run", ctx: ValidationContextRun, mutate: func(*Config) {}},
		{
			name:    "missing key",
			ctx:     ValidationContextRun,
			mutate:  func(c *Config) { c.Project.Key = "" },
			wantErr: "project.key is required",
		},
		{
			name:    "empty panel",
			ctx:     ValidationContextColdStart,
			mutate:  func(c *Config) { c.Proportion.Panel = nil },
			wantErr: "proportion.panel must list",
		},
		{
			name:    "panel contains target",
			ctx:     ValidationContextRun,
			mutate:  func(c *Config) { c.Proportion.Panel = append(c.Proportion.Panel, "BOOKKEEPER") },
			wantErr: "must not contain the target project BOOKKEEPER",
		},
		{
			name:    "threshold",
			ctx:     ValidationContextRun,
			mutate:  func(c *Config) { c.Proportion.Threshold = 0 },
			wantErr: "proportion.threshold",
		},
		{
			name:    "jira url",
			ctx:     ValidationContextReleases,
			mutate:  func(c *Config) { c.Jira.URL = "ftp://jira" },
			wantErr: "not an http(s) URL",
		},
		{
			name:    "vcs backend",
			ctx:     ValidationContextRun,
			mutate:  func(c *Config) { c.VCS.Backend = "hg" },
			wantErr: "vcs.backend",
		},
		{
			name:    "sink driver",
			ctx:     ValidationContextRun,
			mutate:  func(c *Config) { c.Sink.Type = "sql"; c.Sink.Driver = "mysql" },
			wantErr: "sink.driver",
		},
		{
			name:    "log format",
			ctx:     ValidationContextReleases,
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name:   "releases ignores panel",
			ctx:    ValidationContextReleases,
			mutate: func(c *Config) { c.Proportion.Panel = nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate(tt.ctx)
			if tt.wantErr == "" {
				assert.False(t, result.HasErrors(), result.Error())
				assert.NoError(t, result.Err())
				return
			}
			require.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), tt.wantErr)
			assert.Equal(t, errors.ErrorTypeConfig, errors.GetType(result.Err()))
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := validConfig()
	cfg.WalkForward.Fraction = 1.5
	cfg.Jira.Username = "bot"

	result := cfg.Validate(ValidationContextRun)
	assert.False(t, result.HasErrors())
	assert.Len(t, result.Warnings, 2)
}

func TestKeyringManager(t *testing.T) {
	keyring.MockInit()
	logger, _ := test.NewNullLogger()
	km := NewKeyringManager(logger)

	assert.True(t, km.IsAvailable())

	token, err := km.GetJiraToken()
	require.NoError(t, err)
	assert.Empty(t, token)

	assert.Error(t, km.SaveJiraToken(""))
	require.NoError(t, km.SaveJiraToken("abcd-efgh-ijkl"))

	token, err = km.GetJiraToken()
	require.NoError(t, err)
	assert.Equal(t, "abcd-efgh-ijkl", token)

	require.NoError(t, km.DeleteJiraToken())
	require.NoError(t, km.DeleteJiraToken())
}

func TestResolveJiraToken(t *testing.T) {
	keyring.MockInit()
	logger, _ := test.NewNullLogger()
	km := NewKeyringManager(logger)
	cm := NewCredentialManager(km)

	cfg := validConfig()
	assert.Equal(t, TokenNone, cm.ResolveJiraToken(cfg))

	cfg.Jira.APIToken = "from-config-file"
	assert.Equal(t, TokenFromConfig, cm.ResolveJiraToken(cfg))

	require.NoError(t, km.SaveJiraToken("from-keychain-token"))
	assert.Equal(t, TokenFromKeychain, cm.ResolveJiraToken(cfg))
	assert.Equal(t, "from-keychain-token", cfg.Jira.APIToken)

	t.Setenv("JIRA_API_TOKEN", "from-env-token")
	assert.Equal(t, TokenFromEnv, cm.ResolveJiraToken(cfg))
}

func TestPromptJiraTokenFromPipe(t *testing.T) {
	keyring.MockInit()
	cm := NewCredentialManager(NewKeyringManager(nil))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	_, err = w.WriteString("  piped-token-value \n")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	defer r.Close()

	var out bytes.Buffer
	token, err := cm.PromptJiraToken(r, &out)
	require.NoError(t, err)
	assert.Equal(t, "piped-token-value", token)
	assert.Contains(t, out.String(), "Saved to keychain")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(not set)", MaskToken(""))
	assert.Equal(t, "***", MaskToken("short"))
	assert.Equal(t, "abcd...wxyz", MaskToken("abcdefghijklmnopqrstuvwxyz"))
}
