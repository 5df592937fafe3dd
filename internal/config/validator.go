package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/defectlab/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextRun - defectlab run needs everything
	ValidationContextRun ValidationContext = "run"
	// ValidationContextColdStart - defectlab coldstart needs the tracker and the panel
	ValidationContextColdStart ValidationContext = "coldstart"
	// ValidationContextReleases - defectlab releases needs the tracker
	ValidationContextReleases ValidationContext = "releases"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  ❌ %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠️  %s\n", warn))
		}
	}

	return sb.String()
}

// Err returns a fatal config error when validation failed, else nil
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(vr.Error())
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextRun:
		c.validateProject(result, true)
		c.validateJira(result)
		c.validatePanel(result)
		c.validateProportion(result)
		c.validateWalkForward(result)
		c.validateVCS(result)
		c.validateSink(result)
		c.validateCache(result)
	case ValidationContextColdStart:
		c.validateJira(result)
		c.validatePanel(result)
		c.validateCache(result)
	case ValidationContextReleases:
		c.validateProject(result, false)
		c.validateJira(result)
		c.validateCache(result)
	}
	c.validateLog(result)

	return result
}

func (c *Config) validateProject(result *ValidationResult, needRepo bool) {
	if c.Project.Key == "" {
		result.AddError("project.key is required (DEFECTLAB_PROJECT_KEY)")
	}
	if needRepo && c.Project.Repository == "" {
		result.AddError("project.repository is required")
	}
	for _, ext := range c.Project.Extensions {
		if !strings.HasPrefix(ext, ".") {
			result.AddError("extension %q must start with a dot", ext)
		}
	}
	if needRepo && len(c.Project.Extensions) == 0 {
		result.AddError("project.extensions must name at least one source extension")
	}
}

func (c *Config) validateJira(result *ValidationResult) {
	if c.Jira.URL == "" {
		result.AddError("jira.url is required (JIRA_URL)")
		return
	}
	u, err := url.Parse(c.Jira.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result.AddError("jira.url %q is not an http(s) URL", c.Jira.URL)
	}
	if c.Jira.Username != "" && c.Jira.APIToken == "" {
		result.AddWarning("jira.username is set without an API token; requests are anonymous")
	}
	if c.Jira.RateLimit <= 0 {
		result.AddWarning("jira.rate_limit is not positive; requests are not rate limited")
	}
}

func (c *Config) validatePanel(result *ValidationResult) {
	if len(c.Proportion.Panel) == 0 {
		result.AddError("proportion.panel must list at least one reference project")
		return
	}
	seen := make(map[string]bool)
	for _, p := range c.Proportion.Panel {
		if p == c.Project.Key && p != "" {
			result.AddError("proportion.panel must not contain the target project %s", p)
		}
		if seen[p] {
			result.AddWarning("proportion.panel lists %s twice", p)
		}
		seen[p] = true
	}
}

func (c *Config) validateProportion(result *ValidationResult) {
	if c.Proportion.Threshold < 1 {
		result.AddError("proportion.threshold must be at least 1 (got %d)", c.Proportion.Threshold)
	}
}

func (c *Config) validateWalkForward(result *ValidationResult) {
	f := c.WalkForward.Fraction
	if f <= 0 {
		result.AddWarning("walkforward.fraction %.2f is not positive; 0.4 is used", f)
	}
	if f > 1 {
		result.AddWarning("walkforward.fraction %.2f exceeds 1; the run ends when the testing release runs out", f)
	}
}

func (c *Config) validateVCS(result *ValidationResult) {
	switch c.VCS.Backend {
	case "gogit", "cli", "":
	default:
		result.AddError("vcs.backend must be gogit or cli (got %q)", c.VCS.Backend)
	}
}

func (c *Config) validateSink(result *ValidationResult) {
	switch c.Sink.Type {
	case "csv", "both", "sql":
	default:
		result.AddError("sink.type must be csv, sql or both (got %q)", c.Sink.Type)
		return
	}
	if c.Sink.Type != "sql" && c.Sink.OutputDir == "" {
		result.AddError("sink.output_dir is required for csv output")
	}
	if c.Sink.Type != "csv" {
		switch c.Sink.Driver {
		case "sqlite3", "postgres", "pgx":
		default:
			result.AddError("sink.driver must be sqlite3, postgres or pgx (got %q)", c.Sink.Driver)
		}
		if c.Sink.DSN == "" {
			result.AddError("sink.dsn is required for sql output (DATABASE_URL)")
		}
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	if c.Cache.Disabled {
		return
	}
	if c.Cache.RedisAddr == "" && c.Cache.Path == "" {
		result.AddWarning("cache.path is empty; tracker responses are not cached")
	}
	if c.Cache.TTL < 0 {
		result.AddError("cache.ttl must not be negative")
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	switch c.Log.Format {
	case "", "auto", "text", "json":
	default:
		result.AddError("log.format must be auto, text or json (got %q)", c.Log.Format)
	}
}
