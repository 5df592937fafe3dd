package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by viper
const EnvPrefix = "DEFECTLAB"

// Config holds all configuration settings
type Config struct {
	// Target project and its repository
	Project ProjectConfig `yaml:"project" mapstructure:"project"`

	// Version control access
	VCS VCSConfig `yaml:"vcs" mapstructure:"vcs"`

	// IV estimation settings
	Proportion ProportionConfig `yaml:"proportion" mapstructure:"proportion"`

	// Walk-forward settings
	WalkForward WalkForwardConfig `yaml:"walkforward" mapstructure:"walkforward"`

	// Issue tracker configuration
	Jira JiraConfig `yaml:"jira" mapstructure:"jira"`

	// Tracker response cache
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Snapshot parsing
	Ingestion IngestionConfig `yaml:"ingestion" mapstructure:"ingestion"`

	// Dataset output
	Sink SinkConfig `yaml:"sink" mapstructure:"sink"`

	// Logging
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

type ProjectConfig struct {
	Key        string   `yaml:"key" mapstructure:"key"`               // Tracker project key, e.g. BOOKKEEPER
	Repository string   `yaml:"repository" mapstructure:"repository"` // Local path or clone URL
	Extensions []string `yaml:"extensions" mapstructure:"extensions"` // Source extensions to label
}

type VCSConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"` // "gogit", "cli"
	ReposDir string `yaml:"repos_dir" mapstructure:"repos_dir"`
}

type ProportionConfig struct {
	Threshold        int      `yaml:"threshold" mapstructure:"threshold"`
	Panel            []string `yaml:"panel" mapstructure:"panel"` // Reference projects for cold start
	ColdStartWorkers int      `yaml:"cold_start_workers" mapstructure:"cold_start_workers"`
}

type WalkForwardConfig struct {
	Fraction float64 `yaml:"fraction" mapstructure:"fraction"`
}

type JiraConfig struct {
	URL       string  `yaml:"url" mapstructure:"url"`
	Username  string  `yaml:"username" mapstructure:"username"`
	APIToken  string  `yaml:"api_token" mapstructure:"api_token"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
	PageSize  int     `yaml:"page_size" mapstructure:"page_size"`
}

type CacheConfig struct {
	Path          string        `yaml:"path" mapstructure:"path"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"` // Shared cache instead of the local file
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	Disabled      bool          `yaml:"disabled" mapstructure:"disabled"`
}

type IngestionConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

type SinkConfig struct {
	Type      string `yaml:"type" mapstructure:"type"` // "csv", "sql", "both"
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	Driver    string `yaml:"driver" mapstructure:"driver"` // "sqlite3", "postgres", "pgx"
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
}

type LogConfig struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Format    string `yaml:"format" mapstructure:"format"` // "text", "json", "auto"
	File      string `yaml:"file" mapstructure:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Project: ProjectConfig{
			Repository: ".",
			Extensions: []string{".java"},
		},
		VCS: VCSConfig{
			Backend:  "gogit",
			ReposDir: filepath.Join(homeDir, ".defectlab", "repos"),
		},
		Proportion: ProportionConfig{
			Threshold:        5,
			ColdStartWorkers: 4,
		},
		WalkForward: WalkForwardConfig{
			Fraction: 0.4,
		},
		Jira: JiraConfig{
			URL:       "https://issues.apache.org/jira",
			RateLimit: 5, // 5 requests per second
			PageSize:  1000,
		},
		Cache: CacheConfig{
			Path: filepath.Join(homeDir, ".defectlab", "cache", "tracker.db"),
			TTL:  24 * time.Hour,
		},
		Ingestion: IngestionConfig{
			Workers: 8,
		},
		Sink: SinkConfig{
			Type:      "csv",
			OutputDir: "output",
			Driver:    "sqlite3",
			DSN:       filepath.Join("output", "dataset.db"),
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "auto",
			MaxSizeMB: 10,
		},
	}
}

// Load loads configuration from path, or from the standard locations when
// path is empty. A missing config file is not an error.
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Default())

	// DEFECTLAB_JIRA_URL overrides jira.url
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".defectlab")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".defectlab"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.VCS.ReposDir = expandPath(cfg.VCS.ReposDir)
	cfg.Cache.Path = expandPath(cfg.Cache.Path)

	return cfg, nil
}

// setDefaults registers every leaf key so that AutomaticEnv can override it
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("project.key", cfg.Project.Key)
	v.SetDefault("project.repository", cfg.Project.Repository)
	v.SetDefault("project.extensions", cfg.Project.Extensions)
	v.SetDefault("vcs.backend", cfg.VCS.Backend)
	v.SetDefault("vcs.repos_dir", cfg.VCS.ReposDir)
	v.SetDefault("proportion.threshold", cfg.Proportion.Threshold)
	v.SetDefault("proportion.panel", cfg.Proportion.Panel)
	v.SetDefault("proportion.cold_start_workers", cfg.Proportion.ColdStartWorkers)
	v.SetDefault("walkforward.fraction", cfg.WalkForward.Fraction)
	v.SetDefault("jira.url", cfg.Jira.URL)
	v.SetDefault("jira.username", cfg.Jira.Username)
	v.SetDefault("jira.api_token", cfg.Jira.APIToken)
	v.SetDefault("jira.rate_limit", cfg.Jira.RateLimit)
	v.SetDefault("jira.page_size", cfg.Jira.PageSize)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.redis_addr", cfg.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", cfg.Cache.RedisPassword)
	v.SetDefault("cache.disabled", cfg.Cache.Disabled)
	v.SetDefault("ingestion.workers", cfg.Ingestion.Workers)
	v.SetDefault("sink.type", cfg.Sink.Type)
	v.SetDefault("sink.output_dir", cfg.Sink.OutputDir)
	v.SetDefault("sink.driver", cfg.Sink.Driver)
	v.SetDefault("sink.dsn", cfg.Sink.DSN)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set.
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".defectlab", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies the conventional unprefixed variables
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("JIRA_URL"); url != "" {
		cfg.Jira.URL = url
	}
	if user := os.Getenv("JIRA_USERNAME"); user != "" {
		cfg.Jira.Username = user
	}
	if token := os.Getenv("JIRA_API_TOKEN"); token != "" {
		cfg.Jira.APIToken = token
	}
	if rate := os.Getenv("JIRA_RATE_LIMIT"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Jira.RateLimit = r
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Sink.DSN = dsn
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file. The Jira token is never written.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	jira := c.Jira
	jira.APIToken = ""

	v.Set("project", c.Project)
	v.Set("vcs", c.VCS)
	v.Set("proportion", c.Proportion)
	v.Set("walkforward", c.WalkForward)
	v.Set("jira", jira)
	v.Set("cache", c.Cache)
	v.Set("ingestion", c.Ingestion)
	v.Set("sink", c.Sink)
	v.Set("log", c.Log)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
