package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectlab/internal/cache"
	"github.com/rohankatakam/defectlab/internal/config"
	"github.com/rohankatakam/defectlab/internal/errors"
	"github.com/rohankatakam/defectlab/internal/jira"
	"github.com/rohankatakam/defectlab/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logging.Logger
	cfg     *config.Config
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		logger.Close()
	}
	if err != nil {
		var e *errors.Error
		if verbose && stderrors.As(err, &e) {
			fmt.Fprintln(os.Stderr, e.DetailedString())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "defectlab",
	Short: "defectlab - method-level defect labels for walk-forward datasets",
	Long: `defectlab rebuilds which methods were buggy in each release of a project
from its issue tracker and version history, then writes time-ordered
training and testing datasets that never see labels from the future.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		logCfg := logging.Config{
			Level:      cfg.Log.Level,
			Format:     logging.Format(cfg.Log.Format),
			OutputFile: cfg.Log.File,
			MaxSize:    int64(cfg.Log.MaxSizeMB) * 1024 * 1024,
		}
		if verbose {
			logCfg.Level = "debug"
		}
		logger, err = logging.New(logCfg)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .defectlab/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`defectlab {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(coldStartCmd)
	rootCmd.AddCommand(releasesCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("defectlab %s\nBuild time: %s\nGit commit: %s\n", Version, BuildTime, GitCommit)
	},
}

// openTracker builds the Jira client with its response cache. The returned
// func releases the cache.
func openTracker(ctx context.Context) (*jira.Client, func(), error) {
	tokenSource := config.NewCredentialManager(config.NewKeyringManager(logger)).ResolveJiraToken(cfg)
	logger.WithField("source", tokenSource).Debug("jira token resolved")

	store, err := openCache(ctx)
	if err != nil {
		return nil, nil, err
	}

	client := jira.NewClient(cfg.Jira.URL, cfg.Jira.Username, cfg.Jira.APIToken, cfg.Jira.RateLimit, store, logger)
	if cfg.Jira.PageSize > 0 {
		client.PageSize = cfg.Jira.PageSize
	}

	closer := func() {
		if store != nil {
			store.Close()
		}
	}
	return client, closer, nil
}

// openCache returns the shared Redis cache when configured, else the local
// file cache; nil when caching is disabled
func openCache(ctx context.Context) (cache.Cache, error) {
	if cfg.Cache.Disabled {
		return nil, nil
	}
	if cfg.Cache.RedisAddr != "" {
		store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.TTL, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	if cfg.Cache.Path == "" {
		return nil, nil
	}
	store, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL, logger)
	if err != nil {
		logger.WithError(err).Warn("tracker cache unavailable, continuing without it")
		return nil, nil
	}
	return store, nil
}
