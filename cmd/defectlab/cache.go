package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/defectlab/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local tracker response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached release and ticket list",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Cache.Path == "" {
			return fmt.Errorf("cache.path is not set")
		}
		store, err := cache.Open(cfg.Cache.Path, cfg.Cache.TTL, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Printf("✓ Cleared %s\n", cfg.Cache.Path)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
